// Package orchestrate drives a single chat turn end to end: load the
// agent's cached config and session, enhance the query, retrieve context,
// generate a response, and persist the turn without blocking the response.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-ai/knowledge-core/internal/llm"
	"github.com/atlas-ai/knowledge-core/internal/model"
	"github.com/atlas-ai/knowledge-core/internal/retrieve"
)

// AgentLoader resolves an agent's config, typically Redis-cached.
type AgentLoader interface {
	GetOrLoad(ctx context.Context, agentID string, load func(ctx context.Context) (*model.Agent, error)) (*model.Agent, error)
}

// AgentStore is the Postgres fallback behind AgentLoader's cache miss path.
type AgentStore interface {
	GetByID(ctx context.Context, agentID string) (*model.Agent, error)
}

// SessionStore manages chat sessions and message history.
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, agentID, chatSessionID, newConversationID string) (*model.ChatSession, error)
	RotateConversationID(ctx context.Context, agentID, chatSessionID, newConversationID string) error
	AppendMessage(ctx context.Context, m *model.ChatMessage) error
	RecentMessages(ctx context.Context, agentID, chatSessionID, conversationID string, limit int) ([]*model.ChatMessage, error)
}

// Retriever fetches relevant knowledge-base chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, agentID, query string, topK int) ([]retrieve.Result, error)
}

// Enhancer rewrites a user message into a standalone search query.
type Enhancer interface {
	ExtractJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error
}

// Completer generates a buffered or streamed chat completion from a full
// message list: history, retrieved context, and the active user turn.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature *float64) (string, error)
	Stream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan error)
}

// Orchestrator drives one chat turn.
type Orchestrator struct {
	agents    AgentLoader
	agentRepo AgentStore
	sessions  SessionStore
	retriever Retriever
	enhancer  Enhancer
	llm       Completer

	topK         int
	historyDepth int
}

func New(agents AgentLoader, agentRepo AgentStore, sessions SessionStore, retriever Retriever, enhancer Enhancer, llm Completer) *Orchestrator {
	return &Orchestrator{
		agents:       agents,
		agentRepo:    agentRepo,
		sessions:     sessions,
		retriever:    retriever,
		enhancer:     enhancer,
		llm:          llm,
		topK:         10,
		historyDepth: 10,
	}
}

// Turn is the outcome of preparing a chat turn: the caller either calls
// Stream or Complete, and both persist the exchange when generation ends.
type Turn struct {
	Agent         *model.Agent
	Session       *model.ChatSession
	EnhancedQuery string
	Messages      []llm.Message
	UserMessage   string

	o *Orchestrator
}

type enhanceResult struct {
	EnhancedQuery string `json:"enhancedQuery"`
}

// Prepare loads everything a chat turn needs: cached agent config, the
// session (creating one with a fresh conversation id if new), the
// query-enhanced search string, and the retrieved knowledge-base context —
// agent config and session load concurrently; enhancement and retrieval
// follow once both are in.
func (o *Orchestrator) Prepare(ctx context.Context, agentID, chatSessionID, userMessage string) (*Turn, error) {
	var agent *model.Agent
	var session *model.ChatSession

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := o.agents.GetOrLoad(gctx, agentID, func(ctx context.Context) (*model.Agent, error) {
			return o.agentRepo.GetByID(ctx, agentID)
		})
		if err != nil {
			return fmt.Errorf("load agent: %w", err)
		}
		agent = a
		return nil
	})
	g.Go(func() error {
		s, err := o.sessions.GetOrCreateSession(gctx, agentID, chatSessionID, uuid.NewString())
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		session = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("orchestrate.Prepare: %w", err)
	}

	history, err := o.sessions.RecentMessages(ctx, agentID, session.ChatSessionID, session.ConversationID, o.historyDepth)
	if err != nil {
		slog.Warn("orchestrate: failed to load conversation history", "error", err)
		history = nil
	}

	enhanced := o.enhanceQuery(ctx, history, userMessage)

	results, err := o.retriever.Retrieve(ctx, agentID, enhanced, o.topK)
	if err != nil {
		return nil, fmt.Errorf("orchestrate.Prepare: retrieve: %w", err)
	}

	return &Turn{
		Agent:         agent,
		Session:       session,
		EnhancedQuery: enhanced,
		Messages:      buildMessages(agent, history, results, enhanced),
		UserMessage:   userMessage,
		o:             o,
	}, nil
}

// enhanceQuery rewrites userMessage using recent history as context. On any
// failure it falls back to the raw message rather than blocking the turn.
func (o *Orchestrator) enhanceQuery(ctx context.Context, history []*model.ChatMessage, userMessage string) string {
	if len(history) == 0 {
		return userMessage
	}

	prompt := formatHistoryForEnhancement(history, userMessage)
	var result enhanceResult
	if err := o.enhancer.ExtractJSON(ctx, enhancePrompt, prompt, &result); err != nil {
		slog.Warn("orchestrate: query enhancement failed, using raw message", "error", err)
		return userMessage
	}
	if result.EnhancedQuery == "" {
		return userMessage
	}
	return result.EnhancedQuery
}

func formatHistoryForEnhancement(history []*model.ChatMessage, userMessage string) string {
	s := "Conversation history:\n"
	for _, m := range history {
		s += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}
	s += fmt.Sprintf("\nLatest user message: %s", userMessage)
	return s
}

// Complete runs a buffered (non-streamed) completion for this turn and
// persists both sides of the conversation.
func (t *Turn) Complete(ctx context.Context, temperature *float64) (string, error) {
	answer, err := t.o.llm.Complete(ctx, t.Messages, temperature)
	if err != nil {
		return "", fmt.Errorf("orchestrate.Turn.Complete: %w", err)
	}
	t.persist(answer)
	return answer, nil
}

// Stream runs a streamed completion, persisting once the stream completes.
// The returned channels behave exactly like llm.GenerationService.Stream's:
// text chunks on the first channel, a single terminal error (or none) on
// the second, both closed when generation finishes.
func (t *Turn) Stream(ctx context.Context) (<-chan string, <-chan error) {
	rawText, rawErr := t.o.llm.Stream(ctx, t.Messages)

	outText := make(chan string, 64)
	outErr := make(chan error, 1)

	go func() {
		defer close(outText)
		defer close(outErr)

		var full string
		for chunk := range rawText {
			full += chunk
			outText <- chunk
		}
		if err, ok := <-rawErr; ok && err != nil {
			outErr <- err
			return
		}
		t.persist(full)
	}()

	return outText, outErr
}

// persist fires off message storage without blocking the caller; a history
// write failure is logged but never surfaces as a chat-facing error, since
// the user has already received their answer.
func (t *Turn) persist(answer string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		now := time.Now().UTC()
		userMsg := &model.ChatMessage{
			AgentID: t.Agent.AgentID, ChatSessionID: t.Session.ChatSessionID, ConversationID: t.Session.ConversationID,
			MessageID: uuid.NewString(), Role: model.ChatRoleUser, Content: t.UserMessage,
			EnhancedMessage: t.EnhancedQuery, CreatedAt: now,
		}
		agentMsg := &model.ChatMessage{
			AgentID: t.Agent.AgentID, ChatSessionID: t.Session.ChatSessionID, ConversationID: t.Session.ConversationID,
			MessageID: uuid.NewString(), Role: model.ChatRoleAgent, Content: answer, CreatedAt: now.Add(time.Millisecond),
		}

		if err := t.o.sessions.AppendMessage(ctx, userMsg); err != nil {
			slog.Error("orchestrate: failed to persist user message", "error", err)
		}
		if err := t.o.sessions.AppendMessage(ctx, agentMsg); err != nil {
			slog.Error("orchestrate: failed to persist agent message", "error", err)
		}
	}()
}

// RotateConversation starts a fresh conversation for the session, clearing
// the visible thread while leaving the session and its history intact.
func (o *Orchestrator) RotateConversation(ctx context.Context, agentID, chatSessionID string) (string, error) {
	newID := uuid.NewString()
	if err := o.sessions.RotateConversationID(ctx, agentID, chatSessionID, newID); err != nil {
		return "", fmt.Errorf("orchestrate.RotateConversation: %w", err)
	}
	return newID, nil
}
