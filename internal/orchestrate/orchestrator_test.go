package orchestrate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atlas-ai/knowledge-core/internal/llm"
	"github.com/atlas-ai/knowledge-core/internal/model"
	"github.com/atlas-ai/knowledge-core/internal/retrieve"
)

type fakeAgentLoader struct{ agent *model.Agent }

func (f *fakeAgentLoader) GetOrLoad(ctx context.Context, agentID string, load func(ctx context.Context) (*model.Agent, error)) (*model.Agent, error) {
	return f.agent, nil
}

type fakeAgentStore struct{ agent *model.Agent }

func (f *fakeAgentStore) GetByID(ctx context.Context, agentID string) (*model.Agent, error) {
	return f.agent, nil
}

// fakeSessionStore keeps messages bucketed by conversation id, so rotating
// conversations is visible in RecentMessages the way the real store would be.
type fakeSessionStore struct {
	mu          sync.Mutex
	session     *model.ChatSession
	byConv      map[string][]*model.ChatMessage
	rotated     string
}

func (f *fakeSessionStore) GetOrCreateSession(ctx context.Context, agentID, chatSessionID, newConversationID string) (*model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		f.session = &model.ChatSession{AgentID: agentID, ChatSessionID: chatSessionID, ConversationID: newConversationID}
	}
	return f.session, nil
}

func (f *fakeSessionStore) RotateConversationID(ctx context.Context, agentID, chatSessionID, newConversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotated = newConversationID
	f.session.ConversationID = newConversationID
	return nil
}

func (f *fakeSessionStore) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byConv == nil {
		f.byConv = make(map[string][]*model.ChatMessage)
	}
	f.byConv[m.ConversationID] = append(f.byConv[m.ConversationID], m)
	return nil
}

func (f *fakeSessionStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ms := range f.byConv {
		n += len(ms)
	}
	return n
}

func (f *fakeSessionStore) messagesIn(conversationID string) []*model.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.ChatMessage(nil), f.byConv[conversationID]...)
}

func (f *fakeSessionStore) RecentMessages(ctx context.Context, agentID, chatSessionID, conversationID string, limit int) ([]*model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.ChatMessage(nil), f.byConv[conversationID]...), nil
}

// fakeRetriever records the query each call was made with, so tests can
// assert retrieval ran against the enhanced query rather than the raw one.
type fakeRetriever struct {
	mu      sync.Mutex
	results []retrieve.Result
	queries []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, agentID, query string, topK int) ([]retrieve.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.results, nil
}

func (f *fakeRetriever) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeEnhancer struct {
	called bool
	err    error
	reply  string
}

func (f *fakeEnhancer) ExtractJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	f.called = true
	if f.err != nil {
		return f.err
	}
	r := out.(*enhanceResult)
	if f.reply != "" {
		r.EnhancedQuery = f.reply
	} else {
		r.EnhancedQuery = "enhanced: " + userPrompt
	}
	return nil
}

type fakeCompleter struct {
	reply string
	err   error

	mu       sync.Mutex
	messages [][]llm.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message, temperature *float64) (string, error) {
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) lastMessages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

func (f *fakeCompleter) Stream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.mu.Unlock()

	text := make(chan string, 2)
	errc := make(chan error, 1)
	text <- "hello "
	text <- "world"
	close(text)
	close(errc)
	return text, errc
}

func testAgent() *model.Agent {
	return &model.Agent{AgentID: "agent1", DisplayName: "Atlas", SystemPrompt: "You are a helpful assistant."}
}

func TestOrchestrator_Prepare_NoHistorySkipsEnhancement(t *testing.T) {
	enhancer := &fakeEnhancer{}
	o := New(
		&fakeAgentLoader{agent: testAgent()},
		&fakeAgentStore{agent: testAgent()},
		&fakeSessionStore{},
		&fakeRetriever{results: []retrieve.Result{{KnowledgeSource: "doc.txt", TextContent: "some content"}}},
		enhancer,
		&fakeCompleter{reply: "an answer"},
	)

	turn, err := o.Prepare(context.Background(), "agent1", "web-session1", "what is this product?")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if enhancer.called {
		t.Error("enhancer should not be called when there is no history")
	}
	if turn.EnhancedQuery != "what is this product?" {
		t.Errorf("EnhancedQuery = %q, want raw message", turn.EnhancedQuery)
	}
	if len(turn.Messages) == 0 {
		t.Fatal("expected a non-empty message list")
	}
}

// Scenario 1: a fresh session with no indexed sources greets the user
// without ever mentioning a knowledge-base block, and both sides of the
// turn land under one freshly minted conversation id.
func TestOrchestrator_FreshSession_GreetingHasNoKBBlock(t *testing.T) {
	sessions := &fakeSessionStore{}
	o := New(
		&fakeAgentLoader{agent: testAgent()},
		&fakeAgentStore{agent: testAgent()},
		sessions,
		&fakeRetriever{},
		&fakeEnhancer{},
		&fakeCompleter{reply: "Hi there! How can I help you today?"},
	)

	turn, err := o.Prepare(context.Background(), "agent1", "web-session1", "hello")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for _, m := range turn.Messages {
		if strings.Contains(m.Content, "Knowledge base context") {
			t.Errorf("expected no KB block message, found one: %q", m.Content)
		}
	}

	answer, err := turn.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if answer == "" {
		t.Error("expected a greeting reply")
	}

	convID := turn.Session.ConversationID
	waitForMessages(t, sessions, 2)
	msgs := sessions.messagesIn(convID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages under conversation %q, got %d", convID, len(msgs))
	}
}

// Scenario 2: a prior "who are you?"/"I am Atlas." turn lets a terse
// follow-up ("again?") get enhanced into a standalone question, retrieval
// runs against that enhanced question, and the generated reply is persisted
// with its own message id distinct from the user's.
func TestOrchestrator_FollowUp_UsesHistoryForEnhancementAndGeneration(t *testing.T) {
	sessions := &fakeSessionStore{}
	agent := testAgent()
	session, _ := sessions.GetOrCreateSession(context.Background(), agent.AgentID, "web-session1", "conv-1")
	sessions.AppendMessage(context.Background(), &model.ChatMessage{
		AgentID: agent.AgentID, ChatSessionID: session.ChatSessionID, ConversationID: session.ConversationID,
		MessageID: "m1", Role: model.ChatRoleUser, Content: "who are you?",
	})
	sessions.AppendMessage(context.Background(), &model.ChatMessage{
		AgentID: agent.AgentID, ChatSessionID: session.ChatSessionID, ConversationID: session.ConversationID,
		MessageID: "m2", Role: model.ChatRoleAgent, Content: "I am Atlas.",
	})

	retriever := &fakeRetriever{}
	enhancer := &fakeEnhancer{reply: "Who are you?"}
	completer := &fakeCompleter{reply: "I am Atlas, your assistant."}
	o := New(&fakeAgentLoader{agent: agent}, &fakeAgentStore{agent: agent}, sessions, retriever, enhancer, completer)

	turn, err := o.Prepare(context.Background(), agent.AgentID, "web-session1", "again?")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !enhancer.called {
		t.Fatal("expected the enhancer to run when history is present")
	}
	lower := strings.ToLower(turn.EnhancedQuery)
	if !strings.Contains(lower, "who") && !strings.Contains(lower, "you") {
		t.Errorf("EnhancedQuery = %q, want it to resolve the reference to the prior question", turn.EnhancedQuery)
	}
	if retriever.lastQuery() != turn.EnhancedQuery {
		t.Errorf("retrieval ran against %q, want the enhanced query %q", retriever.lastQuery(), turn.EnhancedQuery)
	}

	var sawHistory bool
	for _, m := range turn.Messages {
		if m.Content == "I am Atlas." && m.Role == llm.RoleAssistant {
			sawHistory = true
		}
	}
	if !sawHistory {
		t.Errorf("expected the prior assistant turn to reach the completion messages: %+v", turn.Messages)
	}

	answer, err := turn.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if answer == "" {
		t.Fatal("expected a coherent reply")
	}

	waitForMessages(t, sessions, 4)
	msgs := sessions.messagesIn(session.ConversationID)
	last := msgs[len(msgs)-1]
	if last.Role != model.ChatRoleAgent || last.MessageID == msgs[len(msgs)-2].MessageID {
		t.Errorf("expected the new agent message to have its own id distinct from the user message, got %+v", last)
	}
}

// Scenario 3: a retrieved source card carrying catalog fields (product_name,
// price) reaches the formatted prompt verbatim.
func TestOrchestrator_CatalogFields_ReachThePrompt(t *testing.T) {
	price := 9.99
	name := "Widget"
	retriever := &fakeRetriever{results: []retrieve.Result{{
		KnowledgeSource: "https://shop.example.com/widget",
		KnowledgeType:   "url",
		Score:           0.95,
		Summary:         "A great widget.",
		ProductName:     &name,
		Price:           &price,
		TextContent:     "[Chunk 0]\nThe widget costs $9.99 and ships same day.",
	}}}
	o := New(
		&fakeAgentLoader{agent: testAgent()},
		&fakeAgentStore{agent: testAgent()},
		&fakeSessionStore{},
		retriever,
		&fakeEnhancer{},
		&fakeCompleter{reply: "It costs $9.99."},
	)

	turn, err := o.Prepare(context.Background(), "agent1", "web-session1", "how much is the widget?")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	var kbMessage string
	for _, m := range turn.Messages {
		if strings.Contains(m.Content, "Knowledge base context") {
			kbMessage = m.Content
		}
	}
	if kbMessage == "" {
		t.Fatal("expected a Knowledge-Base message in the built message list")
	}
	if !strings.Contains(kbMessage, "product_name: Widget") {
		t.Errorf("KB block missing product_name: %q", kbMessage)
	}
	if !strings.Contains(kbMessage, "price: 9.99") {
		t.Errorf("KB block missing price: %q", kbMessage)
	}
}

// Scenario 4: rotating the conversation between two turns means the second
// turn's history fetch sees nothing from the first, even though both
// conversations remain retrievable under the session.
func TestOrchestrator_RotateConversation_IsolatesHistoryBetweenTurns(t *testing.T) {
	sessions := &fakeSessionStore{}
	agent := testAgent()
	o := New(&fakeAgentLoader{agent: agent}, &fakeAgentStore{agent: agent}, sessions, &fakeRetriever{}, &fakeEnhancer{}, &fakeCompleter{reply: "ok"})

	turn1, err := o.Prepare(context.Background(), agent.AgentID, "web-session1", "hello")
	if err != nil {
		t.Fatalf("Prepare (turn 1): %v", err)
	}
	firstConv := turn1.Session.ConversationID
	if _, err := turn1.Complete(context.Background(), nil); err != nil {
		t.Fatalf("Complete (turn 1): %v", err)
	}
	waitForMessages(t, sessions, 2)

	newID, err := o.RotateConversation(context.Background(), agent.AgentID, "web-session1")
	if err != nil {
		t.Fatalf("RotateConversation: %v", err)
	}

	turn2, err := o.Prepare(context.Background(), agent.AgentID, "web-session1", "hello again")
	if err != nil {
		t.Fatalf("Prepare (turn 2): %v", err)
	}
	if turn2.Session.ConversationID != newID {
		t.Fatalf("turn2 conversation = %q, want %q", turn2.Session.ConversationID, newID)
	}
	history, _ := sessions.RecentMessages(context.Background(), agent.AgentID, "web-session1", newID, 10)
	if len(history) != 0 {
		t.Errorf("expected zero prior messages in the rotated conversation, got %d", len(history))
	}

	if _, err := turn2.Complete(context.Background(), nil); err != nil {
		t.Fatalf("Complete (turn 2): %v", err)
	}
	waitForMessages(t, sessions, 4)

	if len(sessions.messagesIn(firstConv)) != 2 {
		t.Errorf("first conversation should still retain its 2 messages, got %d", len(sessions.messagesIn(firstConv)))
	}
	if len(sessions.messagesIn(newID)) != 2 {
		t.Errorf("second conversation should have its own 2 messages, got %d", len(sessions.messagesIn(newID)))
	}
}

func TestOrchestrator_Complete_PersistsBothMessages(t *testing.T) {
	sessions := &fakeSessionStore{}
	o := New(
		&fakeAgentLoader{agent: testAgent()},
		&fakeAgentStore{agent: testAgent()},
		sessions,
		&fakeRetriever{},
		&fakeEnhancer{},
		&fakeCompleter{reply: "an answer"},
	)

	turn, err := o.Prepare(context.Background(), "agent1", "web-session1", "hello")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	answer, err := turn.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if answer != "an answer" {
		t.Errorf("answer = %q, want %q", answer, "an answer")
	}

	waitForMessages(t, sessions, 2)
	msgs := sessions.messagesIn(turn.Session.ConversationID)
	if msgs[0].Role != model.ChatRoleUser || msgs[1].Role != model.ChatRoleAgent {
		t.Errorf("unexpected message roles: %+v", msgs)
	}
}

func TestOrchestrator_Complete_PropagatesLLMError(t *testing.T) {
	o := New(
		&fakeAgentLoader{agent: testAgent()},
		&fakeAgentStore{agent: testAgent()},
		&fakeSessionStore{},
		&fakeRetriever{},
		&fakeEnhancer{},
		&fakeCompleter{err: errors.New("upstream exploded")},
	)

	turn, err := o.Prepare(context.Background(), "agent1", "web-session1", "hello")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := turn.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected Complete to propagate the LLM error")
	}
}

func TestOrchestrator_Stream_AccumulatesChunksAndPersists(t *testing.T) {
	sessions := &fakeSessionStore{}
	o := New(
		&fakeAgentLoader{agent: testAgent()},
		&fakeAgentStore{agent: testAgent()},
		sessions,
		&fakeRetriever{},
		&fakeEnhancer{},
		&fakeCompleter{},
	)

	turn, err := o.Prepare(context.Background(), "agent1", "web-session1", "hello")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	text, errc := turn.Stream(context.Background())
	var full string
	for chunk := range text {
		full += chunk
	}
	if err, ok := <-errc; ok && err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if full != "hello world" {
		t.Errorf("streamed text = %q, want %q", full, "hello world")
	}

	waitForMessages(t, sessions, 2)
	msgs := sessions.messagesIn(turn.Session.ConversationID)
	if msgs[1].Content != "hello world" {
		t.Errorf("persisted agent message = %q, want %q", msgs[1].Content, "hello world")
	}
}

func TestOrchestrator_RotateConversation(t *testing.T) {
	sessions := &fakeSessionStore{session: &model.ChatSession{AgentID: "agent1", ChatSessionID: "web-session1", ConversationID: "old"}}
	o := New(&fakeAgentLoader{}, &fakeAgentStore{}, sessions, &fakeRetriever{}, &fakeEnhancer{}, &fakeCompleter{})

	newID, err := o.RotateConversation(context.Background(), "agent1", "web-session1")
	if err != nil {
		t.Fatalf("RotateConversation: %v", err)
	}
	if newID == "" || newID == "old" {
		t.Errorf("expected a fresh conversation id, got %q", newID)
	}
	if sessions.rotated != newID {
		t.Errorf("store saw rotate(%q), want %q", sessions.rotated, newID)
	}
}

// waitForMessages polls briefly since persistence happens on a detached
// goroutine after Complete/Stream returns.
func waitForMessages(t *testing.T, s *fakeSessionStore, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.messageCount() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d persisted messages, got %d", want, s.messageCount())
}
