package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-ai/knowledge-core/internal/model"
)

// ChatRepo persists ChatSession and ChatMessage rows.
type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

// GetOrCreateSession fetches the session for (agentID, chatSessionID),
// creating one with a fresh conversation_id if it does not exist yet.
func (r *ChatRepo) GetOrCreateSession(ctx context.Context, agentID, chatSessionID, newConversationID string) (*model.ChatSession, error) {
	s, err := r.GetSession(ctx, agentID, chatSessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	s = &model.ChatSession{
		AgentID:        agentID,
		ChatSessionID:  chatSessionID,
		ConversationID: newConversationID,
		Channel:        model.ChannelFromSessionID(chatSessionID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	const q = `
		INSERT INTO atlas_chat_sessions (agent_id, chat_session_id, conversation_id, channel, display_name, visitor_online, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (agent_id, chat_session_id) DO NOTHING`

	_, err = r.pool.Exec(ctx, q, s.AgentID, s.ChatSessionID, s.ConversationID, s.Channel, s.DisplayName, s.VisitorOnline, now)
	if err != nil {
		return nil, fmt.Errorf("store.ChatRepo.GetOrCreateSession: insert: %w", err)
	}

	// Another request may have won the race; re-read to get the winning row.
	return r.GetSession(ctx, agentID, chatSessionID)
}

// GetSession fetches a chat session.
func (r *ChatRepo) GetSession(ctx context.Context, agentID, chatSessionID string) (*model.ChatSession, error) {
	const q = `
		SELECT agent_id, chat_session_id, conversation_id, channel, display_name, visitor_online, created_at, updated_at
		FROM atlas_chat_sessions WHERE agent_id = $1 AND chat_session_id = $2`

	s := &model.ChatSession{}
	err := r.pool.QueryRow(ctx, q, agentID, chatSessionID).Scan(
		&s.AgentID, &s.ChatSessionID, &s.ConversationID, &s.Channel, &s.DisplayName, &s.VisitorOnline, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.ChatRepo.GetSession: %w", err)
	}
	return s, nil
}

// RotateConversationID replaces the session's conversation_id, clearing the
// visible thread while leaving session identity and history intact.
func (r *ChatRepo) RotateConversationID(ctx context.Context, agentID, chatSessionID, newConversationID string) error {
	const q = `
		UPDATE atlas_chat_sessions SET conversation_id = $3, updated_at = $4
		WHERE agent_id = $1 AND chat_session_id = $2`

	tag, err := r.pool.Exec(ctx, q, agentID, chatSessionID, newConversationID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store.ChatRepo.RotateConversationID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage inserts a single chat message.
func (r *ChatRepo) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	const q = `
		INSERT INTO atlas_chat_messages
			(agent_id, chat_session_id, conversation_id, message_id, role, content, enhanced_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, q,
		m.AgentID, m.ChatSessionID, m.ConversationID, m.MessageID, m.Role, m.Content, m.EnhancedMessage, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.ChatRepo.AppendMessage: %w", err)
	}
	return nil
}

// RecentMessages fetches the last `limit` messages for the current
// conversation, ordered oldest-first (ready to feed straight into a prompt).
func (r *ChatRepo) RecentMessages(ctx context.Context, agentID, chatSessionID, conversationID string, limit int) ([]*model.ChatMessage, error) {
	const q = `
		SELECT agent_id, chat_session_id, conversation_id, message_id, role, content, enhanced_message, created_at
		FROM atlas_chat_messages
		WHERE agent_id = $1 AND chat_session_id = $2 AND conversation_id = $3
		ORDER BY created_at DESC LIMIT $4`

	rows, err := r.pool.Query(ctx, q, agentID, chatSessionID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ChatRepo.RecentMessages: %w", err)
	}
	defer rows.Close()

	var out []*model.ChatMessage
	for rows.Next() {
		m := &model.ChatMessage{}
		if err := rows.Scan(&m.AgentID, &m.ChatSessionID, &m.ConversationID, &m.MessageID, &m.Role, &m.Content, &m.EnhancedMessage, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.ChatRepo.RecentMessages: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
