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

// ErrNotFound is returned by repository lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// AgentRepo persists Agent rows in atlas_agents.
type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// Create inserts a new agent row, used on build-agent.
func (r *AgentRepo) Create(ctx context.Context, a *model.Agent) error {
	const q = `
		INSERT INTO atlas_agents
			(agent_id, owner_user_id, display_name, aliases, llm_model, temperature,
			 system_prompt, welcome_message, agent_status, agent_current_task, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, q,
		a.AgentID, a.OwnerUserID, a.DisplayName, a.Aliases, a.LLMModel, a.Temperature,
		a.SystemPrompt, a.WelcomeMessage, a.AgentStatus, a.AgentCurrentTask, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store.AgentRepo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a single agent by id.
func (r *AgentRepo) GetByID(ctx context.Context, agentID string) (*model.Agent, error) {
	const q = `
		SELECT agent_id, owner_user_id, display_name, aliases, llm_model, temperature,
		       system_prompt, welcome_message, agent_status, agent_current_task, created_at, updated_at
		FROM atlas_agents WHERE agent_id = $1`

	a := &model.Agent{}
	err := r.pool.QueryRow(ctx, q, agentID).Scan(
		&a.AgentID, &a.OwnerUserID, &a.DisplayName, &a.Aliases, &a.LLMModel, &a.Temperature,
		&a.SystemPrompt, &a.WelcomeMessage, &a.AgentStatus, &a.AgentCurrentTask, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.AgentRepo.GetByID: %w", err)
	}
	return a, nil
}

// UpdateStatus transitions agent_status (and optionally agent_current_task),
// used by the indexer to report ingestion progress.
func (r *AgentRepo) UpdateStatus(ctx context.Context, agentID string, status model.AgentStatus, currentTask string) error {
	const q = `
		UPDATE atlas_agents SET agent_status = $2, agent_current_task = $3, updated_at = $4
		WHERE agent_id = $1`

	tag, err := r.pool.Exec(ctx, q, agentID, status, currentTask, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store.AgentRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateConfig applies an owner edit: display name, persona, model, etc.
// Every listed column is overwritten, including with zero values.
func (r *AgentRepo) UpdateConfig(ctx context.Context, a *model.Agent) error {
	const q = `
		UPDATE atlas_agents SET
			display_name = $2, aliases = $3, llm_model = $4, temperature = $5,
			system_prompt = $6, welcome_message = $7, updated_at = $8
		WHERE agent_id = $1`

	tag, err := r.pool.Exec(ctx, q,
		a.AgentID, a.DisplayName, a.Aliases, a.LLMModel, a.Temperature,
		a.SystemPrompt, a.WelcomeMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store.AgentRepo.UpdateConfig: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
