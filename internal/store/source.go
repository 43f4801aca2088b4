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

// SourceRepo persists KnowledgeSource rows. Status/error tracking lives in
// atlas_knowledge_sources, keyed by (agent_id, knowledge_type,
// knowledge_source); the type-specific payload lives in its own table.
type SourceRepo struct {
	pool *pgxpool.Pool
}

func NewSourceRepo(pool *pgxpool.Pool) *SourceRepo {
	return &SourceRepo{pool: pool}
}

// UpsertStatus records ingestion progress for a source, creating the status
// row on first write.
func (r *SourceRepo) UpsertStatus(ctx context.Context, agentID string, kt model.KnowledgeType, source string, status model.SourceStatus, errMsg string) error {
	const q = `
		INSERT INTO atlas_knowledge_sources (agent_id, knowledge_type, knowledge_source, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (agent_id, knowledge_type, knowledge_source)
		DO UPDATE SET status = $4, error = $5, updated_at = $6`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, q, agentID, kt, source, status, errMsg, now)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.UpsertStatus: %w", err)
	}
	return nil
}

// DeleteStatus removes the status row, used when a source is fully deleted.
func (r *SourceRepo) DeleteStatus(ctx context.Context, agentID string, kt model.KnowledgeType, source string) error {
	const q = `DELETE FROM atlas_knowledge_sources WHERE agent_id = $1 AND knowledge_type = $2 AND knowledge_source = $3`
	_, err := r.pool.Exec(ctx, q, agentID, kt, source)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.DeleteStatus: %w", err)
	}
	return nil
}

// UpsertURL writes (or replaces) the url-specific payload for a source.
func (r *SourceRepo) UpsertURL(ctx context.Context, agentID string, s *model.URLSource) error {
	const q = `
		INSERT INTO atlas_agent_urls (agent_id, knowledge_source, base_url, links, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (agent_id, knowledge_source)
		DO UPDATE SET base_url = $3, links = $4, updated_at = $5`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, q, agentID, s.NormalizedURL, s.BaseURL, s.Links, now)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.UpsertURL: %w", err)
	}
	return nil
}

// UpsertFile writes (or replaces) the file-specific payload for a source.
func (r *SourceRepo) UpsertFile(ctx context.Context, agentID string, s *model.FileSource) error {
	const q = `
		INSERT INTO atlas_agent_files (agent_id, knowledge_source, file_key, cdn_url, file_source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (agent_id, knowledge_source)
		DO UPDATE SET file_key = $3, cdn_url = $4, file_source = $5, updated_at = $6`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, q, agentID, s.FileName, s.FileKey, s.CDNURL, s.FileSource, now)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.UpsertFile: %w", err)
	}
	return nil
}

// UpsertCustomText writes (or replaces) a custom-text source.
func (r *SourceRepo) UpsertCustomText(ctx context.Context, agentID string, s *model.CustomTextSource) error {
	const q = `
		INSERT INTO atlas_custom_texts (agent_id, knowledge_source, text_content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (agent_id, knowledge_source)
		DO UPDATE SET text_content = $3, updated_at = $4`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, q, agentID, s.Alias, s.Text, now)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.UpsertCustomText: %w", err)
	}
	return nil
}

// UpsertQAPair writes (or replaces) a custom Q&A source.
func (r *SourceRepo) UpsertQAPair(ctx context.Context, agentID string, s *model.QAPairSource) error {
	const q = `
		INSERT INTO atlas_qa_pairs (agent_id, knowledge_source, question, answer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (agent_id, knowledge_source)
		DO UPDATE SET question = $3, answer = $4, updated_at = $5`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, q, agentID, s.Alias, s.Question, s.Answer, now)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.UpsertQAPair: %w", err)
	}
	return nil
}

// DeleteURL removes a url source's payload row.
func (r *SourceRepo) DeleteURL(ctx context.Context, agentID, normalizedURL string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM atlas_agent_urls WHERE agent_id = $1 AND knowledge_source = $2`, agentID, normalizedURL)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.DeleteURL: %w", err)
	}
	return nil
}

// DeleteFile removes a file source's payload row.
func (r *SourceRepo) DeleteFile(ctx context.Context, agentID, fileName string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM atlas_agent_files WHERE agent_id = $1 AND knowledge_source = $2`, agentID, fileName)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.DeleteFile: %w", err)
	}
	return nil
}

// DeleteCustomText removes a custom-text source's payload row.
func (r *SourceRepo) DeleteCustomText(ctx context.Context, agentID, alias string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM atlas_custom_texts WHERE agent_id = $1 AND knowledge_source = $2`, agentID, alias)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.DeleteCustomText: %w", err)
	}
	return nil
}

// DeleteQAPair removes a Q&A source's payload row.
func (r *SourceRepo) DeleteQAPair(ctx context.Context, agentID, alias string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM atlas_qa_pairs WHERE agent_id = $1 AND knowledge_source = $2`, agentID, alias)
	if err != nil {
		return fmt.Errorf("store.SourceRepo.DeleteQAPair: %w", err)
	}
	return nil
}

// ListURLs returns a page of url sources ordered by (updated_at, knowledge_source)
// descending, resuming after the given cursor when non-nil.
func (r *SourceRepo) ListURLs(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.URLSource, *model.CursorToken, error) {
	rows, err := r.listPage(ctx, "atlas_agent_urls", "base_url, links", agentID, after, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("store.SourceRepo.ListURLs: %w", err)
	}
	defer rows.Close()

	var out []*model.URLSource
	var next *model.CursorToken
	for rows.Next() {
		var ks, baseURL string
		var links []string
		var updatedAt time.Time
		if err := rows.Scan(&ks, &baseURL, &links, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("store.SourceRepo.ListURLs: scan: %w", err)
		}
		out = append(out, &model.URLSource{NormalizedURL: ks, BaseURL: baseURL, Links: links})
		next = &model.CursorToken{UpdatedAt: updatedAt, ID: ks}
	}
	return out, next, rows.Err()
}

// ListFiles returns a page of file sources.
func (r *SourceRepo) ListFiles(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.FileSource, *model.CursorToken, error) {
	rows, err := r.listPage(ctx, "atlas_agent_files", "file_key, cdn_url, file_source", agentID, after, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("store.SourceRepo.ListFiles: %w", err)
	}
	defer rows.Close()

	var out []*model.FileSource
	var next *model.CursorToken
	for rows.Next() {
		var ks, fileKey, cdnURL, fileSource string
		var updatedAt time.Time
		if err := rows.Scan(&ks, &fileKey, &cdnURL, &fileSource, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("store.SourceRepo.ListFiles: scan: %w", err)
		}
		out = append(out, &model.FileSource{FileName: ks, FileKey: fileKey, CDNURL: cdnURL, FileSource: fileSource})
		next = &model.CursorToken{UpdatedAt: updatedAt, ID: ks}
	}
	return out, next, rows.Err()
}

// ListCustomTexts returns a page of custom-text sources.
func (r *SourceRepo) ListCustomTexts(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.CustomTextSource, *model.CursorToken, error) {
	rows, err := r.listPage(ctx, "atlas_custom_texts", "text_content", agentID, after, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("store.SourceRepo.ListCustomTexts: %w", err)
	}
	defer rows.Close()

	var out []*model.CustomTextSource
	var next *model.CursorToken
	for rows.Next() {
		var ks, text string
		var updatedAt time.Time
		if err := rows.Scan(&ks, &text, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("store.SourceRepo.ListCustomTexts: scan: %w", err)
		}
		out = append(out, &model.CustomTextSource{Alias: ks, Text: text})
		next = &model.CursorToken{UpdatedAt: updatedAt, ID: ks}
	}
	return out, next, rows.Err()
}

// ListQAPairs returns a page of Q&A sources.
func (r *SourceRepo) ListQAPairs(ctx context.Context, agentID string, after *model.CursorToken, limit int) ([]*model.QAPairSource, *model.CursorToken, error) {
	rows, err := r.listPage(ctx, "atlas_qa_pairs", "question, answer", agentID, after, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("store.SourceRepo.ListQAPairs: %w", err)
	}
	defer rows.Close()

	var out []*model.QAPairSource
	var next *model.CursorToken
	for rows.Next() {
		var ks, question, answer string
		var updatedAt time.Time
		if err := rows.Scan(&ks, &question, &answer, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("store.SourceRepo.ListQAPairs: scan: %w", err)
		}
		out = append(out, &model.QAPairSource{Alias: ks, Question: question, Answer: answer})
		next = &model.CursorToken{UpdatedAt: updatedAt, ID: ks}
	}
	return out, next, rows.Err()
}

func (r *SourceRepo) listPage(ctx context.Context, table, cols, agentID string, after *model.CursorToken, limit int) (pgx.Rows, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if after == nil {
		q := fmt.Sprintf(`SELECT knowledge_source, %s, updated_at FROM %s WHERE agent_id = $1 ORDER BY updated_at DESC, knowledge_source DESC LIMIT $2`, cols, table)
		return r.pool.Query(ctx, q, agentID, limit)
	}
	q := fmt.Sprintf(`
		SELECT knowledge_source, %s, updated_at FROM %s
		WHERE agent_id = $1 AND (updated_at, knowledge_source) < ($2, $3)
		ORDER BY updated_at DESC, knowledge_source DESC LIMIT $4`, cols, table)
	return r.pool.Query(ctx, q, agentID, after.UpdatedAt, after.ID, limit)
}

// GetStatus fetches the ingestion status row for a single source.
func (r *SourceRepo) GetStatus(ctx context.Context, agentID string, kt model.KnowledgeType, source string) (*model.KnowledgeSource, error) {
	const q = `
		SELECT agent_id, knowledge_type, knowledge_source, status, error, created_at, updated_at
		FROM atlas_knowledge_sources WHERE agent_id = $1 AND knowledge_type = $2 AND knowledge_source = $3`

	ks := &model.KnowledgeSource{}
	err := r.pool.QueryRow(ctx, q, agentID, kt, source).Scan(
		&ks.AgentID, &ks.KnowledgeType, &ks.KnowledgeSource, &ks.Status, &ks.Error, &ks.CreatedAt, &ks.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.SourceRepo.GetStatus: %w", err)
	}
	return ks, nil
}
