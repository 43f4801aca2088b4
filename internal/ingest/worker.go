package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/atlas-ai/knowledge-core/internal/model"
)

// Indexer is the subset of index.Indexer the worker needs.
type Indexer interface {
	IndexURL(ctx context.Context, agentID, normalizedURL, text string) error
	IndexFile(ctx context.Context, agentID, fileName, text string) error
	IndexCustomText(ctx context.Context, agentID, alias, text string) error
	IndexQAPair(ctx context.Context, agentID, alias, question, answer string) error
}

// StatusRecorder persists ingestion progress so the owning agent's
// dashboard can reflect it, independent of whether the worker itself
// survives to see the outcome.
type StatusRecorder interface {
	UpsertStatus(ctx context.Context, agentID string, kt model.KnowledgeType, source string, status model.SourceStatus, errMsg string) error
}

// Worker drains a Pub/Sub subscription and drives the indexer for each
// message, acking only once indexing (or its recorded failure) completes.
type Worker struct {
	sub     *pubsub.Subscription
	indexer Indexer
	status  StatusRecorder
}

func NewWorker(sub *pubsub.Subscription, indexer Indexer, status StatusRecorder) *Worker {
	return &Worker{sub: sub, indexer: indexer, status: status}
}

// Run blocks, processing messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	err := w.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		req, err := Unmarshal(msg.Data)
		if err != nil {
			slog.Error("ingest.Worker: malformed message, dropping", "error", err)
			msg.Ack()
			return
		}

		if err := w.process(ctx, req); err != nil {
			slog.Error("ingest.Worker: indexing failed", "agent_id", req.AgentID, "source", req.Source, "error", err)
			if recErr := w.status.UpsertStatus(ctx, req.AgentID, req.KnowledgeType, req.Source, model.SourceStatusFailed, err.Error()); recErr != nil {
				slog.Error("ingest.Worker: failed to record failure status", "error", recErr)
			}
			// Ack anyway: a retry would hit the same permanent error (bad
			// content, unsupported file type) far more often than a
			// transient one, and Pub/Sub redelivery isn't a substitute for
			// the owner re-triggering ingestion once they've fixed the source.
			msg.Ack()
			return
		}

		if err := w.status.UpsertStatus(ctx, req.AgentID, req.KnowledgeType, req.Source, model.SourceStatusIndexed, ""); err != nil {
			slog.Error("ingest.Worker: failed to record success status", "error", err)
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("ingest.Worker.Run: %w", err)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, req Request) error {
	switch req.KnowledgeType {
	case model.KnowledgeTypeURL:
		return w.indexer.IndexURL(ctx, req.AgentID, req.Source, req.Text)
	case model.KnowledgeTypeFile:
		return w.indexer.IndexFile(ctx, req.AgentID, req.Source, req.Text)
	case model.KnowledgeTypeCustomText:
		return w.indexer.IndexCustomText(ctx, req.AgentID, req.Source, req.Text)
	case model.KnowledgeTypeCustomQA:
		return w.indexer.IndexQAPair(ctx, req.AgentID, req.Source, req.Question, req.Answer)
	default:
		return fmt.Errorf("ingest.Worker: unknown knowledge type %q", req.KnowledgeType)
	}
}
