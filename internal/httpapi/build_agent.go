package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-ai/knowledge-core/internal/apperr"
	"github.com/atlas-ai/knowledge-core/internal/fetch"
	"github.com/atlas-ai/knowledge-core/internal/ingest"
	"github.com/atlas-ai/knowledge-core/internal/model"
	"github.com/atlas-ai/knowledge-core/internal/store"
)

// AgentWriter is the subset of store.AgentRepo the build/update handlers need.
type AgentWriter interface {
	Create(ctx context.Context, a *model.Agent) error
	GetByID(ctx context.Context, agentID string) (*model.Agent, error)
	UpdateStatus(ctx context.Context, agentID string, status model.AgentStatus, currentTask string) error
}

// SourceWriter is the subset of store.SourceRepo the build/update handlers need.
type SourceWriter interface {
	UpsertStatus(ctx context.Context, agentID string, kt model.KnowledgeType, source string, status model.SourceStatus, errMsg string) error
	UpsertURL(ctx context.Context, agentID string, s *model.URLSource) error
	UpsertFile(ctx context.Context, agentID string, s *model.FileSource) error
	UpsertCustomText(ctx context.Context, agentID string, s *model.CustomTextSource) error
	UpsertQAPair(ctx context.Context, agentID string, s *model.QAPairSource) error
}

// IngestDispatcher enqueues an already-extracted source for indexing.
type IngestDispatcher interface {
	Dispatch(ctx context.Context, req ingest.Request) error
}

// URLFetcher fetches rendered page text and links for a batch of URLs.
type URLFetcher interface {
	FetchBatch(ctx context.Context, urls []string, concurrency int) []fetch.URLResult
}

// FileTextExtractor pulls plain text out of an uploaded file.
type FileTextExtractor interface {
	Extract(ctx context.Context, gcsURI, fileName string) (string, error)
}

// BuildDeps wires the build-agent and update-agent handlers.
type BuildDeps struct {
	Agents      AgentWriter
	Sources     SourceWriter
	Dispatcher  IngestDispatcher
	URLs        URLFetcher
	Files       FileTextExtractor
	Concurrency int
}

type fileInput struct {
	FileName   string `json:"file_name"`
	FileKey    string `json:"file_key"`
	CDNURL     string `json:"cdn_url,omitempty"`
	FileSource string `json:"file_source,omitempty"`
}

type customTextInput struct {
	Alias string `json:"custom_text_alias"`
	Text  string `json:"custom_text"`
}

type qaInput struct {
	Alias    string `json:"qna_alias"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type buildAgentRequest struct {
	AgentID     string            `json:"agent_id,omitempty"`
	BaseURL     string            `json:"base_url,omitempty"`
	Links       []string          `json:"links,omitempty"`
	Files       []fileInput       `json:"files,omitempty"`
	CustomTexts []customTextInput `json:"custom_texts,omitempty"`
	QAPairs     []qaInput         `json:"qa_pairs,omitempty"`
}

type buildAgentResponse struct {
	Success bool   `json:"success"`
	AgentID string `json:"agent_id"`
}

// BuildAgent creates a new agent and kicks off asynchronous ingestion of
// every knowledge source in the request. The HTTP response returns as soon
// as the agent row is created — recording the sources, fetch/extract and
// index all happen on a detached goroutine.
func BuildAgent(deps BuildDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req buildAgentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}

		agentID := req.AgentID
		if agentID == "" {
			agentID = uuid.NewString()
		}

		now := time.Now().UTC()
		agent := &model.Agent{
			AgentID:     agentID,
			OwnerUserID: "",
			AgentStatus: model.AgentStatusIndexing,
			LLMModel:    "",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := deps.Agents.Create(r.Context(), agent); err != nil {
			writeError(w, apperr.Internal(err, "httpapi.BuildAgent: create agent"))
			return
		}

		runIngestion(context.Background(), deps, agentID, req)

		writeJSON(w, http.StatusOK, buildAgentResponse{Success: true, AgentID: agentID})
	}
}

// UpdateAgent re-runs ingestion for an existing agent's new or changed
// sources, transitioning it through "updating" back to "active".
func UpdateAgent(deps BuildDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req buildAgentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.AgentID == "" {
			writeError(w, apperr.Validation("agent_id is required"))
			return
		}

		if _, err := deps.Agents.GetByID(r.Context(), req.AgentID); err != nil {
			writeError(w, mapStoreErr(err, "agent %s", req.AgentID))
			return
		}

		if err := deps.Agents.UpdateStatus(r.Context(), req.AgentID, model.AgentStatusUpdating, "ingesting updated sources"); err != nil {
			writeError(w, apperr.Internal(err, "httpapi.UpdateAgent: set updating"))
			return
		}

		runIngestion(context.Background(), deps, req.AgentID, req)

		writeJSON(w, http.StatusOK, buildAgentResponse{Success: true, AgentID: req.AgentID})
	}
}

// runIngestion processes every source in the request on a background
// goroutine: normalize/fetch/extract, record status, dispatch to the
// indexing queue, then flip the agent back to active once every source has
// been attempted. A single source's failure never blocks the others.
func runIngestion(ctx context.Context, deps BuildDeps, agentID string, req buildAgentRequest) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("httpapi: ingestion goroutine panicked", "agent_id", agentID, "panic", rec)
			}
		}()

		var wg sync.WaitGroup

		urls := collectURLs(req)
		if len(urls) > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ingestURLs(ctx, deps, agentID, req.BaseURL, urls)
			}()
		}

		for _, f := range req.Files {
			wg.Add(1)
			go func(f fileInput) {
				defer wg.Done()
				ingestFile(ctx, deps, agentID, f)
			}(f)
		}

		for _, ct := range req.CustomTexts {
			wg.Add(1)
			go func(ct customTextInput) {
				defer wg.Done()
				ingestCustomText(ctx, deps, agentID, ct)
			}(ct)
		}

		for _, qa := range req.QAPairs {
			wg.Add(1)
			go func(qa qaInput) {
				defer wg.Done()
				ingestQAPair(ctx, deps, agentID, qa)
			}(qa)
		}

		wg.Wait()

		if err := deps.Agents.UpdateStatus(ctx, agentID, model.AgentStatusActive, ""); err != nil {
			slog.Error("httpapi: failed to mark agent active after ingestion", "agent_id", agentID, "error", err)
		}
	}()
}

func collectURLs(req buildAgentRequest) []string {
	var urls []string
	if req.BaseURL != "" {
		urls = append(urls, req.BaseURL)
	}
	urls = append(urls, req.Links...)
	return fetch.Dedup(urls)
}

func ingestURLs(ctx context.Context, deps BuildDeps, agentID, baseURL string, urls []string) {
	results := deps.URLs.FetchBatch(ctx, urls, deps.Concurrency)
	for _, res := range results {
		if res.Err != nil {
			slog.Warn("httpapi: url fetch failed", "agent_id", agentID, "url", res.URL, "error", res.Err)
			if err := deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeURL, res.URL, model.SourceStatusFailed, res.Err.Error()); err != nil {
				slog.Error("httpapi: failed to record url failure status", "error", err)
			}
			continue
		}

		source := &model.URLSource{BaseURL: baseURL, Links: res.Links, NormalizedURL: res.URL}
		if err := deps.Sources.UpsertURL(ctx, agentID, source); err != nil {
			slog.Error("httpapi: failed to persist url source", "agent_id", agentID, "url", res.URL, "error", err)
			continue
		}
		if err := deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeURL, res.URL, model.SourceStatusIndexing, ""); err != nil {
			slog.Error("httpapi: failed to set url status", "error", err)
		}

		err := deps.Dispatcher.Dispatch(ctx, ingest.Request{
			AgentID: agentID, KnowledgeType: model.KnowledgeTypeURL, Source: res.URL, Text: res.Text, BaseURL: baseURL,
		})
		if err != nil {
			slog.Error("httpapi: failed to dispatch url for indexing", "agent_id", agentID, "url", res.URL, "error", err)
			deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeURL, res.URL, model.SourceStatusFailed, err.Error())
		}
	}
}

func ingestFile(ctx context.Context, deps BuildDeps, agentID string, f fileInput) {
	source := &model.FileSource{FileName: f.FileName, FileKey: f.FileKey, CDNURL: f.CDNURL, FileSource: f.FileSource}
	if err := deps.Sources.UpsertFile(ctx, agentID, source); err != nil {
		slog.Error("httpapi: failed to persist file source", "agent_id", agentID, "file", f.FileName, "error", err)
		return
	}
	deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeFile, f.FileName, model.SourceStatusIndexing, "")

	gcsURI := f.CDNURL
	if gcsURI == "" {
		gcsURI = f.FileKey
	}
	text, err := deps.Files.Extract(ctx, gcsURI, f.FileName)
	if err != nil {
		slog.Warn("httpapi: file extraction failed", "agent_id", agentID, "file", f.FileName, "error", err)
		deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeFile, f.FileName, model.SourceStatusFailed, err.Error())
		return
	}

	err = deps.Dispatcher.Dispatch(ctx, ingest.Request{
		AgentID: agentID, KnowledgeType: model.KnowledgeTypeFile, Source: f.FileName, Text: text,
	})
	if err != nil {
		slog.Error("httpapi: failed to dispatch file for indexing", "agent_id", agentID, "file", f.FileName, "error", err)
		deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeFile, f.FileName, model.SourceStatusFailed, err.Error())
	}
}

func ingestCustomText(ctx context.Context, deps BuildDeps, agentID string, ct customTextInput) {
	source := &model.CustomTextSource{Alias: ct.Alias, Text: ct.Text}
	if err := deps.Sources.UpsertCustomText(ctx, agentID, source); err != nil {
		slog.Error("httpapi: failed to persist custom text source", "agent_id", agentID, "alias", ct.Alias, "error", err)
		return
	}
	deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeCustomText, ct.Alias, model.SourceStatusIndexing, "")

	err := deps.Dispatcher.Dispatch(ctx, ingest.Request{
		AgentID: agentID, KnowledgeType: model.KnowledgeTypeCustomText, Source: ct.Alias, Text: ct.Text,
	})
	if err != nil {
		slog.Error("httpapi: failed to dispatch custom text for indexing", "agent_id", agentID, "alias", ct.Alias, "error", err)
		deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeCustomText, ct.Alias, model.SourceStatusFailed, err.Error())
	}
}

func ingestQAPair(ctx context.Context, deps BuildDeps, agentID string, qa qaInput) {
	source := &model.QAPairSource{Alias: qa.Alias, Question: qa.Question, Answer: qa.Answer}
	if err := deps.Sources.UpsertQAPair(ctx, agentID, source); err != nil {
		slog.Error("httpapi: failed to persist qa source", "agent_id", agentID, "alias", qa.Alias, "error", err)
		return
	}
	deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeCustomQA, qa.Alias, model.SourceStatusIndexing, "")

	err := deps.Dispatcher.Dispatch(ctx, ingest.Request{
		AgentID: agentID, KnowledgeType: model.KnowledgeTypeCustomQA, Source: qa.Alias, Question: qa.Question, Answer: qa.Answer,
	})
	if err != nil {
		slog.Error("httpapi: failed to dispatch qa pair for indexing", "agent_id", agentID, "alias", qa.Alias, "error", err)
		deps.Sources.UpsertStatus(ctx, agentID, model.KnowledgeTypeCustomQA, qa.Alias, model.SourceStatusFailed, err.Error())
	}
}

func mapStoreErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("%s", msg)
	}
	return apperr.Internal(err, "%s", msg)
}
