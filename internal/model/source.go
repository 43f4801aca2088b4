package model

import "time"

// KnowledgeType enumerates the four kinds of knowledge source an agent can
// be fed. The zero value is never valid — every source must declare one.
type KnowledgeType string

const (
	KnowledgeTypeURL        KnowledgeType = "url"
	KnowledgeTypeFile       KnowledgeType = "file"
	KnowledgeTypeCustomText KnowledgeType = "custom_text"
	KnowledgeTypeCustomQA   KnowledgeType = "custom_qa"
)

// SourceStatus tracks a KnowledgeSource through the ingestion pipeline.
type SourceStatus string

const (
	SourceStatusIndexing SourceStatus = "indexing"
	SourceStatusIndexed  SourceStatus = "indexed"
	SourceStatusActive   SourceStatus = "active"
	SourceStatusFailed   SourceStatus = "failed"
)

// KnowledgeSource is a logical, per-agent unit of indexed content keyed by a
// knowledge_source string and a KnowledgeType. For URLs the key is the
// normalized canonical URL; for files, the filename; for custom text and
// Q&A, an author-chosen alias. (AgentID, KnowledgeType, KnowledgeSource) is
// unique — re-indexing atomically replaces all prior points for that tuple.
type KnowledgeSource struct {
	AgentID         string        `json:"agentId"`
	KnowledgeType   KnowledgeType `json:"knowledgeType"`
	KnowledgeSource string        `json:"knowledgeSource"`
	Status          SourceStatus  `json:"status"`

	// Type-specific payload. Exactly one of these is populated, matching
	// KnowledgeType.
	URL        *URLSource        `json:"url,omitempty"`
	File       *FileSource       `json:"file,omitempty"`
	CustomText *CustomTextSource `json:"customText,omitempty"`
	QAPair     *QAPairSource     `json:"qaPair,omitempty"`

	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// URLSource is the payload carried by a KnowledgeTypeURL source.
type URLSource struct {
	BaseURL      string   `json:"baseUrl"`
	Links        []string `json:"links,omitempty"`
	NormalizedURL string  `json:"normalizedUrl"`
}

// FileSource is the payload carried by a KnowledgeTypeFile source.
type FileSource struct {
	FileName   string `json:"fileName"`
	FileKey    string `json:"fileKey"`
	CDNURL     string `json:"cdnUrl,omitempty"`
	FileSource string `json:"fileSource,omitempty"`
}

// CustomTextSource is the payload carried by a KnowledgeTypeCustomText source.
type CustomTextSource struct {
	Alias string `json:"customTextAlias"`
	Text  string `json:"customText"`
}

// QAPairSource is the payload carried by a KnowledgeTypeCustomQA source.
type QAPairSource struct {
	Alias    string `json:"qnaAlias"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CursorToken is the stable pagination key for every per-source listing
// endpoint: (updated_at, id) compound ordering, never a bare id.
type CursorToken struct {
	UpdatedAt time.Time
	ID        string
}
