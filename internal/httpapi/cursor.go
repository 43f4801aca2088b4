package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atlas-ai/knowledge-core/internal/model"
)

// cursorWire is the JSON shape base64-encoded into the opaque cursor string
// handed back to and accepted from API callers.
type cursorWire struct {
	UpdatedAt time.Time `json:"u"`
	ID        string    `json:"i"`
}

func encodeCursor(t *model.CursorToken) string {
	if t == nil {
		return ""
	}
	data, err := json.Marshal(cursorWire{UpdatedAt: t.UpdatedAt, ID: t.ID})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(raw string) (*model.CursorToken, error) {
	if raw == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("httpapi: malformed cursor: %w", err)
	}
	var w cursorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("httpapi: malformed cursor: %w", err)
	}
	return &model.CursorToken{UpdatedAt: w.UpdatedAt, ID: w.ID}, nil
}
