package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GeneratedBy values recorded on versions
const (
	GeneratedByRun  = "generation_run"
	GeneratedByUser = "user"
)

// Content types produced by generation
const (
	ContentTypeMarkdown = "text/markdown"
	ContentTypeJSON     = "application/json"
)

// Version is one entry in a subsection's append-only content history
type Version struct {
	ID            uuid.UUID `json:"id"`
	SubsectionID  uuid.UUID `json:"subsection_id"`
	VersionNumber int       `json:"version_number"`
	Content       string    `json:"content"`
	ContentType   string    `json:"content_type"`
	Instructions  string    `json:"instructions"`
	GeneratedBy   string    `json:"generated_by"`
	IsCurrent     bool      `json:"is_current"`
	CreatedAt     time.Time `json:"created_at"`
}

// VersionInput is the content written by appendVersion
type VersionInput struct {
	Content      string
	ContentType  string
	Instructions string
	GeneratedBy  string
}

// Payload is the result of one retrieval call
type Payload struct {
	SourceID   string          `json:"source_id"`
	MethodID   string          `json:"method_id"`
	Parameters map[string]any  `json:"parameters"`
	Data       json.RawMessage `json:"data"`
}
