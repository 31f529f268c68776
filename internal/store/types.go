// Package store persists the entities surrounding the matching engine:
// projects, conversations, transcriptions, keyword sets, and API keys.
//
// The engine itself never touches storage; handlers load fully materialized
// inputs here and hand them to internal/match.
package store

import (
	"time"

	"github.com/callsift/callsift/internal/match"
)

// Project is a builder's project. Keyword sets and conversations hang off a
// (project, builder name) pair.
type Project struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	BuilderName string    `json:"builder_name"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Conversation is one recorded call.
type Conversation struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	ProjectID      int    `json:"project_id"`
}

// Transcription is the diarized transcript of a conversation. Segments is the
// ordered utterance list consumed by the matching engine.
type Transcription struct {
	TranscriptionID string          `json:"transcription_id"`
	ConversationID  string          `json:"conversation_id"`
	TranscriptText  string          `json:"transcript_text"`
	Segments        []match.Segment `json:"diarized_segments"`
}

// KeywordRecord is the stored keyword set for a (project, builder) pair.
//
// The set is persisted as a JSONB array of {category, keywords} objects
// rather than a JSON object keyed by category: jsonb does not preserve object
// key order, and category order is part of the report contract.
type KeywordRecord struct {
	ID          int              `json:"id"`
	ProjectID   int              `json:"project_id"`
	BuilderName string           `json:"builder_name"`
	Set         match.KeywordSet `json:"keywords"`
	CreatedOn   time.Time        `json:"created_on"`
	CreatedBy   string           `json:"created_by"`
	UpdatedOn   time.Time        `json:"updated_on"`
	UpdatedBy   string           `json:"updated_by"`
}

// APIKey is an issued service credential. Key holds the secret token; it is
// returned to the caller exactly once, at creation.
type APIKey struct {
	KeyID       string     `json:"key_id"`
	Key         string     `json:"-"`
	OwnerName   string     `json:"owner_name"`
	OwnerEmail  string     `json:"owner_email"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}
