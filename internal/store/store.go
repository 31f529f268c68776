package store

import "context"

// Store provides access to persisted projects, conversations, transcriptions,
// keyword sets, and API keys. Implementations must be safe for concurrent
// use. Lookups return (nil, nil) when no row exists.
type Store interface {
	// GetProject retrieves a project by ID.
	GetProject(ctx context.Context, id int) (*Project, error)

	// GetProjectByBuilder retrieves a project by ID only when its builder
	// name matches exactly.
	GetProjectByBuilder(ctx context.Context, id int, builderName string) (*Project, error)

	// GetConversation retrieves a conversation by its external ID.
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)

	// GetTranscription retrieves the transcription for a conversation.
	GetTranscription(ctx context.Context, conversationID string) (*Transcription, error)

	// GetKeywords retrieves the keyword set for a (project, builder) pair.
	// The builder name comparison is case-insensitive.
	GetKeywords(ctx context.Context, projectID int, builderName string) (*KeywordRecord, error)

	// ReplaceKeywords creates or replaces the keyword set for the record's
	// (project, builder) pair.
	ReplaceKeywords(ctx context.Context, rec *KeywordRecord) error

	// CreateAPIKey inserts a new API key.
	CreateAPIKey(ctx context.Context, key *APIKey) error

	// GetAPIKeyByToken retrieves an active API key by its secret token.
	// Inactive keys are not returned.
	GetAPIKeyByToken(ctx context.Context, token string) (*APIKey, error)

	// ListAPIKeys returns all API keys, newest first, without their tokens.
	ListAPIKeys(ctx context.Context) ([]APIKey, error)

	// SetAPIKeyActive activates or deactivates a key by its key ID. Returns
	// ErrKeyNotFound when no such key exists.
	SetAPIKeyActive(ctx context.Context, keyID string, active bool) error

	// TouchAPIKey updates a key's last-used timestamp.
	TouchAPIKey(ctx context.Context, keyID string) error
}
