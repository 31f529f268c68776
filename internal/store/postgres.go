package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/callsift/callsift/internal/match"
)

// ErrKeyNotFound is returned when an API-key mutation targets a key ID that
// does not exist.
var ErrKeyNotFound = errors.New("store: api key not found")

// Schema is the SQL DDL for all service tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id           SERIAL PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    builder_name TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    agent_id        TEXT NOT NULL DEFAULT '',
    project_id      INTEGER NOT NULL REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS transcriptions (
    transcription_id  TEXT PRIMARY KEY,
    conversation_id   TEXT NOT NULL REFERENCES conversations(conversation_id),
    transcript_text   TEXT NOT NULL DEFAULT '',
    diarized_segments JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_conversation ON transcriptions(conversation_id);

CREATE TABLE IF NOT EXISTS keywords (
    id           SERIAL PRIMARY KEY,
    project_id   INTEGER NOT NULL,
    builder_name TEXT NOT NULL,
    keywords     JSONB NOT NULL DEFAULT '[]',
    created_on   TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_by   TEXT NOT NULL DEFAULT '',
    updated_on   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_by   TEXT NOT NULL DEFAULT '',
    CONSTRAINT unique_builder_project UNIQUE (project_id, builder_name)
);

CREATE TABLE IF NOT EXISTS api_keys (
    key_id      TEXT PRIMARY KEY,
    key         TEXT NOT NULL UNIQUE,
    owner_name  TEXT NOT NULL,
    owner_email TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_used   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(key);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Keyword sets
// and diarized segments are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] using the given connection or
// pool. Call [PostgresStore.Migrate] once before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating all tables and indexes if they
// do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID. Returns (nil, nil) if not found.
func (s *PostgresStore) GetProject(ctx context.Context, id int) (*Project, error) {
	const query = `
		SELECT id, name, builder_name, location, description, created_at, updated_at
		FROM projects
		WHERE id = $1`
	return s.scanProject(s.db.QueryRow(ctx, query, id), id)
}

// GetProjectByBuilder retrieves a project by ID and exact builder name.
// Returns (nil, nil) if no project matches both.
func (s *PostgresStore) GetProjectByBuilder(ctx context.Context, id int, builderName string) (*Project, error) {
	const query = `
		SELECT id, name, builder_name, location, description, created_at, updated_at
		FROM projects
		WHERE id = $1 AND builder_name = $2`
	return s.scanProject(s.db.QueryRow(ctx, query, id, builderName), id)
}

func (s *PostgresStore) scanProject(row pgx.Row, id int) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.BuilderName, &p.Location, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get project %d: %w", id, err)
	}
	return &p, nil
}

// GetConversation retrieves a conversation by ID. Returns (nil, nil) if not found.
func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	const query = `
		SELECT conversation_id, agent_id, project_id
		FROM conversations
		WHERE conversation_id = $1`

	var c Conversation
	err := s.db.QueryRow(ctx, query, conversationID).Scan(&c.ConversationID, &c.AgentID, &c.ProjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get conversation %q: %w", conversationID, err)
	}
	return &c, nil
}

// GetTranscription retrieves the transcription for a conversation. Returns
// (nil, nil) if not found.
func (s *PostgresStore) GetTranscription(ctx context.Context, conversationID string) (*Transcription, error) {
	const query = `
		SELECT transcription_id, conversation_id, transcript_text, diarized_segments
		FROM transcriptions
		WHERE conversation_id = $1`

	var t Transcription
	var segJSON []byte
	err := s.db.QueryRow(ctx, query, conversationID).Scan(
		&t.TranscriptionID, &t.ConversationID, &t.TranscriptText, &segJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get transcription for %q: %w", conversationID, err)
	}
	if err := json.Unmarshal(segJSON, &t.Segments); err != nil {
		return nil, fmt.Errorf("store: unmarshal diarized segments for %q: %w", conversationID, err)
	}
	return &t, nil
}

// GetKeywords retrieves the keyword set for a (project, builder) pair using a
// case-insensitive builder-name match. Returns (nil, nil) if not found.
func (s *PostgresStore) GetKeywords(ctx context.Context, projectID int, builderName string) (*KeywordRecord, error) {
	const query = `
		SELECT id, project_id, builder_name, keywords, created_on, created_by, updated_on, updated_by
		FROM keywords
		WHERE project_id = $1 AND builder_name ILIKE $2`

	var rec KeywordRecord
	var setJSON []byte
	err := s.db.QueryRow(ctx, query, projectID, builderName).Scan(
		&rec.ID, &rec.ProjectID, &rec.BuilderName, &setJSON,
		&rec.CreatedOn, &rec.CreatedBy, &rec.UpdatedOn, &rec.UpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get keywords for project %d: %w", projectID, err)
	}
	if err := json.Unmarshal(setJSON, &rec.Set); err != nil {
		return nil, fmt.Errorf("store: unmarshal keyword set for project %d: %w", projectID, err)
	}
	return &rec, nil
}

// ReplaceKeywords creates or replaces the keyword set for the record's
// (project, builder) pair and updates the audit columns.
func (s *PostgresStore) ReplaceKeywords(ctx context.Context, rec *KeywordRecord) error {
	set := rec.Set
	if set == nil {
		set = match.KeywordSet{}
	}
	setJSON, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("store: marshal keyword set: %w", err)
	}

	const query = `
		INSERT INTO keywords (project_id, builder_name, keywords, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT ON CONSTRAINT unique_builder_project DO UPDATE
		SET keywords = EXCLUDED.keywords,
		    updated_on = now(),
		    updated_by = EXCLUDED.updated_by
		RETURNING id, created_on, updated_on`

	err = s.db.QueryRow(ctx, query,
		rec.ProjectID, rec.BuilderName, setJSON, rec.UpdatedBy,
	).Scan(&rec.ID, &rec.CreatedOn, &rec.UpdatedOn)
	if err != nil {
		return fmt.Errorf("store: replace keywords for project %d: %w", rec.ProjectID, err)
	}
	return nil
}

// CreateAPIKey inserts a new API key.
func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	const query = `
		INSERT INTO api_keys (key_id, key, owner_name, owner_email, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		key.KeyID, key.Key, key.OwnerName, key.OwnerEmail, key.Description, key.IsActive,
	).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByToken retrieves an active API key by its secret token. Returns
// (nil, nil) when the token is unknown or the key is inactive.
func (s *PostgresStore) GetAPIKeyByToken(ctx context.Context, token string) (*APIKey, error) {
	const query = `
		SELECT key_id, key, owner_name, owner_email, description, is_active, created_at, last_used
		FROM api_keys
		WHERE key = $1 AND is_active`

	var k APIKey
	err := s.db.QueryRow(ctx, query, token).Scan(
		&k.KeyID, &k.Key, &k.OwnerName, &k.OwnerEmail, &k.Description,
		&k.IsActive, &k.CreatedAt, &k.LastUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get api key by token: %w", err)
	}
	return &k, nil
}

// ListAPIKeys returns all API keys, newest first. The secret token column is
// not selected.
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	const query = `
		SELECT key_id, owner_name, owner_email, description, is_active, created_at, last_used
		FROM api_keys
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.KeyID, &k.OwnerName, &k.OwnerEmail, &k.Description,
			&k.IsActive, &k.CreatedAt, &k.LastUsed); err != nil {
			return nil, fmt.Errorf("store: scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list api keys: %w", err)
	}
	return keys, nil
}

// SetAPIKeyActive activates or deactivates a key. Returns [ErrKeyNotFound]
// when the key ID does not exist.
func (s *PostgresStore) SetAPIKeyActive(ctx context.Context, keyID string, active bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE api_keys SET is_active = $2 WHERE key_id = $1`, keyID, active)
	if err != nil {
		return fmt.Errorf("store: set api key %q active=%t: %w", keyID, active, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// TouchAPIKey updates the key's last-used timestamp. A missing key is not an
// error; the touch is best-effort bookkeeping.
func (s *PostgresStore) TouchAPIKey(ctx context.Context, keyID string) error {
	if _, err := s.db.Exec(ctx, `UPDATE api_keys SET last_used = now() WHERE key_id = $1`, keyID); err != nil {
		return fmt.Errorf("store: touch api key %q: %w", keyID, err)
	}
	return nil
}
