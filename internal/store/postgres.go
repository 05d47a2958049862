package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists sessions, records and references in Postgres. It mirrors
// the SQLite layout so either backend can sit behind the Storage interface.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			entity_id TEXT,
			status TEXT,
			messages JSONB,
			fields JSONB,
			confidence DOUBLE PRECISION,
			warnings JSONB,
			started_at TIMESTAMPTZ,
			last_activity_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner_entity
			ON sessions (user_id, entity_id, status)`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			session_id TEXT REFERENCES sessions(id),
			user_id TEXT,
			entity_id TEXT,
			fields JSONB,
			created_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS entity_refs (
			id BIGSERIAL PRIMARY KEY,
			name TEXT,
			vector BYTEA,
			metadata JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) CreateSession(session *Session) error {
	msgs, fields, warns, err := encodeSessionState(session)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(context.Background(),
		`INSERT INTO sessions
			(id, user_id, entity_id, status, messages, fields, confidence, warnings, started_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		session.ID, session.UserID, session.EntityID, string(session.Status),
		msgs, fields, session.Confidence, warns,
		session.StartedAt, session.LastActivityAt)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

func (s *PGStore) GetSession(id string) (*Session, error) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT id, user_id, entity_id, status, messages, fields, confidence, warnings, started_at, last_activity_at
		 FROM sessions WHERE id = $1`, id)
	return scanPGSession(row)
}

func (s *PGStore) UpdateSession(session *Session) error {
	msgs, fields, warns, err := encodeSessionState(session)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(context.Background(),
		`UPDATE sessions
		 SET status = $1, messages = $2, fields = $3, confidence = $4, warnings = $5, last_activity_at = $6
		 WHERE id = $7`,
		string(session.Status), msgs, fields, session.Confidence, warns,
		session.LastActivityAt, session.ID)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) FindActiveSession(userID, entityID string) (*Session, error) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT id, user_id, entity_id, status, messages, fields, confidence, warnings, started_at, last_activity_at
		 FROM sessions
		 WHERE user_id = $1 AND entity_id = $2 AND status = $3
		 ORDER BY started_at DESC LIMIT 1`,
		userID, entityID, string(StatusActive))
	return scanPGSession(row)
}

func scanPGSession(row pgx.Row) (*Session, error) {
	var session Session
	var status, msgs, fields, warns string
	err := row.Scan(&session.ID, &session.UserID, &session.EntityID, &status,
		&msgs, &fields, &session.Confidence, &warns,
		&session.StartedAt, &session.LastActivityAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	session.Status = SessionStatus(status)
	if err := decodeSessionState(&session, msgs, fields, warns); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *PGStore) SaveRecord(record *Record) error {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = s.pool.Exec(context.Background(),
		`INSERT INTO records (id, session_id, user_id, entity_id, fields, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.SessionID, record.UserID, record.EntityID,
		string(fields), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save record: %w", err)
	}
	return nil
}

func (s *PGStore) GetRecord(id string) (*Record, error) {
	var record Record
	var fields string
	err := s.pool.QueryRow(context.Background(),
		`SELECT id, session_id, user_id, entity_id, fields, created_at FROM records WHERE id = $1`, id).
		Scan(&record.ID, &record.SessionID, &record.UserID, &record.EntityID, &fields, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields), &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return &record, nil
}

func (s *PGStore) ListRecords(userID string) ([]*Record, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, session_id, user_id, entity_id, fields, created_at
		 FROM records WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		var fields string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.EntityID, &fields, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (s *PGStore) AddReference(name string, vector []float32, meta map[string]string) error {
	vecBuf := new(bytes.Buffer)
	if err := binary.Write(vecBuf, binary.LittleEndian, vector); err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(context.Background(),
		`INSERT INTO entity_refs (name, vector, metadata) VALUES ($1, $2, $3)`,
		name, vecBuf.Bytes(), string(metaJSON))
	return err
}

func (s *PGStore) SearchReferences(queryVector []float32, limit int) ([]Reference, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT name, vector, metadata FROM entity_refs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var name string
		var vecBlob []byte
		var metaJSON string
		if err := rows.Scan(&name, &vecBlob, &metaJSON); err != nil {
			return nil, err
		}

		vec := make([]float32, len(vecBlob)/4)
		if err := binary.Read(bytes.NewReader(vecBlob), binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("failed to decode vector: %w", err)
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}

		refs = append(refs, Reference{
			Name:       name,
			Metadata:   meta,
			Similarity: cosine(queryVector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Similarity > refs[j].Similarity })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (s *PGStore) SetConfig(key, value string) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO configuration (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	return err
}

func (s *PGStore) GetConfig(key string) (string, error) {
	var value string
	err := s.pool.QueryRow(context.Background(),
		`SELECT value FROM configuration WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}
