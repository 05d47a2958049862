package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions, records and references in a local SQLite
// database. Conversation state is stored as JSON columns; embeddings as blobs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			entity_id TEXT,
			status TEXT,
			messages TEXT,
			fields TEXT,
			confidence REAL,
			warnings TEXT,
			started_at DATETIME,
			last_activity_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner_entity
			ON sessions (user_id, entity_id, status);`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			user_id TEXT,
			entity_id TEXT,
			fields TEXT,
			created_at DATETIME,
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS entity_refs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT,
			vector BLOB,
			metadata TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Session implementation

func (s *SQLiteStore) CreateSession(session *Session) error {
	msgs, fields, warns, err := encodeSessionState(session)
	if err != nil {
		return err
	}

	query := `INSERT INTO sessions
		(id, user_id, entity_id, status, messages, fields, confidence, warnings, started_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query,
		session.ID, session.UserID, session.EntityID, string(session.Status),
		msgs, fields, session.Confidence, warns,
		session.StartedAt, session.LastActivityAt)
	return err
}

func (s *SQLiteStore) GetSession(id string) (*Session, error) {
	query := `SELECT id, user_id, entity_id, status, messages, fields, confidence, warnings, started_at, last_activity_at
		FROM sessions WHERE id = ?`
	return scanSession(s.db.QueryRow(query, id))
}

func (s *SQLiteStore) UpdateSession(session *Session) error {
	msgs, fields, warns, err := encodeSessionState(session)
	if err != nil {
		return err
	}

	query := `UPDATE sessions
		SET status = ?, messages = ?, fields = ?, confidence = ?, warnings = ?, last_activity_at = ?
		WHERE id = ?`
	res, err := s.db.Exec(query,
		string(session.Status), msgs, fields, session.Confidence, warns,
		session.LastActivityAt, session.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) FindActiveSession(userID, entityID string) (*Session, error) {
	query := `SELECT id, user_id, entity_id, status, messages, fields, confidence, warnings, started_at, last_activity_at
		FROM sessions
		WHERE user_id = ? AND entity_id = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`
	return scanSession(s.db.QueryRow(query, userID, entityID, string(StatusActive)))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var status, msgs, fields, warns string
	err := row.Scan(&session.ID, &session.UserID, &session.EntityID, &status,
		&msgs, &fields, &session.Confidence, &warns,
		&session.StartedAt, &session.LastActivityAt)
	if err != nil {
		if err == sql.ErrNoRows {
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

func encodeSessionState(session *Session) (msgs, fields, warns string, err error) {
	m, err := json.Marshal(session.Messages)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal messages: %w", err)
	}
	f, err := json.Marshal(session.Fields)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal fields: %w", err)
	}
	w, err := json.Marshal(session.Warnings)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal warnings: %w", err)
	}
	return string(m), string(f), string(w), nil
}

func decodeSessionState(session *Session, msgs, fields, warns string) error {
	if err := json.Unmarshal([]byte(msgs), &session.Messages); err != nil {
		return fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &session.Fields); err != nil {
		return fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	if err := json.Unmarshal([]byte(warns), &session.Warnings); err != nil {
		return fmt.Errorf("failed to unmarshal warnings: %w", err)
	}
	return nil
}

// Record implementation

func (s *SQLiteStore) SaveRecord(record *Record) error {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `INSERT INTO records (id, session_id, user_id, entity_id, fields, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, record.ID, record.SessionID, record.UserID,
		record.EntityID, string(fields), record.CreatedAt)
	return err
}

func (s *SQLiteStore) GetRecord(id string) (*Record, error) {
	query := `SELECT id, session_id, user_id, entity_id, fields, created_at FROM records WHERE id = ?`
	row := s.db.QueryRow(query, id)

	var record Record
	var fields string
	if err := row.Scan(&record.ID, &record.SessionID, &record.UserID,
		&record.EntityID, &fields, &record.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields), &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return &record, nil
}

func (s *SQLiteStore) ListRecords(userID string) ([]*Record, error) {
	query := `SELECT id, session_id, user_id, entity_id, fields, created_at
		FROM records WHERE user_id = ? ORDER BY created_at`
	rows, err := s.db.Query(query, userID)
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

// Configuration implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}
