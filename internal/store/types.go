package store

import (
	"errors"
	"time"

	"github.com/lorekeep/archivist/internal/schema"
)

// ErrNotFound is returned when a session or record does not exist.
var ErrNotFound = errors.New("store: not found")

// SessionStatus is the lifecycle state of an interview session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether the status accepts no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is one turn in a session's conversation. The messages sequence is
// append-only and its order is the conversation's sole ordering guarantee.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Warning severities.
const (
	SeverityLow  = "low"
	SeverityHigh = "high"
)

// Warning is a conflict or uncertainty notice accumulated during merges.
// The warnings list is append-only; a later merge that re-supplies the warned
// field flips Resolved, it never removes the entry.
type Warning struct {
	Field    string    `json:"field,omitempty"`
	Severity string    `json:"severity"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
	Resolved bool      `json:"resolved"`
}

// ToolInvocationRecord is the audit row for one tool call attempted during a
// turn. Never mutated after creation.
type ToolInvocationRecord struct {
	Name      string    `json:"name"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Session is the unit of conversational cataloging state.
type Session struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id,omitempty"`
	EntityID       string        `json:"entity_id,omitempty"`
	Status         SessionStatus `json:"status"`
	Messages       []Message     `json:"messages"`
	Fields         schema.Entity `json:"fields"`
	Confidence     float64       `json:"confidence"`
	Warnings       []Warning     `json:"warnings"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// Record is a materialized entity produced by a successful commit.
type Record struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id,omitempty"`
	EntityID  string        `json:"entity_id,omitempty"`
	Fields    schema.Entity `json:"fields"`
	CreatedAt time.Time     `json:"created_at"`
}

// Reference is an embedded summary of a previously committed entity, used to
// ground relationship suggestions in later interviews.
type Reference struct {
	Name       string
	Metadata   map[string]string
	Similarity float32
}

// Storage defines the persistence contract consumed by the session manager.
// Implementations must return independent copies from GetSession so a caller
// mutating the result cannot bypass UpdateSession.
type Storage interface {
	// Sessions
	CreateSession(session *Session) error
	GetSession(id string) (*Session, error)
	UpdateSession(session *Session) error
	// FindActiveSession returns the single non-terminal session for the
	// (userID, entityID) pair, or ErrNotFound.
	FindActiveSession(userID, entityID string) (*Session, error)

	// Materialized entities
	SaveRecord(record *Record) error
	GetRecord(id string) (*Record, error)
	ListRecords(userID string) ([]*Record, error)

	// Relationship grounding
	AddReference(name string, vector []float32, meta map[string]string) error
	SearchReferences(vector []float32, limit int) ([]Reference, error)

	// Configuration
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}
