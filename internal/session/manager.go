// Package session owns the interview lifecycle: creation and resumption,
// turn-by-turn chat, commit validation, and abandonment. All state changes go
// through the store; a failed turn leaves the persisted session untouched.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorekeep/archivist/internal/dialogue"
	"github.com/lorekeep/archivist/internal/events"
	"github.com/lorekeep/archivist/internal/merge"
	"github.com/lorekeep/archivist/internal/observe"
	"github.com/lorekeep/archivist/internal/policy"
	"github.com/lorekeep/archivist/internal/schema"
	"github.com/lorekeep/archivist/internal/store"
	"github.com/lorekeep/archivist/internal/turn"
)

const defaultGreeting = "Welcome to the archive. What are we cataloging today?"

// TurnResult is what one chat exchange produced, from the caller's side.
type TurnResult struct {
	Message            string
	Extracted          schema.Entity
	Confidence         float64
	Phase              string
	SuggestedQuestions []string
	Suggestions        []string
	Warnings           []store.Warning
	IsComplete         bool
	ToolsUsed          []store.ToolInvocationRecord
}

// sessionExtras holds per-session context that informs prompts but is not
// part of persisted session state. Resuming a session keeps the extras it
// was started with.
type sessionExtras struct {
	entityContext *schema.EntityContext
	media         *schema.MediaAnalysis
}

// Manager coordinates interview sessions. Operations on the same session are
// serialized; operations on different sessions run concurrently.
type Manager struct {
	store   store.Storage
	proc    *turn.Processor
	svc     dialogue.Service
	merger  merge.Merger
	policy  policy.Policy
	observe *observe.Observer
	bus     *events.Bus

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	extras map[string]sessionExtras
}

// New creates a session manager. The bus may be nil when no front end is
// listening.
func New(st store.Storage, proc *turn.Processor, svc dialogue.Service, pol policy.Policy, obs *observe.Observer, bus *events.Bus) *Manager {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Manager{
		store:   st,
		proc:    proc,
		svc:     svc,
		merger:  merge.New(pol),
		policy:  pol,
		observe: obs,
		bus:     bus,
		locks:   make(map[string]*sync.Mutex),
		extras:  make(map[string]sessionExtras),
	}
}

// Bus exposes the event bus for front-end subscriptions.
func (m *Manager) Bus() *events.Bus { return m.bus }

func (m *Manager) lock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

func (m *Manager) extrasFor(sessionID string) sessionExtras {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extras[sessionID]
}

// StartSession opens a fresh interview. Vision analysis, when supplied, seeds
// the type and domain fields; the entity context grounds the prompt without
// pre-filling anything. The returned session already carries the assistant's
// opening message.
func (m *Manager) StartSession(ctx context.Context, userID, entityID string, ec *schema.EntityContext, media *schema.MediaAnalysis) (*store.Session, error) {
	ctx, span := m.observe.StartSpan(ctx, "StartSession")
	defer span.End()

	now := time.Now()
	sess := &store.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		EntityID:       entityID,
		Status:         store.StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if media != nil {
		sess.Fields = media.Seed()
	}
	sess.Confidence = m.merger.Score(sess.Fields, nil)

	greeting, err := m.proc.Opening(ctx, turn.Input{
		Context: ec,
		Media:   media,
		Fields:  sess.Fields,
	})
	if err != nil {
		m.observe.Log().Warn().Err(err).Msg("opening message failed, using default greeting")
		greeting = defaultGreeting
	}
	sess.Messages = []store.Message{{
		Role:      store.RoleAssistant,
		Content:   greeting,
		Timestamp: now,
	}}

	if err := m.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	m.extras[sess.ID] = sessionExtras{entityContext: ec, media: media}
	m.mu.Unlock()

	m.observe.Log().Info().
		Str("session", sess.ID).
		Str("user", userID).
		Str("entity", entityID).
		Msg("session started")
	m.bus.PublishSimple(events.EventSessionStarted, sess.ID)

	return sess, nil
}

// GetOrCreateForEntity resumes the active session for (userID, entityID) if
// one exists, otherwise starts a fresh one. The boolean reports whether an
// existing session was resumed; on resume the supplied context and analysis
// are ignored in favor of whatever the session was started with.
func (m *Manager) GetOrCreateForEntity(ctx context.Context, userID, entityID string, ec *schema.EntityContext, media *schema.MediaAnalysis) (*store.Session, bool, error) {
	existing, err := m.store.FindActiveSession(userID, entityID)
	switch {
	case err == nil:
		m.observe.Log().Info().
			Str("session", existing.ID).
			Str("entity", entityID).
			Msg("session resumed")
		m.bus.PublishSimple(events.EventSessionResumed, existing.ID)
		return existing, true, nil
	case errors.Is(err, store.ErrNotFound):
		sess, err := m.StartSession(ctx, userID, entityID, ec, media)
		if err != nil {
			return nil, false, err
		}
		return sess, false, nil
	default:
		return nil, false, fmt.Errorf("failed to look up active session: %w", err)
	}
}

// GetSession returns the session by ID.
func (m *Manager) GetSession(id string) (*store.Session, error) {
	sess, err := m.store.GetSession(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// Chat runs one user turn against the session. The exchange is all or
// nothing: if the dialogue service fails, no message is recorded and no field
// changes, and the same message may simply be sent again.
//
// An entity context supplied here grounds this and later turns, replacing
// whatever the session was started with. Pass it on every turn of a resumed
// interview; extras do not survive a process restart.
func (m *Manager) Chat(ctx context.Context, sessionID, message, imageURL string, ec *schema.EntityContext) (*TurnResult, error) {
	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	ctx, span := m.observe.StartSpan(ctx, "Chat")
	defer span.End()

	sess, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, ErrSessionNotActive
	}

	if v := m.policy.CheckMediaURL(imageURL); v != nil {
		m.bus.PublishWithData(events.EventPolicyViolation, sessionID, map[string]interface{}{
			"rule": v.Rule,
		})
		return nil, fmt.Errorf("policy violation (%s): %s", v.Rule, v.Message)
	}
	if v := m.policy.CheckTurns(userTurns(sess.Messages) + 1); v != nil {
		m.bus.PublishWithData(events.EventPolicyViolation, sessionID, map[string]interface{}{
			"rule": v.Rule,
		})
		return nil, fmt.Errorf("policy violation (%s): %s", v.Rule, v.Message)
	}

	m.bus.PublishSimple(events.EventTurnStart, sessionID)

	extras := m.extrasFor(sessionID)
	if ec != nil {
		extras.entityContext = ec
		m.mu.Lock()
		m.extras[sessionID] = extras
		m.mu.Unlock()
	}
	out, err := m.proc.Process(ctx, turn.Input{
		History:     sess.Messages,
		UserMessage: message,
		ImageURL:    imageURL,
		Context:     extras.entityContext,
		Media:       extras.media,
		Fields:      sess.Fields,
	})
	if err != nil {
		m.bus.PublishWithData(events.EventDialogueError, sessionID, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrDialogueService, err)
	}

	now := time.Now()
	merged := m.merger.Apply(sess.Fields, out.Proposed, sess.Warnings, out.Conflicts, sess.Confidence, now)

	sess.Messages = append(sess.Messages,
		store.Message{Role: store.RoleUser, Content: message, Timestamp: now},
		store.Message{Role: store.RoleAssistant, Content: out.Reply, Timestamp: now},
	)
	sess.Fields = merged.Fields
	sess.Warnings = merged.Warnings
	sess.Confidence = m.merger.Score(merged.Fields, out.Signal)
	sess.LastActivityAt = now

	if err := m.store.UpdateSession(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	// Tool activity is replayed once the turn is durable, carrying the real
	// invocation timestamps.
	for _, rec := range out.Tools {
		m.bus.Publish(events.Event{
			Type:      events.EventToolCallStart,
			Timestamp: rec.StartTime,
			SessionID: sessionID,
			Data:      map[string]interface{}{"tool": rec.Name},
		})
		m.bus.Publish(events.Event{
			Type:      events.EventToolCallEnd,
			Timestamp: rec.EndTime,
			SessionID: sessionID,
			Data:      map[string]interface{}{"tool": rec.Name, "success": rec.Success},
		})
	}
	for _, w := range merged.Added {
		if w.Severity == store.SeverityHigh {
			m.bus.PublishWithData(events.EventConflictFlagged, sessionID, map[string]interface{}{
				"field": w.Field,
			})
		}
	}
	m.bus.PublishSimple(events.EventTurnEnd, sessionID)

	complete := m.merger.Complete(sess.Fields, sess.Warnings)
	m.observe.Log().Debug().
		Str("session", sessionID).
		Str("confidence", fmt.Sprintf("%.2f", sess.Confidence)).
		Str("phase", string(m.merger.Phase(sess.Fields, sess.Warnings, sess.Confidence))).
		Int("warnings", len(sess.Warnings)).
		Msg("turn processed")

	return &TurnResult{
		Message:            out.Reply,
		Extracted:          out.Proposed,
		Confidence:         sess.Confidence,
		Phase:              m.merger.Phase(sess.Fields, sess.Warnings, sess.Confidence),
		SuggestedQuestions: out.FollowUps,
		Suggestions:        out.Suggestions,
		Warnings:           merged.Added,
		IsComplete:         complete,
		ToolsUsed:          out.Tools,
	}, nil
}

// CommitToArchive validates the session and materializes its fields as an
// archive record. Commit fails while required fields are missing or an
// unresolved high-severity warning targets one; a successful commit completes
// the session.
func (m *Manager) CommitToArchive(ctx context.Context, sessionID string) (*store.Record, error) {
	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	ctx, span := m.observe.StartSpan(ctx, "CommitToArchive")
	defer span.End()

	sess, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, ErrSessionNotActive
	}

	if missing := sess.Fields.Missing(); len(missing) > 0 {
		return nil, &MissingFieldsError{Missing: missing}
	}
	if !m.merger.Complete(sess.Fields, sess.Warnings) {
		return nil, ErrUnresolvedConflict
	}

	// Thin content never blocks a commit, but it is worth a nudge.
	advisories := schema.Validate(sess.Fields).Warnings
	for _, a := range advisories {
		m.observe.Log().Warn().Str("session", sess.ID).Msg(a)
	}

	now := time.Now()
	rec := &store.Record{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		EntityID:  sess.EntityID,
		Fields:    sess.Fields,
		CreatedAt: now,
	}
	if err := m.store.SaveRecord(rec); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	// Best effort: index the entity for future relationship suggestions.
	// A provider without embedding support does not block the commit.
	m.archiveReference(ctx, sess, rec)

	sess.Status = store.StatusCompleted
	sess.LastActivityAt = now
	if err := m.store.UpdateSession(sess); err != nil {
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}

	m.observe.Log().Info().
		Str("session", sess.ID).
		Str("record", rec.ID).
		Msg("session committed")
	data := map[string]interface{}{"record": rec.ID}
	if len(advisories) > 0 {
		data["advisories"] = advisories
	}
	m.bus.PublishWithData(events.EventSessionCommitted, sess.ID, data)

	return rec, nil
}

func (m *Manager) archiveReference(ctx context.Context, sess *store.Session, rec *store.Record) {
	name := referenceName(sess, rec)
	text := referenceText(rec.Fields)

	vec, err := m.svc.Embed(ctx, text)
	if err != nil {
		m.observe.Log().Warn().Err(err).Msg("skipping reference embedding")
		return
	}

	meta := map[string]string{}
	if v, ok := rec.Fields.Get(schema.FieldType); ok {
		meta["type"] = v
	}
	if v, ok := rec.Fields.Get(schema.FieldDomain); ok {
		meta["domain"] = v
	}
	if err := m.store.AddReference(name, vec, meta); err != nil {
		m.observe.Log().Warn().Err(err).Msg("failed to store reference")
	}
}

func referenceName(sess *store.Session, rec *store.Record) string {
	if sess.EntityID != "" {
		return sess.EntityID
	}
	return rec.ID
}

func referenceText(fields schema.Entity) string {
	var parts []string
	for _, name := range []string{schema.FieldType, schema.FieldDomain, schema.FieldDescription, schema.FieldLore} {
		if v, ok := fields.Get(name); ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

// AbandonSession discards an active session without producing a record. The
// conversation stays in the store for audit.
func (m *Manager) AbandonSession(ctx context.Context, sessionID string) error {
	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	_, span := m.observe.StartSpan(ctx, "AbandonSession")
	defer span.End()

	sess, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return ErrSessionNotActive
	}

	sess.Status = store.StatusAbandoned
	sess.LastActivityAt = time.Now()
	if err := m.store.UpdateSession(sess); err != nil {
		return fmt.Errorf("failed to abandon session: %w", err)
	}

	m.observe.Log().Info().Str("session", sess.ID).Msg("session abandoned")
	m.bus.PublishSimple(events.EventSessionAbandoned, sess.ID)
	return nil
}

// userTurns counts the user messages in a conversation.
func userTurns(msgs []store.Message) int {
	n := 0
	for _, msg := range msgs {
		if msg.Role == store.RoleUser {
			n++
		}
	}
	return n
}
