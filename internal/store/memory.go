package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Storage used by tests and offline demos.
// Sessions are copied on the way in and out, so a caller holding a *Session
// cannot mutate stored state except through UpdateSession.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	records  map[string]*Record
	refs     []memoryRef
	config   map[string]string
}

type memoryRef struct {
	name   string
	vector []float32
	meta   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		records:  make(map[string]*Record),
		config:   make(map[string]string),
	}
}

func copySession(s *Session) (*Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("store: copy session: %w", err)
	}
	var out Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("store: copy session: %w", err)
	}
	return &out, nil
}

func (m *MemoryStore) CreateSession(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("store: session %s already exists", session.ID)
	}
	cp, err := copySession(session)
	if err != nil {
		return err
	}
	m.sessions[session.ID] = cp
	return nil
}

func (m *MemoryStore) GetSession(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s)
}

func (m *MemoryStore) UpdateSession(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	cp, err := copySession(session)
	if err != nil {
		return err
	}
	m.sessions[session.ID] = cp
	return nil
}

func (m *MemoryStore) FindActiveSession(userID, entityID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Session
	for _, s := range m.sessions {
		if s.UserID != userID || s.EntityID != entityID || s.Status != StatusActive {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return copySession(best)
}

func (m *MemoryStore) SaveRecord(record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRecord(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListRecords(userID string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AddReference(name string, vector []float32, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refs = append(m.refs, memoryRef{
		name:   name,
		vector: append([]float32(nil), vector...),
		meta:   meta,
	})
	return nil
}

func (m *MemoryStore) SearchReferences(vector []float32, limit int) ([]Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var refs []Reference
	for _, r := range m.refs {
		refs = append(refs, Reference{
			Name:       r.name,
			Metadata:   r.meta,
			Similarity: cosine(vector, r.vector),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Similarity > refs[j].Similarity })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (m *MemoryStore) SetConfig(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

func (m *MemoryStore) GetConfig(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config[key], nil
}

func (m *MemoryStore) Close() error { return nil }
