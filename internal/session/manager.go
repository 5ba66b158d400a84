package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/models"
)

// Manager holds the live sessions of a server.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	runs     Runs
}

func NewManager(runs Runs) *Manager {
	return &Manager{sessions: make(map[string]*Session), runs: runs}
}

func (m *Manager) Create(ds *models.Dataset, catalog *channels.Catalog) *Session {
	s := New(uuid.NewString(), ds, catalog, m.runs)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Summary is the listing view of a session.
type Summary struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	Created  time.Time `json:"created"`
	Mapped   bool      `json:"mapped"`
	Version  uint64    `json:"version"`
}

func (m *Manager) List() []Summary {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		out = append(out, Summary{
			ID:       s.ID,
			Filename: s.raw.Filename,
			Created:  s.Created,
			Mapped:   s.dataset != nil,
			Version:  s.result.Version,
		})
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Expire closes sessions created before now minus maxAge.
func (m *Manager) Expire(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.Created.Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
