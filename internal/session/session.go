// Package session keeps per-operator working state between requests: the
// selected profile, the last collected reading and its assessment, and the
// report draft being edited.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/nocdash/internal/engine"
	"github.com/crimson-sun/nocdash/internal/model"
)

const (
	defaultIdleTimeout = 12 * time.Hour
	defaultMaxSessions = 1000
)

// Session is one operator's working state. Values returned by Manager.Get
// are copies; use Manager.Update to change them.
type Session struct {
	ID         string
	Profile    string
	Reading    model.Reading
	Assessment *engine.Assessment
	Draft      string
	LastAnswer string
	touched    time.Time
}

// HasAssessment reports whether a reading has been classified in this session.
func (s Session) HasAssessment() bool {
	return s.Assessment != nil
}

func (s Session) clone() Session {
	s.Reading = s.Reading.Clone()
	if s.Assessment != nil {
		a := *s.Assessment
		a.Reading = a.Reading.Clone()
		s.Assessment = &a
	}
	return s
}

// Manager maps session ids to sessions. Safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	profile     string
	idleTimeout time.Duration
	maxSessions int
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTimeout sets how long an untouched session is kept. Default: 12h.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithMaxSessions caps how many sessions are kept. When a new session would
// exceed the cap, the least recently used one is dropped. Default: 1000.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager whose new sessions start on defaultProfile.
func NewManager(defaultProfile string, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		profile:     defaultProfile,
		idleTimeout: defaultIdleTimeout,
		maxSessions: defaultMaxSessions,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape NewID produces.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the session for id. An unknown or expired id yields an empty
// session on the default profile that is not stored; only Update stores.
func (m *Manager) Get(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.liveLocked(id); ok {
		s.touched = m.now()
		return s.clone()
	}
	return Session{ID: id, Profile: m.profile}
}

// Known reports whether id names a live session.
func (m *Manager) Known(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.liveLocked(id)
	return ok
}

// Update applies fn to the session for id under the manager lock, creating
// the session if needed, and returns the result.
func (m *Manager) Update(id string, fn func(*Session)) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.liveLocked(id)
	if !ok {
		m.makeRoomLocked()
		s = &Session{ID: id, Profile: m.profile}
		m.sessions[id] = s
	}
	s.touched = m.now()
	fn(s)
	s.ID = id
	return s.clone()
}

// Delete forgets a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Prune drops sessions idle for longer than the idle timeout and returns how
// many were removed.
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.idleTimeout)
	n := 0
	for id, s := range m.sessions {
		if s.touched.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// liveLocked returns the stored session for id, dropping it if expired.
func (m *Manager) liveLocked(id string) (*Session, bool) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.now().Sub(s.touched) > m.idleTimeout {
		delete(m.sessions, id)
		return nil, false
	}
	return s, true
}

// makeRoomLocked evicts the least recently used session when the manager is
// full.
func (m *Manager) makeRoomLocked() {
	if len(m.sessions) < m.maxSessions {
		return
	}
	var oldest string
	var oldestAt time.Time
	for id, s := range m.sessions {
		if oldest == "" || s.touched.Before(oldestAt) {
			oldest, oldestAt = id, s.touched
		}
	}
	delete(m.sessions, oldest)
}
