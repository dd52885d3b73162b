package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-campus/internal/metrics"
)

// Manager owns the live sessions of one campus.
type Manager struct {
	engine *Engine
	bus    *Bus
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. A zero ttl disables idle eviction; a nil
// bus gets a private one.
func NewManager(engine Engine, bus *Bus, ttl time.Duration) *Manager {
	if bus == nil {
		bus = NewBus()
	}
	if engine.Log == nil {
		engine.Log = zap.NewNop()
	}
	return &Manager{
		engine:   &engine,
		bus:      bus,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Bus returns the bus sessions publish their changes on.
func (m *Manager) Bus() *Bus { return m.bus }

// Create starts a session with the registry's initial visibility.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.now(), m.engine, m.bus.Publish)

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionsActive.Set(float64(n))
	m.bus.Publish(Event{SessionID: s.ID, Action: "created"})
	return s
}

// Get returns a session and marks it as seen.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch(m.now())
	return s, nil
}

// Delete ends a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.stop()
	metrics.SessionsActive.Set(float64(n))
	m.bus.Publish(Event{SessionID: id, Action: "deleted"})
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the ttl and returns how many
// were removed.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	var idle []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range idle {
		if m.Delete(id) == nil {
			removed++
		}
	}
	if removed > 0 {
		m.engine.Log.Info("evicted idle sessions", zap.Int("count", removed))
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
