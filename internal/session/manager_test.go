package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerLifecycle(t *testing.T) {
	m := newFixture(t, 0).manager
	events := m.Bus().Subscribe("")
	defer m.Bus().Unsubscribe(events)

	s := m.Create()
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, Event{SessionID: s.ID, Action: "created"}, <-events)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Delete(s.ID))
	assert.Equal(t, Event{SessionID: s.ID, Action: "deleted"}, <-events)
	assert.Equal(t, 0, m.Len())

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(s.ID), ErrNotFound)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	m := newFixture(t, 0).manager
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle := m.Create()
	now = now.Add(50 * time.Second)
	fresh := m.Create()

	now = now.Add(20 * time.Second)
	assert.Equal(t, 1, m.Sweep())

	_, err := m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestGetTouchesSession(t *testing.T) {
	m := newFixture(t, 0).manager
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := m.Create()
	now = now.Add(50 * time.Second)
	_, err := m.Get(s.ID)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	assert.Equal(t, 0, m.Sweep())
	assert.Equal(t, now.Add(-50*time.Second), s.Snapshot().LastSeen)
}

func TestBusFiltersBySession(t *testing.T) {
	m := newFixture(t, 0).manager
	a := m.Create()
	b := m.Create()

	ch := m.Bus().Subscribe(a.ID)
	defer m.Bus().Unsubscribe(ch)

	b.ToggleAll()
	a.ToggleAll()

	select {
	case e := <-ch:
		assert.Equal(t, a.ID, e.SessionID)
		assert.Equal(t, "updated", e.Action)
	case <-time.After(time.Second):
		t.Fatal("no event for subscribed session")
	}
	assert.Empty(t, ch)
}

func TestUnsubscribeTwice(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("")
	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.Subscribers())
}
