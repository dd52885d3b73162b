package visibility_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/testutil"
	"github.com/joeblew999/plat-campus/internal/visibility"
)

func TestInitialMembers(t *testing.T) {
	s := visibility.New(testutil.Registry(t))
	assert.True(t, s.Has("ground"))
	assert.True(t, s.Has("cafe"))
	assert.False(t, s.Has("atm"))
	assert.False(t, s.Has("hall_f1"))
}

func TestToggleUnknownIsNoop(t *testing.T) {
	s := visibility.New(testutil.Registry(t))
	before := s.Names()
	for _, name := range []string{"", "nope", "MAIN_BUILDING", "hall"} {
		assert.False(t, s.Toggle(name))
	}
	assert.Equal(t, before, s.Names())
}

func TestToggleFlips(t *testing.T) {
	s := visibility.New(testutil.Registry(t))
	assert.True(t, s.Toggle("atm"))
	assert.True(t, s.Has("atm"))
	assert.True(t, s.Toggle("atm"))
	assert.False(t, s.Has("atm"))
}

func TestBaseLayersArePinned(t *testing.T) {
	s := visibility.New(testutil.Registry(t))
	assert.False(t, s.Toggle("ground"))
	assert.False(t, s.Hide("ground"))
	assert.True(t, s.Has("ground"))
}

func TestFloorLayersIgnoreToggle(t *testing.T) {
	s := visibility.New(testutil.Registry(t))
	assert.False(t, s.Toggle("hall_f1"))
	assert.False(t, s.Has("hall_f1"))

	require.True(t, s.Show("hall_f1"))
	assert.False(t, s.Toggle("hall_f1"))
	assert.True(t, s.Has("hall_f1"))
	assert.True(t, s.Hide("hall_f1"))
}

func TestToggleAll(t *testing.T) {
	reg := testutil.Registry(t)
	s := visibility.New(reg)
	allow := reg.ToggleAllLayers()

	// atm is hidden initially, so the first bulk toggle shows everything.
	assert.True(t, s.ToggleAll())
	for _, name := range allow {
		assert.True(t, s.Has(name), name)
	}
	shown := s.Names()

	assert.False(t, s.ToggleAll())
	for _, name := range allow {
		assert.False(t, s.Has(name), name)
	}
	assert.True(t, s.Has("ground"))
	// metro_platforms is not in the allowlist and keeps its state.
	assert.True(t, s.Has("metro_platforms"))

	assert.True(t, s.ToggleAll())
	assert.Equal(t, shown, s.Names())
}

func TestToggleAllNeverTouchesBase(t *testing.T) {
	s := visibility.New(testutil.Registry(t))
	for i := 0; i < 4; i++ {
		s.ToggleAll()
		assert.True(t, s.Has("ground"))
	}
}

func TestClone(t *testing.T) {
	s := visibility.New(testutil.Registry(t))
	c := s.Clone()
	c.Toggle("atm")
	assert.False(t, s.Has("atm"))
	assert.True(t, c.Has("atm"))
}
