package prefs

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stores returns the backends under test. Redis runs only when
// CAMPUS_TEST_REDIS points at a server.
func stores(t *testing.T) map[string]Store {
	out := map[string]Store{"memory": NewMemoryStore()}
	if addr := os.Getenv("CAMPUS_TEST_REDIS"); addr != "" {
		rs := OpenRedis(addr, "", 0)
		require.NoError(t, rs.Ping(context.Background()))
		t.Cleanup(func() { rs.Close() })
		out["redis"] = rs
	}
	return out
}

func TestHistoryMostRecentFirstDeduplicatedBounded(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			client := uuid.NewString()
			t.Cleanup(func() { ClearHistory(ctx, s, client) })

			for _, q := range []string{"cafe", " library ", "atm", "cafe", "dorm", ""} {
				_, err := RecordSearch(ctx, s, client, q, 3)
				require.NoError(t, err)
			}
			h, err := History(ctx, s, client)
			require.NoError(t, err)
			assert.Equal(t, []string{"dorm", "cafe", "atm"}, h)

			require.NoError(t, ClearHistory(ctx, s, client))
			h, err = History(ctx, s, client)
			require.NoError(t, err)
			assert.Empty(t, h)
		})
	}
}

func TestDiagnosticsKeepLastTen(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			client := uuid.NewString()
			t.Cleanup(func() { s.Delete(ctx, Key(client, "diagnostics")) })

			for i := 0; i < 13; i++ {
				require.NoError(t, RecordDiagnostic(ctx, s, client, Diagnostic{Message: fmt.Sprintf("boom %d", i)}))
			}
			logs, err := Diagnostics(ctx, s, client)
			require.NoError(t, err)
			require.Len(t, logs, MaxDiagnostics)
			assert.Equal(t, "boom 3", logs[0].Message)
			assert.Equal(t, "boom 12", logs[9].Message)
			assert.False(t, logs[0].Timestamp.IsZero())
		})
	}
}

func TestPreferences(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			client := uuid.NewString()
			t.Cleanup(func() { s.Delete(ctx, Key(client, "preferences")) })

			p, err := LoadPreferences(ctx, s, client)
			require.NoError(t, err)
			assert.False(t, p.CategoryPanelOpen)

			_, err = SavePreferences(ctx, s, client, Preferences{CategoryPanelOpen: true}, false)
			require.NoError(t, err)
			p, err = LoadPreferences(ctx, s, client)
			require.NoError(t, err)
			assert.True(t, p.CategoryPanelOpen)

			saved, err := SavePreferences(ctx, s, client, Preferences{CategoryPanelOpen: true}, true)
			require.NoError(t, err)
			assert.False(t, saved.CategoryPanelOpen)
		})
	}
}

func TestKeyScopes(t *testing.T) {
	assert.Equal(t, "campus:abc:history", Key("abc", "history"))
	assert.Equal(t, "campus:_:diagnostics", Key("", "diagnostics"))
}

func TestCorruptPreferences(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, Key("c", "preferences"), "{"))
	_, err := LoadPreferences(ctx, s, "c")
	assert.Error(t, err)
}
