// Package prefs stores the small amount of per-client state that survives a
// session: the category panel preference, search history and the
// diagnostics log.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Store is a string key/value and list store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// PushFront puts value at the head of a list, removing earlier copies,
	// and keeps at most max entries. It returns the resulting list.
	PushFront(ctx context.Context, key, value string, max int) ([]string, error)
	// Append adds value at the tail and keeps only the last max entries.
	Append(ctx context.Context, key, value string, max int) error
	List(ctx context.Context, key string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// MaxDiagnostics bounds the diagnostics log.
const MaxDiagnostics = 10

const keyPrefix = "campus"

// Key scopes name to a client. An empty client uses the shared scope.
func Key(client, name string) string {
	if client == "" {
		client = "_"
	}
	return keyPrefix + ":" + client + ":" + name
}

// Preferences is the persisted UI preference of a client. The info panel
// state is never persisted.
type Preferences struct {
	CategoryPanelOpen bool `json:"categoryPanelOpen" doc:"Whether the category panel starts open"`
}

// LoadPreferences returns the stored preferences or the defaults.
func LoadPreferences(ctx context.Context, s Store, client string) (Preferences, error) {
	var p Preferences
	raw, ok, err := s.Get(ctx, Key(client, "preferences"))
	if err != nil || !ok {
		return p, err
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Preferences{}, fmt.Errorf("decoding preferences: %w", err)
	}
	return p, nil
}

// SavePreferences stores p. On mobile layouts the category panel is saved
// closed.
func SavePreferences(ctx context.Context, s Store, client string, p Preferences, mobile bool) (Preferences, error) {
	if mobile {
		p.CategoryPanelOpen = false
	}
	data, err := json.Marshal(p)
	if err != nil {
		return Preferences{}, err
	}
	return p, s.Set(ctx, Key(client, "preferences"), string(data))
}

// History returns the client's search history, most recent first.
func History(ctx context.Context, s Store, client string) ([]string, error) {
	return s.List(ctx, Key(client, "history"))
}

// RecordSearch adds a trimmed query to the history. Blank queries are
// ignored and leave the history unchanged.
func RecordSearch(ctx context.Context, s Store, client, query string, max int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return History(ctx, s, client)
	}
	return s.PushFront(ctx, Key(client, "history"), query, max)
}

// ClearHistory drops the client's search history.
func ClearHistory(ctx context.Context, s Store, client string) error {
	return s.Delete(ctx, Key(client, "history"))
}

// Diagnostic is one recovered failure.
type Diagnostic struct {
	Message   string    `json:"message" doc:"Error message"`
	Stack     string    `json:"stack,omitempty" doc:"Stack trace"`
	Path      string    `json:"path,omitempty" doc:"Request path or page URL"`
	UserAgent string    `json:"userAgent,omitempty" doc:"Client user agent"`
	Timestamp time.Time `json:"timestamp,omitempty" doc:"When the failure happened; defaults to the time it was recorded"`
}

// RecordDiagnostic appends d to the client's log, keeping the last
// MaxDiagnostics entries.
func RecordDiagnostic(ctx context.Context, s Store, client string, d Diagnostic) error {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.Append(ctx, Key(client, "diagnostics"), string(data), MaxDiagnostics)
}

// Diagnostics returns the client's log, oldest first. Undecodable entries
// are skipped.
func Diagnostics(ctx context.Context, s Store, client string) ([]Diagnostic, error) {
	raw, err := s.List(ctx, Key(client, "diagnostics"))
	if err != nil {
		return nil, err
	}
	out := make([]Diagnostic, 0, len(raw))
	for _, r := range raw {
		var d Diagnostic
		if json.Unmarshal([]byte(r), &d) == nil {
			out = append(out, d)
		}
	}
	return out, nil
}
