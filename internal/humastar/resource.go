package humastar

import "fmt"

// ActionDef is a reusable action template.
// Pattern uses a single %s verb for the resource ID.
type ActionDef[T any] struct {
	Rel     string       // IANA or custom rel (e.g., "close-floor-plan")
	Pattern string       // URL pattern with %s placeholder
	Method  string       // HTTP method: POST, PUT, DELETE, etc.
	Title   string       // human-readable label
	Schema  string       // optional JSON Schema URL for the request body
	When    func(T) bool // nil means always available
}

// ActionsFor generates the actions available for a resource in its current state.
func ActionsFor[T any](id string, state T, defs []ActionDef[T]) []Action {
	var actions []Action
	for _, d := range defs {
		if d.When != nil && !d.When(state) {
			continue
		}
		actions = append(actions, Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
			Schema: d.Schema,
		})
	}
	return actions
}
