package humastar

import "strings"

// Action is a link to an operation that applies to a resource in its
// current state, e.g.
//
//	</api/v1/sessions/42/floor>; rel="set-floor"; method="PUT"; title="Switch floor"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
	Schema string // JSON Schema of the request body, if any
}

// Actor is implemented by response bodies whose available actions depend
// on their state.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as an RFC 8288 Link value. Empty
// parameters are left out.
func (a Action) LinkHeader() string {
	var b strings.Builder
	b.WriteString("<" + a.Href + `>; rel="` + a.Rel + `"`)
	for _, p := range [][2]string{{"method", a.Method}, {"title", a.Title}, {"schema", a.Schema}} {
		if p[1] != "" {
			b.WriteString("; " + p[0] + `="` + p[1] + `"`)
		}
	}
	return b.String()
}
