package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-campus/internal/prefs"
)

// RegisterPreferences registers the per-client persisted state routes. A
// session's id scopes its preferences and search history.
func (h *APIHandler) RegisterPreferences(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{id}/preferences", h.GetPreferences, huma.OperationTags("preferences"))
	huma.Put(api, "/api/v1/sessions/{id}/preferences", h.PutPreferences, huma.OperationTags("preferences"))
	huma.Get(api, "/api/v1/sessions/{id}/history", h.GetHistory, huma.OperationTags("preferences"))
	huma.Post(api, "/api/v1/sessions/{id}/history", h.AddHistory, huma.OperationTags("preferences"))
	huma.Delete(api, "/api/v1/sessions/{id}/history", h.ClearHistory, huma.OperationTags("preferences"))
}

// RegisterDiagnostics registers the diagnostics log routes.
func (h *APIHandler) RegisterDiagnostics(api huma.API) {
	huma.Get(api, "/api/v1/diagnostics", h.GetDiagnostics, huma.OperationTags("diagnostics"))
	huma.Register(api, huma.Operation{
		OperationID:   "post-diagnostic",
		Method:        http.MethodPost,
		Path:          "/api/v1/diagnostics",
		Summary:       "Record a client-side failure",
		Tags:          []string{"diagnostics"},
		DefaultStatus: http.StatusNoContent,
	}, h.PostDiagnostic)
}

type PreferencesInput struct {
	SessionInput
	Body struct {
		CategoryPanelOpen bool `json:"categoryPanelOpen" doc:"Whether the category panel starts open"`
		Mobile            bool `json:"mobile,omitempty" doc:"Mobile layout; the panel is then saved closed"`
	}
}

type HistoryBody struct {
	Queries []string `json:"queries" doc:"Recent queries, most recent first"`
}

type HistoryInput struct {
	SessionInput
	Body struct {
		Query string `json:"query" required:"true" doc:"Executed query"`
	}
}

type ClientInput struct {
	Client string `query:"client" doc:"Client identifier; empty uses the shared log"`
}

type DiagnosticInput struct {
	ClientInput
	Body prefs.Diagnostic
}

func (h *APIHandler) GetPreferences(ctx context.Context, input *SessionInput) (*struct{ Body prefs.Preferences }, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	p, err := prefs.LoadPreferences(ctx, h.m.Prefs, input.ID)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("preferences unavailable", err)
	}
	return &struct{ Body prefs.Preferences }{Body: p}, nil
}

func (h *APIHandler) PutPreferences(ctx context.Context, input *PreferencesInput) (*struct{ Body prefs.Preferences }, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	p, err := prefs.SavePreferences(ctx, h.m.Prefs, input.ID,
		prefs.Preferences{CategoryPanelOpen: input.Body.CategoryPanelOpen}, input.Body.Mobile)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("preferences unavailable", err)
	}
	return &struct{ Body prefs.Preferences }{Body: p}, nil
}

func (h *APIHandler) GetHistory(ctx context.Context, input *SessionInput) (*struct{ Body HistoryBody }, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	q, err := prefs.History(ctx, h.m.Prefs, input.ID)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("history unavailable", err)
	}
	return &struct{ Body HistoryBody }{Body: HistoryBody{Queries: nonNil(q)}}, nil
}

func (h *APIHandler) AddHistory(ctx context.Context, input *HistoryInput) (*struct{ Body HistoryBody }, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	q, err := prefs.RecordSearch(ctx, h.m.Prefs, input.ID, input.Body.Query, h.m.Registry.Search.MaxHistory)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("history unavailable", err)
	}
	return &struct{ Body HistoryBody }{Body: HistoryBody{Queries: nonNil(q)}}, nil
}

func (h *APIHandler) ClearHistory(ctx context.Context, input *SessionInput) (*struct{}, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	if err := prefs.ClearHistory(ctx, h.m.Prefs, input.ID); err != nil {
		return nil, huma.Error503ServiceUnavailable("history unavailable", err)
	}
	return nil, nil
}

func (h *APIHandler) GetDiagnostics(ctx context.Context, input *ClientInput) (*struct{ Body []prefs.Diagnostic }, error) {
	d, err := prefs.Diagnostics(ctx, h.m.Prefs, input.Client)
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("diagnostics unavailable", err)
	}
	return &struct{ Body []prefs.Diagnostic }{Body: nonNil(d)}, nil
}

func (h *APIHandler) PostDiagnostic(ctx context.Context, input *DiagnosticInput) (*struct{}, error) {
	if err := prefs.RecordDiagnostic(ctx, h.m.Prefs, input.Client, input.Body); err != nil {
		return nil, huma.Error503ServiceUnavailable("diagnostics unavailable", err)
	}
	return nil, nil
}
