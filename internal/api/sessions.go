package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-campus/internal/floorplan"
	"github.com/joeblew999/plat-campus/internal/geolocate"
	"github.com/joeblew999/plat-campus/internal/humastar"
	"github.com/joeblew999/plat-campus/internal/panel"
	"github.com/joeblew999/plat-campus/internal/session"
)

// RegisterSessions registers map session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create a map session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateSession)
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))

	huma.Post(api, "/api/v1/sessions/{id}/click", h.Click, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/select", h.Select, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/layers/{name}/toggle", h.ToggleLayer, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/layers/toggle-all", h.ToggleAll, huma.OperationTags("sessions"))
	huma.Put(api, "/api/v1/sessions/{id}/floor", h.SetFloor, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}/floor", h.CloseFloorPlan, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/panel", h.GetPanel, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/locate", h.Locate, huma.OperationTags("sessions"))
}

type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// SessionBody is a session snapshot. Its Link headers advertise the
// actions that apply to the current state.
type SessionBody struct {
	session.State
}

var sessionActions = []humastar.ActionDef[session.State]{
	{Rel: "click", Pattern: "/api/v1/sessions/%s/click", Method: http.MethodPost, Title: "Click the map"},
	{Rel: "toggle-all", Pattern: "/api/v1/sessions/%s/layers/toggle-all", Method: http.MethodPost, Title: "Show or hide all layers"},
	{Rel: "panel", Pattern: "/api/v1/sessions/%s/panel", Method: http.MethodGet, Title: "Info panel",
		When: func(st session.State) bool { return st.InfoPanelOpen }},
	{Rel: "set-floor", Pattern: "/api/v1/sessions/%s/floor", Method: http.MethodPut, Title: "Switch floor",
		When: func(st session.State) bool { return st.FloorPlan.Active }},
	{Rel: "close-floor-plan", Pattern: "/api/v1/sessions/%s/floor", Method: http.MethodDelete, Title: "Close floor plan",
		When: func(st session.State) bool { return st.FloorPlan.Active }},
	{Rel: "events", Pattern: "/api/v1/sessions/%s/events", Method: http.MethodGet, Title: "Live updates"},
	{Rel: "delete", Pattern: "/api/v1/sessions/%s", Method: http.MethodDelete, Title: "End session"},
}

// Actions implements humastar.Actor.
func (b SessionBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, b.State, sessionActions)
}

type SessionOutput struct {
	Body SessionBody
}

type ClickInput struct {
	SessionInput
	Body struct {
		X         float64 `json:"x" doc:"Easting in EPSG:3857" example:"4187000"`
		Y         float64 `json:"y" doc:"Northing in EPSG:3857" example:"7508000"`
		Tolerance float64 `json:"tolerance,omitempty" minimum:"0" doc:"Hit tolerance in map units; 0 uses the configured default"`
	}
}

type ClickBody struct {
	Outcome string `json:"outcome" enum:"none,non_interactive,interactive" doc:"Hit test outcome"`
	SessionBody
}

type SelectInput struct {
	SessionInput
	Body struct {
		Layer string `json:"layer" required:"true" doc:"Layer of the feature" example:"main_building"`
		ID    string `json:"id" required:"true" doc:"Feature id"`
	}
}

type ToggleInput struct {
	SessionInput
	Name string `path:"name" doc:"Layer name"`
}

type ToggleBody struct {
	Layer   string   `json:"layer,omitempty" doc:"Toggled layer"`
	Shown   bool     `json:"shown" doc:"Whether the layer (or the bulk set) is now shown"`
	Visible []string `json:"visible" doc:"Visible layers after the toggle"`
}

type FloorInput struct {
	SessionInput
	Body struct {
		Level int `json:"level" doc:"Floor level" example:"1"`
	}
}

type PanelBody struct {
	Open bool        `json:"open" doc:"Whether the info panel is open"`
	View *panel.View `json:"view,omitempty" doc:"Panel content"`
	Menu panel.Menu  `json:"menu" doc:"POI menu"`
}

type LocateInput struct {
	SessionInput
	Body geolocate.Reading
}

func (h *APIHandler) session(id string) (*session.Session, error) {
	s, err := h.m.Sessions.Get(id)
	if err != nil {
		return nil, apiError(err)
	}
	return s, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{}) (*SessionOutput, error) {
	s := h.m.Sessions.Create()
	return &SessionOutput{Body: SessionBody{s.Snapshot()}}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: SessionBody{s.Snapshot()}}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{}, error) {
	if err := h.m.Sessions.Delete(input.ID); err != nil {
		return nil, apiError(err)
	}
	return nil, nil
}

func (h *APIHandler) Click(ctx context.Context, input *ClickInput) (*struct{ Body ClickBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	res, err := s.Click(ctx, orb.Point{input.Body.X, input.Body.Y}, input.Body.Tolerance)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body ClickBody }{Body: ClickBody{Outcome: res.Outcome, SessionBody: SessionBody{res.State}}}, nil
}

func (h *APIHandler) Select(ctx context.Context, input *SelectInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	st, err := s.Select(ctx, input.Body.Layer, input.Body.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &SessionOutput{Body: SessionBody{st}}, nil
}

func (h *APIHandler) ToggleLayer(ctx context.Context, input *ToggleInput) (*struct{ Body ToggleBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	shown, err := s.Toggle(input.Name)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body ToggleBody }{Body: ToggleBody{
		Layer:   input.Name,
		Shown:   shown,
		Visible: s.Snapshot().Visible,
	}}, nil
}

func (h *APIHandler) ToggleAll(ctx context.Context, input *SessionInput) (*struct{ Body ToggleBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	shown := s.ToggleAll()
	return &struct{ Body ToggleBody }{Body: ToggleBody{Shown: shown, Visible: s.Snapshot().Visible}}, nil
}

func (h *APIHandler) SetFloor(ctx context.Context, input *FloorInput) (*struct{ Body floorplan.State }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	st, err := s.SetFloor(ctx, input.Body.Level)
	if err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body floorplan.State }{Body: st}, nil
}

func (h *APIHandler) CloseFloorPlan(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	s.CloseFloorPlan()
	return &SessionOutput{Body: SessionBody{s.Snapshot()}}, nil
}

func (h *APIHandler) GetPanel(ctx context.Context, input *SessionInput) (*struct{ Body PanelBody }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	body := PanelBody{Menu: s.Snapshot().POIMenu}
	if v, ok := s.Panel(); ok {
		body.Open = true
		body.View = &v
	}
	return &struct{ Body PanelBody }{Body: body}, nil
}

func (h *APIHandler) Locate(ctx context.Context, input *LocateInput) (*struct{ Body geolocate.Result }, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &struct{ Body geolocate.Result }{Body: s.SetLocation(input.Body)}, nil
}
