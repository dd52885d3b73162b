package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-campus/internal/humastar"
	"github.com/joeblew999/plat-campus/internal/panel"
	"github.com/joeblew999/plat-campus/internal/session"
	"github.com/joeblew999/plat-campus/internal/templates"
)

// RegisterEvents registers the Datastar session stream.
func (h *APIHandler) RegisterEvents(api huma.API) {
	NewEventHandler(h.m.Sessions, h.m.Presenter, h.m.Renderer).RegisterRoutes(api)
}

// EventHandler streams session changes to the Datastar UI via SSE.
type EventHandler struct {
	humastar.Handler
	sessions  *session.Manager
	presenter *panel.Presenter
}

// NewEventHandler creates a new event handler.
func NewEventHandler(sessions *session.Manager, presenter *panel.Presenter, renderer *templates.Renderer) *EventHandler {
	return &EventHandler{
		Handler:   humastar.Handler{Renderer: renderer},
		sessions:  sessions,
		presenter: presenter,
	}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{id}/events", h.Events,
		huma.OperationTags("events"),
	)
}

// Events pushes the panels and visibility of one session on connect and
// after every change, until the client leaves or the session ends.
func (h *EventHandler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	s, err := h.sessions.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		ch := h.sessions.Bus().Subscribe(s.ID)
		defer h.sessions.Bus().Unsubscribe(ch)

		h.push(sse, s)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if ev.Action == "deleted" {
					sse.Signals(map[string]any{"sessionEnded": true})
					return
				}
				h.push(sse, s)
				sse.DispatchCustomEvent("session-changed", map[string]any{
					"session": ev.SessionID,
					"action":  ev.Action,
				})
			}
		}
	}), nil
}

func (h *EventHandler) push(sse humastar.SSE, s *session.Session) {
	st := s.Snapshot()

	// A failed render patches an empty fragment, hiding the element.
	info := ""
	if v, ok := s.Panel(); ok {
		info, _ = h.presenter.HTML(v)
	}
	sse.Patch(info, "#info-panel")

	menu := st.POIMenu
	menu.SelectURL = fmt.Sprintf("/api/v1/sessions/%s/select", s.ID)
	menuHTML, _ := h.presenter.MenuHTML(menu)
	sse.Patch(menuHTML, "#poi-menu")
	sse.Patch(h.Render("floor-plan", st.FloorPlan), "#floor-plan")

	signals := map[string]any{
		"visible":         st.Visible,
		"infoPanelOpen":   st.InfoPanelOpen,
		"floorPlanActive": st.FloorPlan.Active,
		"currentFloor":    st.FloorPlan.CurrentFloor,
		"selected":        nil,
	}
	if st.Selected != nil {
		signals["selected"] = st.Selected
	}
	sse.Signals(signals)
}
