package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-campus/internal/features"
	"github.com/joeblew999/plat-campus/internal/floorplan"
	"github.com/joeblew999/plat-campus/internal/registry"
	"github.com/joeblew999/plat-campus/internal/search"
	"github.com/joeblew999/plat-campus/internal/session"
	"github.com/joeblew999/plat-campus/internal/tiler"
)

// apiError maps domain errors to HTTP errors.
func apiError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrFeatureNotFound),
		errors.Is(err, registry.ErrUnknownLayer):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, session.ErrNotSelectable),
		errors.Is(err, floorplan.ErrNoFloorPlan),
		errors.Is(err, floorplan.ErrUnknownFloor):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, search.ErrUnknownFilter),
		errors.Is(err, tiler.ErrBadTile):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, features.ErrNotLoaded):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error500InternalServerError("internal error", err)
}
