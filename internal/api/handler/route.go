package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/alternative"
	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/delay"
)

// RouteHandler serves live delay status and alternatives for a user's routes.
type RouteHandler struct {
	routes  commute.RouteRepository
	monitor *delay.Monitor
	finder  *alternative.Finder
	logger  zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(routes commute.RouteRepository, monitor *delay.Monitor, finder *alternative.Finder, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{
		routes:  routes,
		monitor: monitor,
		finder:  finder,
		logger:  logger,
	}
}

// GetDelays handles GET /v1/me/routes/{routeId}/delays - live delay status.
func (h *RouteHandler) GetDelays(w http.ResponseWriter, r *http.Request) {
	route, ok := h.ownedRoute(w, r)
	if !ok {
		return
	}

	status, err := h.monitor.Check(r.Context(), route)
	if err != nil {
		response.Problem(w, r, http.StatusServiceUnavailable, "delay check was interrupted")
		return
	}

	response.JSON(w, r, http.StatusOK, status)
}

// GetAlternatives handles GET /v1/me/routes/{routeId}/alternatives - alternatives for delayed segments.
func (h *RouteHandler) GetAlternatives(w http.ResponseWriter, r *http.Request) {
	route, ok := h.ownedRoute(w, r)
	if !ok {
		return
	}

	status, err := h.monitor.Check(r.Context(), route)
	if err != nil {
		response.Problem(w, r, http.StatusServiceUnavailable, "delay check was interrupted")
		return
	}

	suggestions, err := h.finder.FindForStatus(r.Context(), status)
	if err != nil {
		h.logger.Error().Err(err).Str("route_id", route.ID).Msg("failed to find alternatives")
		response.Problem(w, r, http.StatusInternalServerError, "failed to find alternatives")
		return
	}
	if suggestions == nil {
		suggestions = []alternative.Suggestion{}
	}

	response.JSON(w, r, http.StatusOK, models.AlternativesResponse{
		RouteID:     route.ID,
		Status:      status.Status,
		Suggestions: suggestions,
		CheckedAt:   status.CheckedAt,
	})
}

// ownedRoute loads the route named in the URL. Routes of other users are reported as not found.
func (h *RouteHandler) ownedRoute(w http.ResponseWriter, r *http.Request) (*commute.Route, bool) {
	routeID := chi.URLParam(r, "routeId")
	if routeID == "" {
		response.BadRequest(w, r, "routeId is required", nil)
		return nil, false
	}

	route, err := h.routes.GetRoute(r.Context(), routeID)
	if err != nil {
		if errors.Is(err, commute.ErrRouteNotFound) {
			response.Problem(w, r, http.StatusNotFound, "route not found")
			return nil, false
		}
		h.logger.Error().Err(err).Str("route_id", routeID).Msg("failed to load route")
		response.Problem(w, r, http.StatusInternalServerError, "failed to load route")
		return nil, false
	}

	if route.UserID != middleware.GetUserID(r.Context()) {
		response.Problem(w, r, http.StatusNotFound, "route not found")
		return nil, false
	}

	return route, true
}
