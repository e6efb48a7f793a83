package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/departure"
)

// DepartureHandler serves departure recommendations.
type DepartureHandler struct {
	settings departure.SettingRepository
	calc     *departure.Calculator
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDepartureHandler creates a new DepartureHandler.
func NewDepartureHandler(settings departure.SettingRepository, calc *departure.Calculator, logger zerolog.Logger) *DepartureHandler {
	return &DepartureHandler{
		settings: settings,
		calc:     calc,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Calculate handles POST /v1/me/departures/{settingId}/calculate - recompute the snapshot.
func (h *DepartureHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	setting, ok := h.ownedSetting(w, r)
	if !ok {
		return
	}

	var input models.CalculateDepartureRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		response.BadRequest(w, r, "date must be YYYY-MM-DD", []models.FieldError{
			{Field: "date", Message: "must be YYYY-MM-DD", Code: "INVALID_FORMAT"},
		})
		return
	}

	date, ok := h.resolveDate(w, r, input.Date)
	if !ok {
		return
	}

	snapshot, err := h.calc.Calculate(r.Context(), setting.ID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.toResponse(snapshot))
}

// GetDeparture handles GET /v1/me/departures/{settingId}?date= - the stored snapshot.
func (h *DepartureHandler) GetDeparture(w http.ResponseWriter, r *http.Request) {
	setting, ok := h.ownedSetting(w, r)
	if !ok {
		return
	}

	date, ok := h.resolveDate(w, r, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	snapshot, err := h.calc.Get(r.Context(), setting.ID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.toResponse(snapshot))
}

// MarkDeparted handles POST /v1/me/departures/{settingId}/depart?date= - the user has left.
func (h *DepartureHandler) MarkDeparted(w http.ResponseWriter, r *http.Request) {
	setting, ok := h.ownedSetting(w, r)
	if !ok {
		return
	}

	date, ok := h.resolveDate(w, r, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	snapshot, err := h.calc.MarkDeparted(r.Context(), setting.ID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.toResponse(snapshot))
}

func (h *DepartureHandler) toResponse(s *departure.Snapshot) models.DepartureResponse {
	return models.DepartureResponse{
		Snapshot:              s,
		MinutesUntilDeparture: departure.MinutesUntilDeparture(s, h.now()),
	}
}

func (h *DepartureHandler) resolveDate(w http.ResponseWriter, r *http.Request, raw string) (time.Time, bool) {
	if raw == "" {
		return departure.CivilDate(h.now()), true
	}
	date, err := departure.ParseDate(raw)
	if err != nil {
		response.BadRequest(w, r, "date must be YYYY-MM-DD", nil)
		return time.Time{}, false
	}
	return date, true
}

// ownedSetting loads the setting named in the URL. Settings of other users are reported as not found.
func (h *DepartureHandler) ownedSetting(w http.ResponseWriter, r *http.Request) (*departure.Setting, bool) {
	settingID := chi.URLParam(r, "settingId")
	if settingID == "" {
		response.BadRequest(w, r, "settingId is required", nil)
		return nil, false
	}

	setting, err := h.settings.GetSetting(r.Context(), settingID)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if setting.UserID != middleware.GetUserID(r.Context()) {
		response.Problem(w, r, http.StatusNotFound, "departure setting not found")
		return nil, false
	}
	return setting, true
}

func (h *DepartureHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, departure.ErrSettingNotFound):
		response.Problem(w, r, http.StatusNotFound, "departure setting not found")
	case errors.Is(err, departure.ErrSnapshotNotFound):
		response.Problem(w, r, http.StatusNotFound, "departure has not been calculated for this date")
	case errors.Is(err, commute.ErrRouteNotFound):
		response.Problem(w, r, http.StatusNotFound, "route not found")
	case errors.Is(err, departure.ErrInvalidClock):
		response.Problem(w, r, http.StatusConflict, "departure setting has an invalid arrival time")
	default:
		h.logger.Error().Err(err).Msg("departure request failed")
		response.Problem(w, r, http.StatusInternalServerError, "failed to process departure")
	}
}
