package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/pattern"
)

// PatternHandler serves learned departure patterns.
type PatternHandler struct {
	estimator *pattern.Estimator
	now       func() time.Time
}

// NewPatternHandler creates a new PatternHandler.
func NewPatternHandler(estimator *pattern.Estimator) *PatternHandler {
	return &PatternHandler{estimator: estimator, now: time.Now}
}

// GetPattern handles GET /v1/me/patterns/{commuteType}?weekend= - typical departure time.
// Without the weekend parameter the current civil day decides.
func (h *PatternHandler) GetPattern(w http.ResponseWriter, r *http.Request) {
	commuteType := commute.CommuteType(chi.URLParam(r, "commuteType"))
	if !commuteType.Valid() {
		response.BadRequest(w, r, "commuteType must be morning or evening", nil)
		return
	}

	weekday := isWeekday(h.now().In(pattern.Location).Weekday())
	if v := r.URL.Query().Get("weekend"); v != "" {
		weekend, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(w, r, "weekend must be true or false", nil)
			return
		}
		weekday = !weekend
	}

	estimate, err := h.estimator.Estimate(r.Context(), middleware.GetUserID(r.Context()), commuteType, weekday)
	if err != nil {
		response.Problem(w, r, http.StatusInternalServerError, "failed to estimate departure pattern")
		return
	}

	response.JSON(w, r, http.StatusOK, estimate)
}

func isWeekday(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}
