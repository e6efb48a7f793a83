// Package response writes JSON and problem bodies for API handlers.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/api/models"
)

// JSON writes data as a JSON body with status. A nil data writes headers only.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Problem writes the problem body for status, scoped to the request path.
func Problem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	problem(r, status, detail).Write(w)
}

// BadRequest writes a 400 validation problem with optional field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	problem(r, http.StatusBadRequest, detail).WithErrors(errs).Write(w)
}

func problem(r *http.Request, status int, detail string) *models.Problem {
	return models.NewProblem(status, middleware.GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path)
}
