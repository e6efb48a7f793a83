package middleware

import (
	"net/http"

	"github.com/commutepulse/commutepulse/internal/api/models"
)

// writeProblem writes a problem for the current request. The response
// package imports middleware, so middleware writes problems itself.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	models.NewProblem(status, GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}
