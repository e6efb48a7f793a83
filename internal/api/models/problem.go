package models

import (
	"encoding/json"
	"net/http"
)

// problemBaseURI prefixes every problem type.
const problemBaseURI = "https://api.commutepulse.dev/problems/"

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type problemKind struct {
	slug  string
	title string
}

// problemKinds maps the statuses the API emits to their problem type.
var problemKinds = map[int]problemKind{
	http.StatusBadRequest:           {"validation-error", "Validation error"},
	http.StatusUnauthorized:         {"unauthorized", "Unauthorized"},
	http.StatusForbidden:            {"tls-required", "TLS required"},
	http.StatusNotFound:             {"not-found", "Not found"},
	http.StatusConflict:             {"conflict", "Conflict"},
	http.StatusUnsupportedMediaType: {"unsupported-media-type", "Unsupported media type"},
	http.StatusTooManyRequests:      {"too-many-requests", "Too many requests"},
	http.StatusInternalServerError:  {"internal-error", "Internal server error"},
	http.StatusServiceUnavailable:   {"service-unavailable", "Service unavailable"},
}

// ProblemType returns the type URI used for status. Unmapped statuses get
// about:blank.
func ProblemType(status int) string {
	if k, ok := problemKinds[status]; ok {
		return problemBaseURI + k.slug
	}
	return "about:blank"
}

// NewProblem builds the problem for status.
func NewProblem(status int, traceID, detail string) *Problem {
	title := http.StatusText(status)
	if k, ok := problemKinds[status]; ok {
		title = k.title
	}
	return &Problem{
		Type:    ProblemType(status),
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches field errors.
func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// Write serialises the problem with its status and trace header.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
