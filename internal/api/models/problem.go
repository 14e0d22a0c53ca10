package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
// TraceID echoes the X-Request-Id of the failed request.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.hershield.app/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeUnauthorized     = problemBase + "unauthorized"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeConflict         = problemBase + "conflict"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeUnsupportedMedia = problemBase + "unsupported-media-type"
)

// problemCatalogue gives each status the API answers with its type and title.
var problemCatalogue = map[int]struct{ typ, title string }{
	http.StatusBadRequest:           {ProblemTypeValidation, "Validation error"},
	http.StatusUnauthorized:         {ProblemTypeUnauthorized, "Unauthorized"},
	http.StatusNotFound:             {ProblemTypeNotFound, "Not found"},
	http.StatusConflict:             {ProblemTypeConflict, "Conflict"},
	http.StatusUnsupportedMediaType: {ProblemTypeUnsupportedMedia, "Unsupported media type"},
	http.StatusTooManyRequests:      {ProblemTypeTooManyRequests, "Too many requests"},
	http.StatusInternalServerError:  {ProblemTypeInternal, "Internal server error"},
	http.StatusServiceUnavailable:   {ProblemTypeUnavailable, "Service unavailable"},
}

// NewProblem creates a problem of an explicit type.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

// problemFor creates a catalogued problem for status.
func problemFor(status int, traceID, detail string) *Problem {
	entry := problemCatalogue[status]
	p := NewProblem(entry.typ, entry.title, status, traceID)
	p.Detail = detail
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	h.Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest reports invalid input, optionally per field.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := problemFor(http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnauthorized reports a missing or rejected bearer token.
func NewUnauthorized(traceID, detail string) *Problem {
	return problemFor(http.StatusUnauthorized, traceID, detail)
}

// NewNotFound reports an unknown route, contact or plan.
func NewNotFound(traceID, detail string) *Problem {
	return problemFor(http.StatusNotFound, traceID, detail)
}

// NewConflict reports an operation the journey's current state forbids.
func NewConflict(traceID, detail string) *Problem {
	return problemFor(http.StatusConflict, traceID, detail)
}

// NewUnsupportedMediaType reports a request body that is not JSON.
func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return problemFor(http.StatusUnsupportedMediaType, traceID, detail)
}

// NewTooManyRequests reports a spent rate limit budget.
func NewTooManyRequests(traceID, detail string) *Problem {
	return problemFor(http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError reports a server fault. detail must not leak internals.
func NewInternalError(traceID, detail string) *Problem {
	return problemFor(http.StatusInternalServerError, traceID, detail)
}

// NewServiceUnavailable reports a dependency the request cannot do without.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return problemFor(http.StatusServiceUnavailable, traceID, detail)
}
