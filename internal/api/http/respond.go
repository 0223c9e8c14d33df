package http

import (
	"io"
	"log"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	"github.com/mind-engage/mindengage-quiz/internal/fault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusOf maps an engine error to its HTTP status.
func statusOf(err error) int {
	if errors.Is(err, attempt.ErrQuestionMismatch) {
		return http.StatusConflict
	}
	switch fault.KindOf(err) {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.InvalidState:
		return http.StatusConflict
	case fault.DependencyFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	if k := fault.KindOf(err); k != nil {
		body.Kind = k.Error()
	}
	if status >= 500 {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: fault.InvalidInput.Error()})
}

func forbidden(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
}

// decodeJSON reads a JSON body of at most 1 MiB into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
