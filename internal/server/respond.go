package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopboost/shopboost/internal/generator"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/shopify"
	"github.com/shopboost/shopboost/internal/store"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}

// fail maps a domain error onto a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		msg += "; please try again"
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	Error(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnknownBlockType),
		errors.Is(err, store.ErrUnknownField),
		errors.Is(err, store.ErrInvalidValue),
		errors.Is(err, store.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidPage),
		errors.Is(err, errBadJSON):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrStale):
		return http.StatusGone
	case errors.Is(err, generator.ErrNoLayout), errors.Is(err, shopify.ErrFetch):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

var errBadJSON = errors.New("invalid JSON body")
