// Package response renders handler results and typed errors as a stable
// JSON envelope.
package response

import (
	"encoding/json"
	"net/http"

	apxerrors "github.com/metacogma/meetcapture/errors"
)

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func RespondMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Message: msg})
}

func RespondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	var e *apxerrors.Error
	if as, ok := err.(*apxerrors.Error); ok {
		e = as
		msg = e.Error()
		status = statusForKind(e.Kind)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: msg})
}

func statusForKind(k apxerrors.Kind) int {
	switch k {
	case apxerrors.Invalid, apxerrors.ConfigurationError:
		return http.StatusBadRequest
	case apxerrors.NotFound, apxerrors.NotActive:
		return http.StatusNotFound
	case apxerrors.Conflict, apxerrors.AlreadyActive:
		return http.StatusConflict
	case apxerrors.Unauthorized:
		return http.StatusUnauthorized
	case apxerrors.Permission:
		return http.StatusForbidden
	case apxerrors.Timeout, apxerrors.JoinTimedOut:
		return http.StatusGatewayTimeout
	case apxerrors.JoinRejected:
		return http.StatusConflict
	case apxerrors.DriverTransient, apxerrors.AudioUnavailable, apxerrors.EncoderFailure, apxerrors.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
