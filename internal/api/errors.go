package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
)

// Error is the body of every error response.
type Error struct {
	HTTPCode    int    `json:"http_code"`
	ErrorID     string `json:"error_id"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
	Context     string `json:"context,omitempty"`
}

// Error ids outside the command taxonomy.
const (
	ErrIDUnauthorized = "Unauthorized"
	ErrIDInternal     = "InternalError"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // connection may already be gone
	}
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, id, description string, cause error) {
	body := Error{
		HTTPCode:    status,
		ErrorID:     id,
		Description: description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if cause != nil {
		body.Context = cause.Error()
	}
	writeJSON(w, status, body)
}

// statusForKind maps a command error kind to its HTTP status.
func statusForKind(kind command.Kind) int {
	switch kind {
	case command.KindDeviceNotFound, command.KindPluginNotFound, command.KindRackNotFound,
		command.KindBoardNotFound, command.KindTransactionNotFound:
		return http.StatusNotFound
	case command.KindInvalidArguments:
		return http.StatusBadRequest
	case command.KindAlreadyRegistered, command.KindPluginStateError:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeCommandError renders a router error. Errors without a kind become
// 500 InternalError.
func writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *command.Error
	if !errors.As(err, &cerr) {
		writeError(w, r, http.StatusInternalServerError, ErrIDInternal, "internal error", err)
		return
	}
	writeError(w, r, statusForKind(cerr.Kind), string(cerr.Kind), cerr.Description, cerr.Err)
}

func writeInvalidArguments(w http.ResponseWriter, r *http.Request, description string, cause error) {
	writeError(w, r, http.StatusBadRequest, string(command.KindInvalidArguments), description, cause)
}
