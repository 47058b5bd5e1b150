// Package api provides HTTP handlers for the voice task API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/voicetask/internal/dialogue"
	"github.com/ashureev/voicetask/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	engine *dialogue.Engine
	repo   store.Repository
	conns  *ConnRegistry
	debug  bool
}

// NewHandler creates a new Handler with common dependencies. repo may be nil,
// in which case the tasks listing is unavailable.
func NewHandler(engine *dialogue.Engine, repo store.Repository, debug bool) *Handler {
	return &Handler{
		engine: engine,
		repo:   repo,
		conns:  NewConnRegistry(),
		debug:  debug,
	}
}

// Connections returns the registry of open voice sockets.
func (h *Handler) Connections() *ConnRegistry {
	return h.conns
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: message, Code: code})
}

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// engineError maps an engine error to its status code and writes it.
func engineError(w http.ResponseWriter, err error) {
	code := dialogue.Code(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		Error(w, status, code, "internal error")
		return
	}
	Error(w, status, code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case dialogue.CodeInvalidRequest:
		return http.StatusBadRequest
	case dialogue.CodeSessionNotFound:
		return http.StatusNotFound
	case dialogue.CodeSessionInactive:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body: %v", dialogue.ErrInvalidRequest, err)
	}
	return nil
}
