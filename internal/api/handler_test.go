//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/voicetask/internal/dialogue"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestEngineError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: userId is required", dialogue.ErrInvalidRequest), http.StatusBadRequest, dialogue.CodeInvalidRequest},
		{fmt.Errorf("%w: s1", dialogue.ErrSessionNotFound), http.StatusNotFound, dialogue.CodeSessionNotFound},
		{fmt.Errorf("%w: s1 is cancelled", dialogue.ErrSessionInactive), http.StatusConflict, dialogue.CodeSessionInactive},
		{errors.New("disk full"), http.StatusInternalServerError, dialogue.CodeInternal},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		engineError(w, tt.err)

		if w.Code != tt.status {
			t.Errorf("Expected status %d for %v, got %d", tt.status, tt.err, w.Code)
		}
		var body ErrorBody
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode error body: %v", err)
		}
		if body.Code != tt.code {
			t.Errorf("Expected code %s, got %s", tt.code, body.Code)
		}
		if tt.code == dialogue.CodeInternal && body.Error != "internal error" {
			t.Errorf("Expected internal details hidden, got %q", body.Error)
		}
	}
}
