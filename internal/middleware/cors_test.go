package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{"wildcard", []string{"*"}, "http://app.test", http.MethodGet, "http://app.test", "", http.StatusTeapot},
		{"explicit", []string{"http://app.test"}, "http://app.test", http.MethodPost, "http://app.test", "true", http.StatusTeapot},
		{"rejected", []string{"http://app.test"}, "http://evil.test", http.MethodGet, "", "", http.StatusTeapot},
		{"preflight", []string{"*"}, "http://app.test", http.MethodOptions, "http://app.test", "", http.StatusNoContent},
		{"rejected preflight", []string{"http://app.test"}, "http://evil.test", http.MethodOptions, "", "", http.StatusForbidden},
		{"no origin", []string{"*"}, "", http.MethodGet, "", "", http.StatusTeapot},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/api/voice/turns", nil)
		req.Header.Set("Origin", tt.origin)
		rr := httptest.NewRecorder()

		CORS(tt.allowed)(next).ServeHTTP(rr, req)

		if rr.Code != tt.wantStatus {
			t.Errorf("%s: expected status %d, got %d", tt.name, tt.wantStatus, rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
			t.Errorf("%s: expected origin %q, got %q", tt.name, tt.wantOrigin, got)
		}
		if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
			t.Errorf("%s: expected credentials %q, got %q", tt.name, tt.wantCreds, got)
		}
		if got := rr.Header().Get("Vary"); got != "Origin" {
			t.Errorf("%s: expected Vary: Origin, got %q", tt.name, got)
		}
		if tt.wantStatus == http.StatusNoContent && rr.Header().Get("Access-Control-Max-Age") == "" {
			t.Errorf("%s: expected preflight max age", tt.name)
		}
	}
}
