package olympus

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		apiKey         string
		path           string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "Insecure Mode (No Key)",
			apiKey:         "",
			authHeader:     "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Secure Mode - Valid Key",
			apiKey:         "secret-key",
			authHeader:     "Bearer secret-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Secure Mode - Missing Header",
			apiKey:         "secret-key",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Secure Mode - Invalid Header Format",
			apiKey:         "secret-key",
			authHeader:     "Basic secret-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Secure Mode - Wrong Key",
			apiKey:         "secret-key",
			authHeader:     "Bearer wrong-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Secure Mode - Open Path",
			apiKey:         "secret-key",
			path:           "/healthz",
			authHeader:     "",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "/"
			}
			req := httptest.NewRequest("GET", path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler := AuthMiddleware(logger, tt.apiKey, []string{"/healthz"}, nextHandler)
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
		})
	}
}
