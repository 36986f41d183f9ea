package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/komorebi-pos/engine/internal/auth"
	"github.com/komorebi-pos/engine/internal/middleware"
)

const secret = "test-secret"

func protected(t *testing.T) http.Handler {
	t.Helper()
	return middleware.Authenticate(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil {
			t.Error("claims missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthenticateValidToken(t *testing.T) {
	token, err := auth.GenerateToken(secret, "term-1", "CASHIER", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/tables", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected(t).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	badToken, err := auth.GenerateToken("other-secret", "term-1", "CASHIER", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"malformed", "Bearer"},
		{"wrong signature", "Bearer " + badToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tables", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			middleware.Authenticate(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler reached without valid token")
			})).ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
		})
	}
}
