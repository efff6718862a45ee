package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/negotiation", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func runAuth(t *testing.T, m *AuthMiddleware, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var participantID string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		participantID = GetParticipantID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, participantID
}

func TestAuthAcceptsValidToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	token := signToken(t, testSecret, Claims{
		ParticipantID: "participant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	rec, participantID := runAuth(t, m, authedRequest(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if participantID != "participant-1" {
		t.Errorf("expected participant-1 in context, got %q", participantID)
	}
}

func TestAuthFallsBackToSubject(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "participant-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	rec, participantID := runAuth(t, m, authedRequest(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if participantID != "participant-2" {
		t.Errorf("expected subject fallback, got %q", participantID)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)

	rec, _ := runAuth(t, m, authedRequest(""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	token := signToken(t, "other-secret", Claims{
		ParticipantID: "participant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	rec, _ := runAuth(t, m, authedRequest(token))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	token := signToken(t, testSecret, Claims{
		ParticipantID: "participant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	rec, _ := runAuth(t, m, authedRequest(token))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthSkipsConfiguredPaths(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, []string{"/health"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec, _ := runAuth(t, m, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for skipped path, got %d", rec.Code)
	}
}
