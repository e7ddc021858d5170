package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequireBearerPassesValidToken(t *testing.T) {
	svc := NewJWTService("test-secret-at-least-32-bytes-long", time.Hour)
	token, err := svc.Generate("operator-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		gotSubject = id.Subject
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	RequireBearer(svc, nil, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotSubject != "operator-1" {
		t.Errorf("expected subject %q in context, got %q", "operator-1", gotSubject)
	}
}

func TestRequireBearerRejectsMissingToken(t *testing.T) {
	svc := NewJWTService("test-secret-at-least-32-bytes-long", time.Hour)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	RequireBearer(svc, nil, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireBearerRejectsInvalidToken(t *testing.T) {
	svc := NewJWTService("test-secret-at-least-32-bytes-long", time.Hour)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called with an invalid token")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	RequireBearer(svc, nil, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireBearerPassesThroughWhenDisabled(t *testing.T) {
	svc := NewJWTService("", time.Hour)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	RequireBearer(svc, nil, next).ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to run when auth is disabled")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExtractBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer abc123": "abc123",
		"bearer abc123": "abc123",
		"":              "",
		"Basic abc123":  "",
		"Bearer ":       "",
	}
	for header, want := range cases {
		if got := extractBearer(header); got != want {
			t.Errorf("extractBearer(%q) = %q, want %q", header, got, want)
		}
	}
}
