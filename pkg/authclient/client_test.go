package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSignInWithPassword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("missing apikey header")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "admin@estien.test" || body["password"] != "s3cret!" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "jwt-token",
			"token_type": "bearer",
			"expires_in": 3600,
			"refresh_token": "refresh",
			"user": {"id": "5b0f4a36-5c55-4b8a-9a43-8f1a1d7f2c11", "email": "admin@estien.test", "role": "authenticated"}
		}`))
	}))
	defer server.Close()

	session, err := NewClient(server.URL, "anon").SignInWithPassword(context.Background(), "admin@estien.test", "s3cret!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.AccessToken != "jwt-token" || session.User.Email != "admin@estien.test" || session.ExpiresIn != 3600 {
		t.Fatalf("unexpected session %#v", session)
	}
}

func TestSignInWithPasswordInvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "anon").SignInWithPassword(context.Background(), "admin@estien.test", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignInWithPasswordServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":503,"msg":"upstream unavailable"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "anon").SignInWithPassword(context.Background(), "admin@estien.test", "pw")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected a non-credential error, got %v", err)
	}
}
