package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/encore/internal/client"
)

func newExchangeServer(t *testing.T, handler func(grantType string, form map[string][]string) (int, any)) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("expected basic client credentials, got %s/%s", user, pass)
		}

		r.ParseForm()
		status, body := handler(r.PostForm.Get("grant_type"), r.PostForm)

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
}

func TestExchanger(t *testing.T) {
	ctx := context.Background()

	t.Run("Refresh Grant", func(t *testing.T) {
		srv := newExchangeServer(t, func(grantType string, form map[string][]string) (int, any) {
			if grantType != "refresh_token" {
				t.Errorf("expected refresh_token grant, got %s", grantType)
			}
			if got := form["refresh_token"]; len(got) == 0 || got[0] != "rt-old" {
				t.Errorf("expected refresh token rt-old, got %v", got)
			}
			return http.StatusOK, map[string]any{
				"access_token":  "at-new",
				"refresh_token": "rt-new",
				"token_type":    "Bearer",
				"expires_in":    3600,
			}
		})
		defer srv.Close()

		e := NewExchanger(client.New(client.Opts{Seed: 1}), srv.URL, "client-id", "client-secret")

		record, err := e.Refresh(ctx, "rt-old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record.AccessToken != "at-new" || record.RefreshToken != "rt-new" {
			t.Errorf("unexpected record: %+v", record)
		}
		if record.ExpiresAt.IsZero() {
			t.Error("expected expiry to be derived from expires_in")
		}
	})

	t.Run("Refresh Keeps Prior Refresh Token When Omitted", func(t *testing.T) {
		srv := newExchangeServer(t, func(grantType string, form map[string][]string) (int, any) {
			return http.StatusOK, map[string]any{"access_token": "at-new", "expires_in": 3600}
		})
		defer srv.Close()

		e := NewExchanger(client.New(client.Opts{Seed: 1}), srv.URL, "client-id", "client-secret")

		record, err := e.Refresh(ctx, "rt-keep")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record.RefreshToken != "rt-keep" {
			t.Errorf("expected prior refresh token to carry over, got %s", record.RefreshToken)
		}
	})

	t.Run("Client Credentials Grant", func(t *testing.T) {
		srv := newExchangeServer(t, func(grantType string, form map[string][]string) (int, any) {
			if grantType != "client_credentials" {
				t.Errorf("expected client_credentials grant, got %s", grantType)
			}
			return http.StatusOK, map[string]any{"access_token": "app-token", "expires_in": 600}
		})
		defer srv.Close()

		e := NewExchanger(client.New(client.Opts{Seed: 1}), srv.URL, "client-id", "client-secret")

		record, err := e.ClientCredentials(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record.AccessToken != "app-token" {
			t.Errorf("unexpected record: %+v", record)
		}
	})

	t.Run("Rejected Exchange Returns Error", func(t *testing.T) {
		srv := newExchangeServer(t, func(grantType string, form map[string][]string) (int, any) {
			return http.StatusBadRequest, map[string]any{"error": "invalid_grant"}
		})
		defer srv.Close()

		e := NewExchanger(client.New(client.Opts{Seed: 1}), srv.URL, "client-id", "client-secret")

		if _, err := e.Refresh(ctx, "rt-revoked"); err == nil {
			t.Error("expected error for rejected exchange")
		}
	})

	t.Run("Empty Access Token Is An Error", func(t *testing.T) {
		srv := newExchangeServer(t, func(grantType string, form map[string][]string) (int, any) {
			return http.StatusOK, map[string]any{"token_type": "Bearer"}
		})
		defer srv.Close()

		e := NewExchanger(client.New(client.Opts{Seed: 1}), srv.URL, "client-id", "client-secret")

		if _, err := e.ClientCredentials(ctx); err == nil {
			t.Error("expected error for empty access token")
		}
	})
}
