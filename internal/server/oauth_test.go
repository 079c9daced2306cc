package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func newCallbackFixture(t *testing.T) (*CallbackHandler, *httptest.Server) {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-new","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	config := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenSrv.URL},
	}

	return NewCallbackHandler(config, "expected-state"), tokenSrv
}

func TestCallbackHandler(t *testing.T) {
	t.Run("Exchanges Code For Token", func(t *testing.T) {
		handler, _ := newCallbackFixture(t)

		query := url.Values{"state": {"expected-state"}, "code": {"auth-code"}}
		req := httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		result := <-handler.Result()
		if result.Error() != nil {
			t.Fatalf("unexpected error: %v", result.Error())
		}
		if result.Token.AccessToken != "at-new" || result.Token.RefreshToken != "rt-new" {
			t.Errorf("unexpected token: %+v", result.Token)
		}
	})

	t.Run("Rejects Wrong State", func(t *testing.T) {
		handler, _ := newCallbackFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/callback?state=forged&code=auth-code", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if result := <-handler.Result(); result.Error() == nil {
			t.Error("expected state error")
		}
	})

	t.Run("Processes Only One Callback", func(t *testing.T) {
		handler, _ := newCallbackFixture(t)

		query := url.Values{"state": {"expected-state"}, "code": {"auth-code"}}
		first := httptest.NewRecorder()
		handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil))
		if first.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", first.Code)
		}

		replay := httptest.NewRecorder()
		handler.ServeHTTP(replay, httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil))
		if replay.Code != http.StatusBadRequest {
			t.Errorf("expected replay to be rejected, got %d", replay.Code)
		}
	})

	t.Run("Reports Denied Authorization", func(t *testing.T) {
		handler, _ := newCallbackFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/callback?state=expected-state&error=access_denied&error_description=user+declined", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if result := <-handler.Result(); result.Error() == nil {
			t.Error("expected authorization error")
		}
	})
}
