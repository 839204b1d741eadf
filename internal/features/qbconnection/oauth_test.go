package qbconnection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestOAuth(srv *httptest.Server) *IntuitOAuthClient {
	return &IntuitOAuthClient{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/callback",
		AuthURL:      AuthorizationEndpoint,
		TokenURL:     srv.URL + "/token",
		RevokeURL:    srv.URL + "/revoke",
		HTTP:         srv.Client(),
	}
}

func TestAuthorizationURL(t *testing.T) {
	c := &IntuitOAuthClient{ClientID: "client", RedirectURI: "http://localhost/callback", AuthURL: AuthorizationEndpoint}

	u, err := url.Parse(c.AuthorizationURL("abc"))
	if err != nil {
		t.Fatalf("invalid url: %v", err)
	}
	q := u.Query()
	if q.Get("scope") != AccountingScope || q.Get("state") != "abc" || q.Get("response_type") != "code" {
		t.Errorf("unexpected query: %v", q)
	}
	if q.Get("redirect_uri") != "http://localhost/callback" || q.Get("client_id") != "client" {
		t.Errorf("unexpected query: %v", q)
	}
}

func TestRefreshSendsBasicAuthAndForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt-1" {
			t.Errorf("unexpected form %v", r.Form)
		}
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","token_type":"bearer","expires_in":3600,"x_refresh_token_expires_in":8726400}`))
	}))
	defer srv.Close()

	tokens, err := newTestOAuth(srv).Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if tokens.AccessToken != "at-2" || tokens.RefreshToken != "rt-2" || tokens.ExpiresIn != 3600 || tokens.RefreshTokenExpiresIn != 8726400 {
		t.Errorf("unexpected tokens %+v", tokens)
	}
}

func TestExchangeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("redirect_uri") == "" {
			t.Errorf("unexpected form %v", r.Form)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := newTestOAuth(srv).Exchange(context.Background(), "code")
	var oauthErr *OAuthError
	if !errors.As(err, &oauthErr) || oauthErr.Status != 400 || !strings.Contains(oauthErr.Body, "invalid_grant") {
		t.Errorf("expected OAuthError 400, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestOAuth(srv).Revoke(context.Background(), "rt-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if body != `{"token":"rt-1"}` {
		t.Errorf("unexpected body %s", body)
	}
}
