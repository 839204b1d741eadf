package qbconnection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roof-crm/internal/config"

	"github.com/goccy/go-json"
)

const (
	AuthorizationEndpoint = "https://appcenter.intuit.com/connect/oauth2"
	TokenEndpoint         = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	RevokeEndpoint        = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"
	AccountingScope       = "com.intuit.quickbooks.accounting"
)

type OAuthClient interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	Revoke(ctx context.Context, token string) error
}

// OAuthError is a non-2xx answer from the token or revoke endpoint.
type OAuthError struct {
	Status int
	Body   string
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("oauth request failed with status %d: %s", e.Status, e.Body)
}

type IntuitOAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	HTTP         *http.Client
}

func NewOAuthClient(cfg *config.Config) OAuthClient {
	return &IntuitOAuthClient{
		ClientID:     cfg.QuickBooks.ClientID,
		ClientSecret: cfg.QuickBooks.ClientSecret,
		RedirectURI:  cfg.QuickBooks.RedirectURI,
		AuthURL:      AuthorizationEndpoint,
		TokenURL:     TokenEndpoint,
		RevokeURL:    RevokeEndpoint,
		HTTP:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *IntuitOAuthClient) AuthorizationURL(state string) string {
	u, _ := url.Parse(c.AuthURL)
	q := u.Query()
	q.Set("client_id", c.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", AccountingScope)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *IntuitOAuthClient) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.RedirectURI)
	return c.tokenRequest(ctx, form)
}

func (c *IntuitOAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

func (c *IntuitOAuthClient) Revoke(ctx context.Context, token string) error {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RevokeURL, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.ClientID, c.ClientSecret)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &OAuthError{Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (c *IntuitOAuthClient) tokenRequest(ctx context.Context, form url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.ClientID, c.ClientSecret)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &OAuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var tokens TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tokens, nil
}
