package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Endpoints are the upstream URLs of a delegated identity provider.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// TokenResponse is the decoded token-endpoint reply.
type TokenResponse struct {
	AccessToken string
	TokenType   string
	IDToken     string
	Scope       string
	Raw         map[string]any
}

// ProviderClient encapsulates outbound HTTP calls to external IdPs.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, endpoints Endpoints, clientID, clientSecret, code, redirectURI string) (*TokenResponse, error)
	FetchUserInfo(ctx context.Context, endpoints Endpoints, accessToken string) (map[string]any, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode performs the OAuth token exchange.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, endpoints Endpoints, clientID, clientSecret, code, redirectURI string) (*TokenResponse, error) {
	if strings.TrimSpace(endpoints.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", clientID)
	if clientSecret != "" {
		data.Set("client_secret", clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &TokenResponse{
		AccessToken: stringValue(raw["access_token"]),
		TokenType:   stringValue(raw["token_type"]),
		IDToken:     stringValue(raw["id_token"]),
		Scope:       stringValue(raw["scope"]),
		Raw:         raw,
	}, nil
}

// FetchUserInfo loads the userinfo endpoint profile as raw claims.
func (c *HTTPProviderClient) FetchUserInfo(ctx context.Context, endpoints Endpoints, accessToken string) (map[string]any, error) {
	if strings.TrimSpace(endpoints.UserInfoURL) == "" {
		return nil, fmt.Errorf("userinfo url missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return raw, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
