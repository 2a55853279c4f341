package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/heliannuuthus-iam/authn-api/internal/adapter/oauth"
	"github.com/heliannuuthus-iam/authn-api/internal/domain"
)

// definition binds a connector kind to its upstream endpoints and the
// claim mapping that turns its userinfo payload into a local profile.
type definition struct {
	endpoints oauth.Endpoints
	normalize func(claims map[string]any) domain.OAuthUser
}

// definitions is the closed connector set. Adding a kind means adding
// an entry here and to domain.ConnectorKind.
var definitions = map[domain.ConnectorKind]definition{
	domain.ConnectorGitHub: {
		endpoints: oauth.Endpoints{
			AuthorizeURL: "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			UserInfoURL:  "https://api.github.com/user",
			Scopes:       []string{"read:user", "user:email"},
		},
		normalize: normalizeGitHub,
	},
	domain.ConnectorGoogle: {
		endpoints: oauth.Endpoints{
			AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes:       []string{"openid", "email", "profile"},
		},
		normalize: normalizeGoogle,
	},
}

// Registry turns connector kinds into authorize URLs and callback
// profiles using a client's connector registration.
type Registry struct {
	provider oauth.ProviderClient
}

// NewRegistry constructs a registry over the provider client.
func NewRegistry(provider oauth.ProviderClient) *Registry {
	return &Registry{provider: provider}
}

// Endpoints returns the upstream endpoints for the kind.
func Endpoints(kind domain.ConnectorKind) (oauth.Endpoints, error) {
	def, ok := definitions[kind]
	if !ok {
		return oauth.Endpoints{}, fmt.Errorf("%w: %s", domain.ErrUnknownConnector, kind)
	}
	return def.endpoints, nil
}

// AuthorizeURL builds the upstream authorization redirect for the
// client's connector registration.
func (r *Registry) AuthorizeURL(config domain.ClientIdpConfig, state, redirectURI string) (string, error) {
	def, ok := definitions[config.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownConnector, config.Kind)
	}
	query := url.Values{}
	query.Set("client_id", config.IdpClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("state", state)
	query.Set("scope", strings.Join(def.endpoints.Scopes, " "))
	return def.endpoints.AuthorizeURL + "?" + query.Encode(), nil
}

// Identify exchanges the callback code and normalizes the upstream
// profile into a local OAuthUser.
func (r *Registry) Identify(ctx context.Context, config domain.ClientIdpConfig, code, redirectURI string) (*domain.OAuthUser, error) {
	def, ok := definitions[config.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownConnector, config.Kind)
	}

	token, err := r.provider.ExchangeCode(ctx, def.endpoints, config.IdpClientID, config.IdpClientSecret, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	claims, err := r.provider.FetchUserInfo(ctx, def.endpoints, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	user := def.normalize(claims)
	if user.OpenID == "" {
		return nil, fmt.Errorf("normalize profile: missing subject")
	}
	return &user, nil
}

func normalizeGitHub(claims map[string]any) domain.OAuthUser {
	return domain.OAuthUser{
		OpenID:        claimString(claims, "id"),
		Nickname:      claimString(claims, "login"),
		Avatar:        claimString(claims, "avatar_url"),
		Email:         claimString(claims, "email"),
		EmailVerified: claimString(claims, "email") != "",
		Extra:         rawClaims(claims),
	}
}

func normalizeGoogle(claims map[string]any) domain.OAuthUser {
	verified, _ := claims["email_verified"].(bool)
	return domain.OAuthUser{
		OpenID:        claimString(claims, "sub"),
		Nickname:      claimString(claims, "name"),
		Avatar:        claimString(claims, "picture"),
		Email:         claimString(claims, "email"),
		EmailVerified: verified,
		Extra:         rawClaims(claims),
	}
}

// rawClaims keeps the unmapped upstream payload alongside the profile.
// A payload that fails to marshal is dropped rather than failing the login.
func rawClaims(claims map[string]any) string {
	raw, err := json.Marshal(claims)
	if err != nil {
		return ""
	}
	return string(raw)
}

func claimString(claims map[string]any, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
