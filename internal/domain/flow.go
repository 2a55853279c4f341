package domain

import (
	"time"
)

// ResponseType enumerates the OAuth response_type values a client may request.
type ResponseType string

const (
	ResponseTypeCode    ResponseType = "code"
	ResponseTypeToken   ResponseType = "token"
	ResponseTypeIDToken ResponseType = "id_token"
)

// ConflictResponseTypes may not be requested together: issuing an implicit
// id_token alongside an authorization code in one response is disallowed by
// the profile this server targets.
var ConflictResponseTypes = []ResponseType{ResponseTypeIDToken, ResponseTypeCode}

// PromptType mirrors the OIDC prompt parameter.
type PromptType string

const (
	PromptNone          PromptType = "none"
	PromptLogin         PromptType = "login"
	PromptConsent       PromptType = "consent"
	PromptSelectAccount PromptType = "select_account"
)

// FlowType marks which protocol profiles apply to a flow.
type FlowType string

const (
	FlowTypeOAuth FlowType = "oauth"
	FlowTypeOIDC  FlowType = "oidc"
)

// OpenIDScope is the scope value that upgrades a plain OAuth request to OIDC.
const OpenIDScope = "openid"

// OfflineAccessScope requests refresh token issuance.
const OfflineAccessScope = "offline_access"

// Stage is the position of a flow inside the authorization state machine.
// Stages only ever move forward.
type Stage int

const (
	StageInitialized Stage = iota
	StageAuthenticating
	StageAuthenticated
	StageAuthorized
	StageCompleted
)

// String returns the wire name of the stage.
func (s Stage) String() string {
	switch s {
	case StageInitialized:
		return "initialized"
	case StageAuthenticating:
		return "authenticating"
	case StageAuthenticated:
		return "authenticated"
	case StageAuthorized:
		return "authorized"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// AuthorizationRequest carries the parameters submitted to /authorize.
// It is immutable once bound.
type AuthorizationRequest struct {
	ClientID            string         `json:"client_id" form:"client_id" binding:"required,min=8,max=64"`
	ResponseType        []ResponseType `json:"response_type" form:"response_type" binding:"required,min=1,max=2"`
	Scope               []string       `json:"scope" form:"scope"`
	RedirectURI         string         `json:"redirect_uri" form:"redirect_uri" binding:"required,url"`
	State               string         `json:"state" form:"state"`
	Nonce               string         `json:"nonce" form:"nonce"`
	Prompt              PromptType     `json:"prompt" form:"prompt"`
	CodeChallenge       string         `json:"code_challenge" form:"code_challenge"`
	CodeChallengeMethod string         `json:"code_challenge_method" form:"code_challenge_method"`
}

// HasResponseType reports whether rt was requested.
func (r AuthorizationRequest) HasResponseType(rt ResponseType) bool {
	for _, candidate := range r.ResponseType {
		if candidate == rt {
			return true
		}
	}
	return false
}

// HasScope reports whether the scope set contains s.
func (r AuthorizationRequest) HasScope(s string) bool {
	for _, candidate := range r.Scope {
		if candidate == s {
			return true
		}
	}
	return false
}

// AuthCodeResponse carries the delegated-IdP callback parameters.
type AuthCodeResponse struct {
	Code  string `json:"code" form:"code"`
	State string `json:"state" form:"state"`
}

// Flow is the server-side record of one in-progress authorization attempt.
// It lives in the flow store keyed by ID for as long as ExpiresAt allows;
// the session cookie holds ID as a non-owning lookup key.
type Flow struct {
	ID           string               `json:"id"`
	Request      AuthorizationRequest `json:"request"`
	Types        []FlowType           `json:"types,omitempty"`
	ClientConfig *ClientConfig        `json:"client_config,omitempty"`
	IdpConfig    *ClientIdpConfig     `json:"idp_config,omitempty"`
	Stage        Stage                `json:"stage"`
	Error        *AuthError           `json:"error,omitempty"`
	CodeResponse *AuthCodeResponse    `json:"code_response,omitempty"`
	OAuthUser    *OAuthUser           `json:"oauth_user,omitempty"`
	Subject      *UserProfile         `json:"subject,omitempty"`
	Associations []UserAssociation    `json:"associations,omitempty"`
	ExpiresAt    time.Time            `json:"expires_at"`
}

// HasType reports whether the resolved flow types include t.
func (f *Flow) HasType(t FlowType) bool {
	for _, candidate := range f.Types {
		if candidate == t {
			return true
		}
	}
	return false
}

// Expired reports whether the flow is past its lifetime at instant now.
func (f *Flow) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// Fail records err and returns the flow for chaining. Later errors do not
// overwrite the first one recorded.
func (f *Flow) Fail(err *AuthError) *Flow {
	if f.Error == nil {
		f.Error = err
	}
	return f
}

// TokenSet is the mint result attached to a completed flow.
type TokenSet struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	Code        string `json:"code,omitempty"`
	State       string `json:"state,omitempty"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
