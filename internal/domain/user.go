package domain

// UserProfile is the subject identity attached to an authenticated flow.
type UserProfile struct {
	OpenID   string `json:"openid"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Email    string `json:"email,omitempty"`
}

// UserAssociation links a local subject to one delegated-IdP identity.
type UserAssociation struct {
	IdpOpenID string        `json:"idp_openid"`
	Kind      ConnectorKind `json:"idp_type"`
}

// SubjectProfile is the user service's view of a subject, including its
// delegated-identity associations.
type SubjectProfile struct {
	OpenID       string            `json:"openid"`
	Nickname     string            `json:"nickname"`
	Avatar       string            `json:"avatar"`
	Email        string            `json:"email,omitempty"`
	Associations []UserAssociation `json:"associations,omitempty"`
}

// Profile projects the subject down to the flow-facing profile.
func (s SubjectProfile) Profile() UserProfile {
	return UserProfile{
		OpenID:   s.OpenID,
		Nickname: s.Nickname,
		Avatar:   s.Avatar,
		Email:    s.Email,
	}
}

// OAuthUser is the normalized profile a delegated identity connector returns.
type OAuthUser struct {
	OpenID        string `json:"openid"`
	Nickname      string `json:"nickname"`
	Avatar        string `json:"avatar"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Extra         string `json:"extra,omitempty"`
}

// SrpCredential is the verifier record the credential service stores per
// identifier. The server never sees the password itself.
type SrpCredential struct {
	Identifier string `json:"identifier"`
	Verifier   string `json:"verifier"`
	Salt       string `json:"salt"`
}
