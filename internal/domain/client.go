package domain

// ConnectorKind identifies a delegated identity connector. The set is closed:
// adding a connector means recompiling with a new kind and endpoint table.
type ConnectorKind string

const (
	ConnectorGitHub ConnectorKind = "github"
	ConnectorGoogle ConnectorKind = "google"
)

// ChallengeType selects the secondary challenge delivery mechanism.
type ChallengeType string

const (
	ChallengeTypeLink ChallengeType = "link"
	ChallengeTypeCode ChallengeType = "code"
)

// ClientConfig is the registered configuration of a relying party, fetched
// from the client service and cached with a TTL.
type ClientConfig struct {
	ClientID     string   `json:"client_id"`
	RedirectURLs []string `json:"redirect_url"`
}

// AllowsRedirect reports whether uri is contained in the registered set.
func (c ClientConfig) AllowsRedirect(uri string) bool {
	for _, allowed := range c.RedirectURLs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// ClientIdpConfig binds a relying party to a delegated identity connector.
type ClientIdpConfig struct {
	ClientID        string        `json:"client_id"`
	Kind            ConnectorKind `json:"idp_type"`
	IdpClientID     string        `json:"idp_client_id"`
	IdpClientSecret string        `json:"idp_client_secret"`
}

// ChallengeConfig gates the secondary challenge surface per client.
type ChallengeConfig struct {
	ClientID string        `json:"client_id"`
	Name     string        `json:"name"`
	Type     ChallengeType `json:"type"`
}
