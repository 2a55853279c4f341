package jwt

import (
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
)

// clockSkew widens the not-before window so freshly minted tokens validate
// on consumers with drifting clocks.
const clockSkew = 5 * time.Minute

// NewClaims builds the standard claim set: single-audience, nbf backdated by
// the skew allowance, random jti.
// https://datatracker.ietf.org/doc/html/draft-ietf-oauth-security-topics#name-access-token-privilege-rest
func NewClaims(issuer, subject, audience string, expiresIn time.Duration) gojwt.Claims {
	now := time.Now().UTC()
	return gojwt.Claims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  gojwt.Audience{audience},
		Expiry:    gojwt.NewNumericDate(now.Add(expiresIn)),
		NotBefore: gojwt.NewNumericDate(now.Add(-clockSkew)),
		IssuedAt:  gojwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
}

// IDTokenClaims carries the OIDC profile fields embedded in ID tokens.
type IDTokenClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// AccessTokenClaims carries the authorization fields embedded in access tokens.
type AccessTokenClaims struct {
	AZP   string   `json:"azp"`
	Scope []string `json:"scope,omitempty"`
}

// ValidationPolicy constrains Verify: expected issuer and the explicit
// allow-list of acceptable audiences.
type ValidationPolicy struct {
	Issuer    string
	Audiences []string
	Time      time.Time
}

// Issuer signs and validates tokens with the process signing key.
type Issuer struct {
	keys         *KeyManager
	issuerFormat string
	accessTTL    time.Duration
	idTokenTTL   time.Duration
}

// NewIssuer constructs the token issuer. issuerFormat receives the client id,
// e.g. "https://auth.example.com/issuer/%s".
func NewIssuer(keys *KeyManager, issuerFormat string, accessTTL, idTokenTTL time.Duration) *Issuer {
	return &Issuer{
		keys:         keys,
		issuerFormat: issuerFormat,
		accessTTL:    accessTTL,
		idTokenTTL:   idTokenTTL,
	}
}

// IssuerURL renders the per-client issuer identifier.
func (i *Issuer) IssuerURL(clientID string) string {
	return fmt.Sprintf(i.issuerFormat, clientID)
}

// Sign serializes and signs the claim sets with the pair's private key. The
// header carries the algorithm and a freshly generated kid.
func (i *Issuer) Sign(pair *KeyPair, claims ...any) (string, error) {
	key, err := pair.signingKey()
	if err != nil {
		return "", fmt.Errorf("load signing key: %w", err)
	}
	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", uuid.NewString())
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(pair.Algorithm), Key: key}, opts)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}
	builder := gojwt.Signed(signer)
	for _, c := range claims {
		builder = builder.Claims(c)
	}
	token, err := builder.Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Verify checks signature, validity window, and audience membership against
// the policy, decoding any extra claim sets into dest. Only the pair's own
// algorithm is accepted when parsing.
func (i *Issuer) Verify(pair *KeyPair, token string, policy ValidationPolicy, dest ...any) (*gojwt.Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.SignatureAlgorithm(pair.Algorithm)})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	key, err := pair.verificationKey()
	if err != nil {
		return nil, fmt.Errorf("load verification key: %w", err)
	}

	var std gojwt.Claims
	targets := append([]any{&std}, dest...)
	if err := parsed.Claims(key, targets...); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	at := policy.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	expected := gojwt.Expected{
		Issuer:      policy.Issuer,
		AnyAudience: gojwt.Audience(policy.Audiences),
		Time:        at,
	}
	if err := std.Validate(expected); err != nil {
		return nil, fmt.Errorf("validate claims: %w", err)
	}
	return &std, nil
}

// MintAccessToken issues a signed access token for the subject, scoped to the
// resource-server audience and annotated with the authorized party.
func (i *Issuer) MintAccessToken(subject, audience, azp string, scope []string) (string, error) {
	std := NewClaims(i.IssuerURL(azp), subject, audience, i.accessTTL)
	custom := AccessTokenClaims{AZP: azp, Scope: scope}
	return i.Sign(i.keys.ActivePair(), std, custom)
}

// MintIDToken issues a signed ID token carrying the subject profile. The
// audience is the requesting client itself.
func (i *Issuer) MintIDToken(clientID string, user domain.UserProfile) (string, error) {
	std := NewClaims(i.IssuerURL(clientID), user.OpenID, clientID, i.idTokenTTL)
	custom := IDTokenClaims{Email: user.Email, Name: user.Nickname, Picture: user.Avatar}
	return i.Sign(i.keys.ActivePair(), std, custom)
}

// AccessTokenTTL exposes the configured access token lifetime.
func (i *Issuer) AccessTokenTTL() time.Duration {
	return i.accessTTL
}
