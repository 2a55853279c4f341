package jwt_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
	customjwt "github.com/heliannuuthus-iam/authn-api/internal/jwt"
)

func newIssuer(t *testing.T, alg customjwt.Algorithm) (*customjwt.Issuer, *customjwt.KeyManager) {
	t.Helper()
	manager, err := customjwt.NewKeyManager(alg)
	require.NoError(t, err)
	return customjwt.NewIssuer(manager, "https://auth.test/issuer/%s", time.Hour, time.Hour), manager
}

func TestIssuerRoundTripAllFamilies(t *testing.T) {
	for _, alg := range []customjwt.Algorithm{customjwt.HS256, customjwt.RS256, customjwt.ES256, customjwt.EdDSA} {
		t.Run(string(alg), func(t *testing.T) {
			issuer, manager := newIssuer(t, alg)

			token, err := issuer.MintAccessToken("openid-123", "https://api.test", "client-1", []string{"openid"})
			require.NoError(t, err)
			require.NotEmpty(t, token)

			var custom customjwt.AccessTokenClaims
			std, err := issuer.Verify(manager.ActivePair(), token, customjwt.ValidationPolicy{
				Issuer:    issuer.IssuerURL("client-1"),
				Audiences: []string{"https://api.test"},
			}, &custom)
			require.NoError(t, err)
			require.Equal(t, "openid-123", std.Subject)
			require.Equal(t, "client-1", custom.AZP)
			require.Equal(t, []string{"openid"}, custom.Scope)
			require.NotEmpty(t, std.ID)
		})
	}
}

func TestIssuerRejectsWrongAudience(t *testing.T) {
	issuer, manager := newIssuer(t, customjwt.HS256)

	token, err := issuer.MintAccessToken("openid-123", "https://api.test", "client-1", nil)
	require.NoError(t, err)

	_, err = issuer.Verify(manager.ActivePair(), token, customjwt.ValidationPolicy{
		Issuer:    issuer.IssuerURL("client-1"),
		Audiences: []string{"https://other.test"},
	})
	require.Error(t, err)
}

func TestIssuerRejectsTamperedPayload(t *testing.T) {
	issuer, manager := newIssuer(t, customjwt.ES256)

	token, err := issuer.MintAccessToken("openid-123", "https://api.test", "client-1", nil)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	payload[0] ^= 0x01
	parts[1] = base64.RawURLEncoding.EncodeToString(payload)

	_, err = issuer.Verify(manager.ActivePair(), strings.Join(parts, "."), customjwt.ValidationPolicy{
		Issuer:    issuer.IssuerURL("client-1"),
		Audiences: []string{"https://api.test"},
	})
	require.Error(t, err)
}

func TestIssuerRejectsExpiredToken(t *testing.T) {
	issuer, manager := newIssuer(t, customjwt.HS256)

	token, err := issuer.MintAccessToken("openid-123", "https://api.test", "client-1", nil)
	require.NoError(t, err)

	_, err = issuer.Verify(manager.ActivePair(), token, customjwt.ValidationPolicy{
		Issuer:    issuer.IssuerURL("client-1"),
		Audiences: []string{"https://api.test"},
		Time:      time.Now().Add(2 * time.Hour),
	})
	require.Error(t, err)
}

func TestMintIDTokenCarriesProfile(t *testing.T) {
	issuer, manager := newIssuer(t, customjwt.EdDSA)

	user := domain.UserProfile{OpenID: "openid-9", Nickname: "Nick", Avatar: "https://img", Email: "nick@test"}
	token, err := issuer.MintIDToken("client-1", user)
	require.NoError(t, err)

	var custom customjwt.IDTokenClaims
	std, err := issuer.Verify(manager.ActivePair(), token, customjwt.ValidationPolicy{
		Issuer:    issuer.IssuerURL("client-1"),
		Audiences: []string{"client-1"},
	}, &custom)
	require.NoError(t, err)
	require.Equal(t, "openid-9", std.Subject)
	require.Equal(t, "nick@test", custom.Email)
	require.Equal(t, "Nick", custom.Name)
}
