package jwt_test

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"

	customjwt "github.com/heliannuuthus-iam/authn-api/internal/jwt"
)

func TestGenerateHMACSecretSize(t *testing.T) {
	for alg, size := range map[customjwt.Algorithm]int{
		customjwt.HS256: 32,
		customjwt.HS384: 48,
		customjwt.HS512: 64,
	} {
		pair, err := customjwt.Generate(alg)
		require.NoError(t, err)
		require.Len(t, pair.Private, size)
	}
}

func TestGenerateAsymmetricFamilies(t *testing.T) {
	cases := []struct {
		alg    customjwt.Algorithm
		family customjwt.Family
	}{
		{customjwt.RS256, customjwt.FamilyRSA},
		{customjwt.ES256, customjwt.FamilyEC},
		{customjwt.ES384, customjwt.FamilyEC},
		{customjwt.EdDSA, customjwt.FamilyEd},
	}
	for _, tc := range cases {
		t.Run(string(tc.alg), func(t *testing.T) {
			pair, err := customjwt.Generate(tc.alg)
			require.NoError(t, err)

			family, err := tc.alg.Family()
			require.NoError(t, err)
			require.Equal(t, tc.family, family)

			pub, err := pair.Public()
			require.NoError(t, err)
			_, err = x509.ParsePKIXPublicKey(pub)
			require.NoError(t, err)
		})
	}
}

func TestGenerateUnsupportedAlgorithm(t *testing.T) {
	_, err := customjwt.Generate(customjwt.Algorithm("none"))
	require.ErrorIs(t, err, customjwt.ErrUnsupportedAlgorithm)
}

func TestJWKSExportsActiveKey(t *testing.T) {
	manager, err := customjwt.NewKeyManager(customjwt.ES256)
	require.NoError(t, err)

	set, err := manager.JWKS("kid-1")
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)
	require.Equal(t, "kid-1", set.Keys[0].KeyID)
	require.True(t, set.Keys[0].IsPublic())
}
