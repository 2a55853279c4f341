package srp_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
	"github.com/heliannuuthus-iam/authn-api/internal/srp"
)

type fakeCredentialStore struct {
	records map[string]*domain.SrpCredential
}

func (f *fakeCredentialStore) FetchSrpCredential(_ context.Context, identifier string) (*domain.SrpCredential, error) {
	return f.records[identifier], nil
}

type fakeChallengeStore struct {
	entries map[string][]byte
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{entries: map[string][]byte{}}
}

func (f *fakeChallengeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = payload
	return nil
}

func (f *fakeChallengeStore) Get(_ context.Context, key string, dest any) (bool, error) {
	payload, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(payload, dest)
}

func (f *fakeChallengeStore) Delete(_ context.Context, key string) error {
	delete(f.entries, key)
	return nil
}

func newTestAuthenticator(t *testing.T) (*srp.Authenticator, *clientSession) {
	t.Helper()
	client := newClientSession(t)
	credentials := &fakeCredentialStore{records: map[string]*domain.SrpCredential{
		"alice@example.com": {
			Identifier: "alice@example.com",
			Verifier:   hex.EncodeToString(client.verifier()),
			Salt:       "8d969eef6ecad3c2",
		},
	}}
	return srp.NewAuthenticator(credentials, newFakeChallengeStore(), zap.NewNop()), client
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	auth, client := newTestAuthenticator(t)
	ctx := context.Background()

	challenge, err := auth.PreLogin(ctx, "alice@example.com", hex.EncodeToString(client.aPub.Bytes()))
	require.NoError(t, err)
	require.Equal(t, "8d969eef6ecad3c2", challenge.Salt)

	bPub, err := hex.DecodeString(challenge.ServerPublicKey)
	require.NoError(t, err)

	serverProof, err := auth.Login(ctx, "alice@example.com", hex.EncodeToString(client.proof(bPub)))
	require.NoError(t, err)
	require.NotEmpty(t, serverProof)
}

func TestAuthenticatorUnknownIdentifier(t *testing.T) {
	auth, client := newTestAuthenticator(t)

	_, err := auth.PreLogin(context.Background(), "nobody@example.com", hex.EncodeToString(client.aPub.Bytes()))
	require.ErrorIs(t, err, domain.ErrInvalidIdentifier)
}

func TestAuthenticatorLoginWithoutChallenge(t *testing.T) {
	auth, _ := newTestAuthenticator(t)

	_, err := auth.Login(context.Background(), "alice@example.com", "deadbeef")
	require.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestAuthenticatorConsumesChallengeOnFailure(t *testing.T) {
	auth, client := newTestAuthenticator(t)
	ctx := context.Background()

	_, err := auth.PreLogin(ctx, "alice@example.com", hex.EncodeToString(client.aPub.Bytes()))
	require.NoError(t, err)

	_, err = auth.Login(ctx, "alice@example.com", "deadbeef")
	require.ErrorIs(t, err, domain.ErrVerificationFailed)

	// the failed attempt burned the challenge
	_, err = auth.Login(ctx, "alice@example.com", "deadbeef")
	require.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestAuthenticatorOverwritesPreviousChallenge(t *testing.T) {
	auth, client := newTestAuthenticator(t)
	ctx := context.Background()

	first, err := auth.PreLogin(ctx, "alice@example.com", hex.EncodeToString(client.aPub.Bytes()))
	require.NoError(t, err)
	second, err := auth.PreLogin(ctx, "alice@example.com", hex.EncodeToString(client.aPub.Bytes()))
	require.NoError(t, err)
	require.NotEqual(t, first.ServerPublicKey, second.ServerPublicKey)

	// only the latest challenge verifies
	bPub, err := hex.DecodeString(second.ServerPublicKey)
	require.NoError(t, err)
	_, err = auth.Login(ctx, "alice@example.com", hex.EncodeToString(client.proof(bPub)))
	require.NoError(t, err)
}

func TestAuthenticatorRejectsMalformedClientKey(t *testing.T) {
	auth, _ := newTestAuthenticator(t)

	_, err := auth.PreLogin(context.Background(), "alice@example.com", "not-hex")
	require.ErrorIs(t, err, domain.ErrVerificationFailed)
}
