package srp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
)

const (
	challengeKeyPrefix = "auth:srp:"
	challengeTTL       = time.Minute
	ephemeralSize      = 64
)

// CredentialStore resolves the long-lived verifier record for an identifier.
type CredentialStore interface {
	FetchSrpCredential(ctx context.Context, identifier string) (*domain.SrpCredential, error)
}

// ChallengeStore keeps the per-attempt verifier between the challenge
// and proof legs of a login.
type ChallengeStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Challenge is the pre-login response handed back to the client.
type Challenge struct {
	Salt            string `json:"salt"`
	ServerPublicKey string `json:"server_public_key"`
}

// Authenticator drives password logins over SRP. A pre-login call
// issues the server ephemeral and stashes the derived verifier under
// the identifier; the matching login call consumes it. A repeated
// pre-login simply overwrites the previous challenge.
type Authenticator struct {
	server      *Server
	credentials CredentialStore
	challenges  ChallengeStore
	group       singleflight.Group
	logger      *zap.Logger
}

// NewAuthenticator wires an authenticator over the 2048-bit group.
func NewAuthenticator(credentials CredentialStore, challenges ChallengeStore, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.L()
	}
	return &Authenticator{
		server:      NewServer(G2048),
		credentials: credentials,
		challenges:  challenges,
		logger:      logger,
	}
}

func challengeKey(identifier string) string {
	return challengeKeyPrefix + identifier
}

// PreLogin answers an SRP handshake: it fetches the stored verifier,
// draws a fresh server exponent, derives the proofs for the presented
// client public value, and returns the salt together with B.
// Concurrent calls for the same identifier collapse into one challenge
// so both callers see the same B.
func (a *Authenticator) PreLogin(ctx context.Context, identifier, clientPublicKey string) (*Challenge, error) {
	result, err, _ := a.group.Do(identifier, func() (any, error) {
		return a.preLogin(ctx, identifier, clientPublicKey)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Challenge), nil
}

func (a *Authenticator) preLogin(ctx context.Context, identifier, clientPublicKey string) (*Challenge, error) {
	aPub, err := hex.DecodeString(clientPublicKey)
	if err != nil || len(aPub) == 0 {
		return nil, domain.ErrVerificationFailed
	}

	credential, err := a.credentials.FetchSrpCredential(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("fetch srp credential: %w", err)
	}
	if credential == nil {
		return nil, domain.ErrInvalidIdentifier
	}
	verifier, err := hex.DecodeString(credential.Verifier)
	if err != nil {
		return nil, fmt.Errorf("decode verifier: %w", err)
	}

	b := make([]byte, ephemeralSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("draw server ephemeral: %w", err)
	}

	bPub := a.server.ComputePublicEphemeral(b, verifier)
	state, err := a.server.ProcessReply(b, verifier, aPub)
	if err != nil {
		return nil, err
	}

	if err := a.challenges.Set(ctx, challengeKey(identifier), state, challengeTTL); err != nil {
		return nil, fmt.Errorf("persist srp challenge: %w", err)
	}

	a.logger.Debug("srp challenge issued", zap.String("identifier", identifier))

	return &Challenge{
		Salt:            credential.Salt,
		ServerPublicKey: hex.EncodeToString(bPub),
	}, nil
}

// Login consumes the pending challenge for the identifier and checks
// the client proof. On success it returns the server proof M2; the
// challenge is discarded either way so a proof cannot be retried.
func (a *Authenticator) Login(ctx context.Context, identifier, proof string) (string, error) {
	submitted, err := hex.DecodeString(proof)
	if err != nil || len(submitted) == 0 {
		return "", domain.ErrVerificationFailed
	}

	var state ServerVerifier
	found, err := a.challenges.Get(ctx, challengeKey(identifier), &state)
	if err != nil {
		return "", fmt.Errorf("load srp challenge: %w", err)
	}
	if !found {
		return "", domain.ErrChallengeNotFound
	}
	if err := a.challenges.Delete(ctx, challengeKey(identifier)); err != nil {
		a.logger.Warn("discard srp challenge", zap.String("identifier", identifier), zap.Error(err))
	}

	if err := state.VerifyClient(submitted); err != nil {
		a.logger.Info("srp proof rejected", zap.String("identifier", identifier))
		return "", err
	}

	return hex.EncodeToString(state.Proof()), nil
}
