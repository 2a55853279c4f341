package flow_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heliannuuthus-iam/authn-api/internal/adapter/cache"
	"github.com/heliannuuthus-iam/authn-api/internal/domain"
	"github.com/heliannuuthus-iam/authn-api/internal/flow"
	"github.com/heliannuuthus-iam/authn-api/internal/jwt"
)

type staticConfigs struct {
	clients map[string]*domain.ClientConfig
}

func (s *staticConfigs) ClientConfig(_ context.Context, clientID string) (*domain.ClientConfig, error) {
	return s.clients[clientID], nil
}

func newTestEngine(t *testing.T) (*flow.Engine, *cache.Store) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewStoreWithClient(client, "")

	manager, err := jwt.NewKeyManager(jwt.HS256)
	require.NoError(t, err)
	issuer := jwt.NewIssuer(manager, "https://auth.test/issuer/%s", time.Hour, time.Hour)

	configs := &staticConfigs{clients: map[string]*domain.ClientConfig{
		"client-12345678": {
			ClientID:     "client-12345678",
			RedirectURLs: []string{"https://app.example/cb"},
		},
	}}
	return flow.NewEngine(store, configs, issuer, zap.NewNop()), store
}

func newRequest() domain.AuthorizationRequest {
	return domain.AuthorizationRequest{
		ClientID:     "client-12345678",
		ResponseType: []domain.ResponseType{domain.ResponseTypeCode},
		Scope:        []string{"openid"},
		RedirectURI:  "https://app.example/cb",
		State:        "st-1",
	}
}

func TestCreateAndValidateOpenIDRequest(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	require.Len(t, f.ID, 24)
	require.Equal(t, domain.StageInitialized, f.Stage)

	require.NoError(t, engine.Validate(ctx, f))
	require.Equal(t, []domain.FlowType{domain.FlowTypeOAuth, domain.FlowTypeOIDC}, f.Types)
	require.Equal(t, "/login", engine.NextURI(f))
}

func TestValidateIsIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	require.NoError(t, engine.Validate(ctx, f))
	require.NoError(t, engine.Validate(ctx, f))
	require.Equal(t, []domain.FlowType{domain.FlowTypeOAuth, domain.FlowTypeOIDC}, f.Types)
}

func TestValidateRejectsConflictingResponseTypes(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	request := newRequest()
	request.ResponseType = []domain.ResponseType{domain.ResponseTypeCode, domain.ResponseTypeIDToken}
	f, err := engine.Create(ctx, request)
	require.NoError(t, err)

	err = engine.Validate(ctx, f)
	require.Error(t, err)
	require.NotNil(t, f.Error)
	require.Equal(t, domain.ErrCodeConflictResponseType, f.Error.Code)
}

func TestValidateAllowsPartialConflictOverlap(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for _, types := range [][]domain.ResponseType{
		{domain.ResponseTypeCode},
		{domain.ResponseTypeIDToken},
		{domain.ResponseTypeIDToken, domain.ResponseTypeToken},
	} {
		request := newRequest()
		request.ResponseType = types
		f, err := engine.Create(ctx, request)
		require.NoError(t, err)
		require.NoError(t, engine.Validate(ctx, f))
	}
}

func TestValidateRejectsForeignRedirect(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	request := newRequest()
	request.RedirectURI = "https://evil.example/cb"
	f, err := engine.Create(ctx, request)
	require.NoError(t, err)

	err = engine.Validate(ctx, f)
	require.Error(t, err)
	require.Equal(t, domain.ErrCodeInvalidRedirectURL, f.Error.Code)
}

func TestValidateRejectsUnknownClient(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	request := newRequest()
	request.ClientID = "client-unknown1"
	f, err := engine.Create(ctx, request)
	require.NoError(t, err)

	err = engine.Validate(ctx, f)
	require.Error(t, err)
	require.Equal(t, domain.ErrCodeInvalidClient, f.Error.Code)
}

func TestAdvanceForwardOnly(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)

	require.NoError(t, engine.Advance(f, domain.StageAuthenticating))
	require.ErrorIs(t, engine.Advance(f, domain.StageInitialized), domain.ErrStageRegression)
	require.ErrorIs(t, engine.Advance(f, domain.StageAuthenticating), domain.ErrStageRegression)
}

func TestCompleteMintsTokens(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	require.NoError(t, engine.Validate(ctx, f))
	require.NoError(t, engine.Advance(f, domain.StageAuthenticating))
	require.NoError(t, engine.Authenticate(f, &domain.SubjectProfile{OpenID: "openid-1", Nickname: "Nick"}))
	require.Equal(t, domain.StageAuthenticated, f.Stage)
	require.NoError(t, engine.Authorize(f))
	require.Equal(t, domain.StageAuthorized, f.Stage)

	tokens, err := engine.Complete(ctx, f)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.IDToken)
	require.NotEmpty(t, tokens.Code)
	require.Equal(t, "st-1", tokens.State)
	require.Equal(t, domain.StageCompleted, f.Stage)
}

func TestCompleteSkipsIDTokenWithoutOpenIDScope(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	request := newRequest()
	request.Scope = nil
	f, err := engine.Create(ctx, request)
	require.NoError(t, err)
	require.NoError(t, engine.Validate(ctx, f))
	require.NoError(t, engine.Advance(f, domain.StageAuthenticating))
	require.NoError(t, engine.Authenticate(f, &domain.SubjectProfile{OpenID: "openid-1"}))
	require.NoError(t, engine.Authorize(f))

	tokens, err := engine.Complete(ctx, f)
	require.NoError(t, err)
	require.Empty(t, tokens.IDToken)
	require.NotEmpty(t, tokens.AccessToken)
}

func TestAuthorizeRequiresSubject(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)

	err = engine.Authorize(f)
	require.Error(t, err)
	require.Equal(t, domain.ErrCodeLoginRequired, f.Error.Code)
}

func TestCompleteRequiresAuthorizedStage(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)

	_, err = engine.Complete(ctx, f)
	require.ErrorIs(t, err, domain.ErrStageRegression)
}

func TestPersistAndReload(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	require.NoError(t, engine.Persist(ctx, f))

	reloaded, err := engine.Reload(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, f.ID, reloaded.ID)
	require.Equal(t, f.Request.ClientID, reloaded.Request.ClientID)
}

func TestReloadUnknownSession(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Reload(context.Background(), "missing-session")
	require.ErrorIs(t, err, domain.ErrFlowNotFound)

	_, err = engine.Reload(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestReloadExpiredFlow(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	f.ExpiresAt = time.Now().Add(-time.Minute)
	// still physically present in the store
	require.NoError(t, store.Set(ctx, "auth:flow:"+f.ID, f, time.Hour))

	_, err = engine.Reload(ctx, f.ID)
	require.ErrorIs(t, err, domain.ErrFlowExpired)
}

func TestPersistExpiredFlowFailsFast(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	f.ExpiresAt = time.Now().Add(-time.Second)

	require.ErrorIs(t, engine.Persist(ctx, f), domain.ErrFlowExpired)
}

func TestDispatchStatusPerStage(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	require.NoError(t, engine.Validate(ctx, f))

	cases := []struct {
		stage    domain.Stage
		status   int
		location string
	}{
		{domain.StageInitialized, http.StatusMultipleChoices, "/login"},
		{domain.StageAuthenticating, http.StatusMultipleChoices, "/login"},
		{domain.StageAuthenticated, http.StatusMovedPermanently, "/confirm"},
		{domain.StageAuthorized, http.StatusMovedPermanently, "https://app.example/cb"},
		{domain.StageCompleted, http.StatusFound, "/done"},
	}
	for _, tc := range cases {
		f.Stage = tc.stage
		decision := engine.Dispatch(f)
		require.Equal(t, tc.status, decision.Status)
		require.Equal(t, tc.location, decision.Location)
		require.Equal(t, flow.SessionCookieName, decision.CookieName)
		require.Equal(t, f.ID, decision.CookieValue)
		require.Equal(t, 600, decision.CookieMaxAge)
	}
}

func TestNextURIAppendsError(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.Create(ctx, newRequest())
	require.NoError(t, err)
	f.Fail(domain.NewAuthError(domain.ErrCodeAccessDenied, "user said no"))

	require.Contains(t, engine.NextURI(f), "error=access_denied")

	f.Stage = domain.StageAuthorized
	f.ClientConfig = &domain.ClientConfig{ClientID: f.Request.ClientID, RedirectURLs: []string{f.Request.RedirectURI}}
	uri := engine.NextURI(f)
	require.Contains(t, uri, "https://app.example/cb")
	require.Contains(t, uri, "error=access_denied")
}
