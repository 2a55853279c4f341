package flow

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/heliannuuthus-iam/authn-api/internal/domain"
	"github.com/heliannuuthus-iam/authn-api/internal/jwt"
)

const (
	// SessionCookieName correlates a browser with its flow record. The
	// cookie value is the flow ID and nothing more; possession of the
	// store record is what grants continuation.
	SessionCookieName = "heliannuuthus"

	flowTTL      = 10 * time.Minute
	codeTTL      = 10 * time.Minute
	flowIDLength = 24

	flowKeyPrefix = "auth:flow:"
	codeKeyPrefix = "auth:code:"

	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// FlowStore persists flow records between requests.
type FlowStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

// ConfigSource resolves relying-party registrations.
type ConfigSource interface {
	ClientConfig(ctx context.Context, clientID string) (*domain.ClientConfig, error)
}

// Decision is the redirect an engine operation resolved to. The cookie
// rides along on every decision, refreshing flow freshness.
type Decision struct {
	Status       int
	Location     string
	CookieName   string
	CookieValue  string
	CookieMaxAge int
}

// Engine drives an authorization request through the staged state
// machine, persisting the flow after every transition and minting
// tokens at the end.
type Engine struct {
	flows   FlowStore
	configs ConfigSource
	issuer  *jwt.Issuer
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewEngine wires dependencies.
func NewEngine(flows FlowStore, configs ConfigSource, issuer *jwt.Issuer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		flows:   flows,
		configs: configs,
		issuer:  issuer,
		logger:  logger,
		tracer:  otel.Tracer("github.com/heliannuuthus-iam/authn-api/internal/flow"),
		now:     time.Now,
	}
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name)
}

// newID draws an opaque identifier from 24 random bytes. Every byte
// maps onto the base62 alphabet, keeping well over 128 bits of entropy
// at a fixed length.
func newID() (string, error) {
	buf := make([]byte, flowIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("draw flow id: %w", err)
	}
	id := make([]byte, flowIDLength)
	for i, b := range buf {
		id[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(id), nil
}

// Create allocates a fresh flow for the request.
func (e *Engine) Create(ctx context.Context, request domain.AuthorizationRequest) (*domain.Flow, error) {
	_, span := e.startSpan(ctx, "Engine.Create")
	defer span.End()

	id, err := newID()
	if err != nil {
		return nil, err
	}
	flow := &domain.Flow{
		ID:        id,
		Request:   request,
		Stage:     domain.StageInitialized,
		ExpiresAt: e.now().Add(flowTTL),
	}
	e.logger.Info("flow created",
		zap.String("flow_id", flow.ID),
		zap.String("client_id", request.ClientID),
	)
	return flow, nil
}

// Validate checks the request against the client registration and
// resolves the flow types. Failures are recorded on the flow and
// returned; calling it again on the same flow yields the same outcome.
func (e *Engine) Validate(ctx context.Context, flow *domain.Flow) error {
	ctx, span := e.startSpan(ctx, "Engine.Validate")
	defer span.End()

	if flow.ClientConfig == nil {
		config, err := e.configs.ClientConfig(ctx, flow.Request.ClientID)
		if err != nil {
			return fmt.Errorf("resolve client: %w", err)
		}
		if config == nil {
			authErr := domain.NewAuthError(domain.ErrCodeInvalidClient, "unknown client")
			flow.Fail(authErr)
			return authErr
		}
		flow.ClientConfig = config
	}

	if !flow.ClientConfig.AllowsRedirect(flow.Request.RedirectURI) {
		authErr := domain.NewAuthError(domain.ErrCodeInvalidRedirectURL, "redirect_uri is not registered for this client")
		flow.Fail(authErr)
		return authErr
	}

	// The conflict rule fires only when every member of the conflicting
	// combination is requested; partial overlap is allowed.
	conflicting := true
	for _, rt := range domain.ConflictResponseTypes {
		if !flow.Request.HasResponseType(rt) {
			conflicting = false
			break
		}
	}
	if conflicting {
		authErr := domain.NewAuthError(domain.ErrCodeConflictResponseType, "id_token and code cannot be issued in one response")
		flow.Fail(authErr)
		return authErr
	}

	flow.Types = []domain.FlowType{domain.FlowTypeOAuth}
	if flow.Request.HasScope(domain.OpenIDScope) {
		flow.Types = append(flow.Types, domain.FlowTypeOIDC)
	}
	return nil
}

// Advance moves the flow to a later stage. Regressions are rejected.
func (e *Engine) Advance(flow *domain.Flow, to domain.Stage) error {
	if to <= flow.Stage {
		return fmt.Errorf("%w: %s -> %s", domain.ErrStageRegression, flow.Stage, to)
	}
	e.logger.Debug("flow advanced",
		zap.String("flow_id", flow.ID),
		zap.Stringer("from", flow.Stage),
		zap.Stringer("to", to),
	)
	flow.Stage = to
	return nil
}

// Authenticate attaches the resolved subject and moves the flow to
// Authenticated.
func (e *Engine) Authenticate(flow *domain.Flow, subject *domain.SubjectProfile) error {
	profile := subject.Profile()
	flow.Subject = &profile
	flow.Associations = subject.Associations
	return e.Advance(flow, domain.StageAuthenticated)
}

// Authorize moves an authenticated flow to Authorized. Consent is
// implicit here; explicit consent screens belong to the UI surface in
// front of us.
func (e *Engine) Authorize(flow *domain.Flow) error {
	if flow.Subject == nil {
		authErr := domain.NewAuthError(domain.ErrCodeLoginRequired, "no authenticated subject")
		flow.Fail(authErr)
		return authErr
	}
	return e.Advance(flow, domain.StageAuthorized)
}

// Complete mints the token set for an authorized flow and moves it to
// Completed. The access token is always issued; an ID token only on
// OIDC flows; an authorization code only when the client asked for one.
func (e *Engine) Complete(ctx context.Context, flow *domain.Flow) (*domain.TokenSet, error) {
	ctx, span := e.startSpan(ctx, "Engine.Complete")
	defer span.End()

	if flow.Stage != domain.StageAuthorized {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrStageRegression, flow.Stage, domain.StageCompleted)
	}
	if flow.Subject == nil {
		authErr := domain.NewAuthError(domain.ErrCodeLoginRequired, "no authenticated subject")
		flow.Fail(authErr)
		return nil, authErr
	}

	clientID := flow.Request.ClientID
	accessToken, err := e.issuer.MintAccessToken(flow.Subject.OpenID, clientID, clientID, flow.Request.Scope)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	tokens := &domain.TokenSet{
		AccessToken: accessToken,
		State:       flow.Request.State,
		ExpiresIn:   int64(e.issuer.AccessTokenTTL() / time.Second),
		TokenType:   "Bearer",
	}

	if flow.HasType(domain.FlowTypeOIDC) {
		idToken, err := e.issuer.MintIDToken(clientID, *flow.Subject)
		if err != nil {
			return nil, fmt.Errorf("mint id token: %w", err)
		}
		tokens.IDToken = idToken
	}

	if flow.Request.HasResponseType(domain.ResponseTypeCode) {
		code, err := newID()
		if err != nil {
			return nil, err
		}
		if err := e.flows.Set(ctx, codeKeyPrefix+flow.ID, code, codeTTL); err != nil {
			return nil, fmt.Errorf("persist authorization code: %w", err)
		}
		tokens.Code = code
		flow.CodeResponse = &domain.AuthCodeResponse{Code: code, State: flow.Request.State}
	}

	if err := e.Advance(flow, domain.StageCompleted); err != nil {
		return nil, err
	}
	e.logger.Info("audit",
		zap.String("event", "flow.completed"),
		zap.String("flow_id", flow.ID),
		zap.String("client_id", clientID),
		zap.String("subject", flow.Subject.OpenID),
	)
	return tokens, nil
}

// NextURI resolves the continuation target from stage and error alone.
func (e *Engine) NextURI(flow *domain.Flow) string {
	var target string
	switch flow.Stage {
	case domain.StageInitialized, domain.StageAuthenticating:
		target = "/login"
	case domain.StageAuthenticated:
		target = "/confirm"
	case domain.StageAuthorized:
		target = flow.Request.RedirectURI
	case domain.StageCompleted:
		target = "/done"
	default:
		target = "/login"
	}
	if flow.Error == nil {
		return target
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}
	query := parsed.Query()
	query.Set("error", string(flow.Error.Code))
	if flow.Error.Description != "" {
		query.Set("error_description", flow.Error.Description)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// Dispatch maps the flow to its redirect decision. Early stages answer
// with 300 so the client picks a continuation, intermediate stages with
// 301, and a finished flow with 302 back to the relying party.
func (e *Engine) Dispatch(flow *domain.Flow) Decision {
	var status int
	switch flow.Stage {
	case domain.StageInitialized, domain.StageAuthenticating:
		status = http.StatusMultipleChoices
	case domain.StageAuthenticated, domain.StageAuthorized:
		status = http.StatusMovedPermanently
	case domain.StageCompleted:
		status = http.StatusFound
	default:
		status = http.StatusMultipleChoices
	}
	return Decision{
		Status:       status,
		Location:     e.NextURI(flow),
		CookieName:   SessionCookieName,
		CookieValue:  flow.ID,
		CookieMaxAge: int(flowTTL / time.Second),
	}
}

// Persist writes the flow with the time it has left to live.
func (e *Engine) Persist(ctx context.Context, flow *domain.Flow) error {
	ctx, span := e.startSpan(ctx, "Engine.Persist")
	defer span.End()

	now := e.now()
	if flow.Expired(now) {
		return domain.ErrFlowExpired
	}
	if err := e.flows.Set(ctx, flowKeyPrefix+flow.ID, flow, flow.ExpiresAt.Sub(now)); err != nil {
		return fmt.Errorf("persist flow: %w", err)
	}
	return nil
}

// Reload fetches the flow referenced by a session cookie value. Absent
// and expired records are indistinguishable to the caller beyond the
// sentinel: both mean the flow must be restarted.
func (e *Engine) Reload(ctx context.Context, sessionValue string) (*domain.Flow, error) {
	ctx, span := e.startSpan(ctx, "Engine.Reload")
	defer span.End()

	if sessionValue == "" {
		return nil, domain.ErrFlowNotFound
	}
	var flow domain.Flow
	found, err := e.flows.Get(ctx, flowKeyPrefix+sessionValue, &flow)
	if err != nil {
		return nil, fmt.Errorf("load flow: %w", err)
	}
	if !found {
		return nil, domain.ErrFlowNotFound
	}
	if flow.Expired(e.now()) {
		return nil, domain.ErrFlowExpired
	}
	return &flow, nil
}

// Discard drops the stored flow record.
func (e *Engine) Discard(ctx context.Context, flow *domain.Flow) error {
	return e.flows.Delete(ctx, flowKeyPrefix+flow.ID)
}
