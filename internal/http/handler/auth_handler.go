package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heliannuuthus-iam/authn-api/internal/adapter/cache"
	"github.com/heliannuuthus-iam/authn-api/internal/connector"
	"github.com/heliannuuthus-iam/authn-api/internal/domain"
	"github.com/heliannuuthus-iam/authn-api/internal/flow"
	"github.com/heliannuuthus-iam/authn-api/internal/jwt"
	"github.com/heliannuuthus-iam/authn-api/internal/rpc"
	"github.com/heliannuuthus-iam/authn-api/internal/srp"
)

const (
	oauthStateKeyPrefix = "auth:oauth:state:"
	oauthStateTTL       = 10 * time.Minute
)

// AuthHandler orchestrates the authorization endpoints.
type AuthHandler struct {
	engine    *flow.Engine
	srp       *srp.Authenticator
	configs   *cache.ConfigCache
	users     *rpc.Client
	registry  *connector.Registry
	store     *cache.Store
	keys      *jwt.KeyManager
	external  string
	jwksKeyID string
	logger    *zap.Logger
}

// NewAuthHandler creates the handler set. externalURL is the public
// base URL of this server, used for connector callbacks and discovery.
func NewAuthHandler(
	engine *flow.Engine,
	authenticator *srp.Authenticator,
	configs *cache.ConfigCache,
	users *rpc.Client,
	registry *connector.Registry,
	store *cache.Store,
	keys *jwt.KeyManager,
	externalURL string,
	logger *zap.Logger,
) *AuthHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &AuthHandler{
		engine:    engine,
		srp:       authenticator,
		configs:   configs,
		users:     users,
		registry:  registry,
		store:     store,
		keys:      keys,
		external:  strings.TrimSuffix(externalURL, "/"),
		jwksKeyID: uuid.NewString(),
		logger:    logger,
	}
}

// applyDecision writes the session cookie and issues the redirect.
func applyDecision(c *gin.Context, decision flow.Decision) {
	c.SetCookie(decision.CookieName, decision.CookieValue, decision.CookieMaxAge, "/", "", false, true)
	c.Redirect(decision.Status, decision.Location)
}

// renderError maps component errors onto their HTTP class.
func (h *AuthHandler) renderError(c *gin.Context, err error) {
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &authErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             string(authErr.Code),
			"error_description": authErr.Description,
		})
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrFlowExpired):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error":             "flow_not_found",
			"error_description": "No active authorization flow. Restart at /authorize.",
		})
	case errors.Is(err, domain.ErrChallengeNotFound):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error":             "challenge_not_found",
			"error_description": "No pending challenge. Restart at /login/pre.",
		})
	case errors.Is(err, domain.ErrInvalidIdentifier):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_identifier",
			"error_description": "Unknown identifier.",
		})
	case errors.Is(err, domain.ErrVerificationFailed):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "verification_failed",
			"error_description": "Verification failed.",
		})
	case errors.Is(err, domain.ErrUnknownConnector):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "unknown_connector",
			"error_description": "Connector is not supported.",
		})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Internal error.",
		})
	}
}

// reloadFlow resolves the flow referenced by the session cookie.
func (h *AuthHandler) reloadFlow(c *gin.Context) (*domain.Flow, error) {
	session, err := c.Cookie(flow.SessionCookieName)
	if err != nil {
		return nil, domain.ErrFlowNotFound
	}
	return h.engine.Reload(c.Request.Context(), session)
}

// Authorize accepts an authorization request and opens a flow. The
// response is always a redirect carrying the session cookie; request
// validation failures ride along as error query parameters.
func (h *AuthHandler) Authorize(c *gin.Context) {
	var request domain.AuthorizationRequest
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "Malformed authorization request.",
		})
		return
	}

	ctx := c.Request.Context()
	f, err := h.engine.Create(ctx, request)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if err := h.engine.Validate(ctx, f); err != nil {
		var authErr *domain.AuthError
		if !errors.As(err, &authErr) {
			h.renderError(c, err)
			return
		}
		// recovered into the flow and rendered as a redirect
	}
	if err := h.engine.Persist(ctx, f); err != nil {
		h.renderError(c, err)
		return
	}
	applyDecision(c, h.engine.Dispatch(f))
}

type preLoginRequest struct {
	Identifier      string `json:"identifier" form:"identifier" binding:"required"`
	ClientPublicKey string `json:"client_public_key" form:"client_public_key" binding:"required"`
}

// PreLogin answers the SRP challenge leg.
func (h *AuthHandler) PreLogin(c *gin.Context) {
	var request preLoginRequest
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "identifier and client_public_key are required.",
		})
		return
	}

	ctx := c.Request.Context()
	f, err := h.reloadFlow(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	challenge, err := h.srp.PreLogin(ctx, request.Identifier, request.ClientPublicKey)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if f.Stage == domain.StageInitialized {
		if err := h.engine.Advance(f, domain.StageAuthenticating); err != nil {
			h.renderError(c, err)
			return
		}
		if err := h.engine.Persist(ctx, f); err != nil {
			h.renderError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"salt":              challenge.Salt,
		"server_public_key": challenge.ServerPublicKey,
	})
}

type loginRequest struct {
	Identifier string `json:"identifier" form:"identifier" binding:"required"`
	Proof      string `json:"proof" form:"proof" binding:"required"`
}

// Login consumes the SRP proof leg and authenticates the flow.
func (h *AuthHandler) Login(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "identifier and proof are required.",
		})
		return
	}

	ctx := c.Request.Context()
	f, err := h.reloadFlow(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	serverProof, err := h.srp.Login(ctx, request.Identifier, request.Proof)
	if err != nil {
		h.renderError(c, err)
		return
	}

	subject, err := h.users.FetchSubject(ctx, request.Identifier)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if subject == nil {
		h.renderError(c, domain.ErrInvalidIdentifier)
		return
	}

	if err := h.engine.Authenticate(f, subject); err != nil {
		h.renderError(c, err)
		return
	}
	if err := h.engine.Persist(ctx, f); err != nil {
		h.renderError(c, err)
		return
	}

	c.Header("X-Server-Proof", serverProof)
	applyDecision(c, h.engine.Dispatch(f))
}

// Confirm authorizes an authenticated flow, mints its tokens, and sends
// the browser back to the relying party.
func (h *AuthHandler) Confirm(c *gin.Context) {
	ctx := c.Request.Context()
	f, err := h.reloadFlow(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if err := h.engine.Authorize(f); err != nil {
		h.renderError(c, err)
		return
	}
	tokens, err := h.engine.Complete(ctx, f)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if err := h.engine.Persist(ctx, f); err != nil {
		h.renderError(c, err)
		return
	}

	// tokens travel on the callback URL, not the bare stage target
	decision := h.engine.Dispatch(f)
	decision.Location = callbackURL(f, tokens)
	applyDecision(c, decision)
}

// callbackURL composes the relying-party return URL: code flows answer
// in the query string, implicit grants in the fragment.
func callbackURL(f *domain.Flow, tokens *domain.TokenSet) string {
	target, err := url.Parse(f.Request.RedirectURI)
	if err != nil {
		return f.Request.RedirectURI
	}

	values := url.Values{}
	if tokens.Code != "" {
		values.Set("code", tokens.Code)
	}
	if f.Request.HasResponseType(domain.ResponseTypeToken) {
		values.Set("access_token", tokens.AccessToken)
		values.Set("token_type", tokens.TokenType)
	}
	if tokens.IDToken != "" && f.Request.HasResponseType(domain.ResponseTypeIDToken) {
		values.Set("id_token", tokens.IDToken)
	}
	if f.Request.State != "" {
		values.Set("state", f.Request.State)
	}

	implicit := f.Request.HasResponseType(domain.ResponseTypeToken) ||
		f.Request.HasResponseType(domain.ResponseTypeIDToken)
	if implicit {
		target.Fragment = values.Encode()
		return target.String()
	}

	query := target.Query()
	for key, vals := range values {
		query.Set(key, vals[0])
	}
	target.RawQuery = query.Encode()
	return target.String()
}

type registryRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Verifier   string `json:"verifier" binding:"required"`
	Salt       string `json:"salt" binding:"required"`
}

// Registry stores a fresh SRP verifier record for an identifier.
func (h *AuthHandler) Registry(c *gin.Context) {
	var request registryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "identifier, verifier and salt are required.",
		})
		return
	}

	err := h.users.SaveSrpCredential(c.Request.Context(), domain.SrpCredential{
		Identifier: request.Identifier,
		Verifier:   request.Verifier,
		Salt:       request.Salt,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type challengeRequest struct {
	Identifier string `json:"identifier" form:"identifier" binding:"required"`
}

// Challenge triggers the secondary challenge configured for the flow's
// client, if any.
func (h *AuthHandler) Challenge(c *gin.Context) {
	var request challengeRequest
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "identifier is required.",
		})
		return
	}

	ctx := c.Request.Context()
	f, err := h.reloadFlow(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	config, err := h.configs.ChallengeConfig(ctx, f.Request.ClientID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if config == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "challenge_not_configured",
			"error_description": "This client has no secondary challenge.",
		})
		return
	}

	if err := h.users.DispatchChallenge(ctx, f.Request.ClientID, request.Identifier, config.Type); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"type": string(config.Type), "name": config.Name})
}

// OAuthLogin sends the browser to the requested delegated identity
// provider, binding the round trip to the flow by a random state value.
func (h *AuthHandler) OAuthLogin(c *gin.Context) {
	kind := domain.ConnectorKind(c.Query("connector"))

	ctx := c.Request.Context()
	f, err := h.reloadFlow(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	idpConfig, err := h.configs.ClientIdpConfig(ctx, f.Request.ClientID, kind)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if idpConfig == nil {
		h.renderError(c, domain.ErrUnknownConnector)
		return
	}

	state := uuid.NewString()
	if err := h.store.Set(ctx, oauthStateKeyPrefix+state, f.ID, oauthStateTTL); err != nil {
		h.renderError(c, err)
		return
	}

	target, err := h.registry.AuthorizeURL(*idpConfig, state, h.connectorCallbackURL(kind))
	if err != nil {
		h.renderError(c, err)
		return
	}

	f.IdpConfig = idpConfig
	if f.Stage == domain.StageInitialized {
		if err := h.engine.Advance(f, domain.StageAuthenticating); err != nil {
			h.renderError(c, err)
			return
		}
	}
	if err := h.engine.Persist(ctx, f); err != nil {
		h.renderError(c, err)
		return
	}

	c.Redirect(http.StatusSeeOther, target)
}

// OAuthCallback finishes the delegated round trip: it exchanges the
// code, maps the upstream profile onto a local subject, and advances
// the flow.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	kind := domain.ConnectorKind(c.Param("connector"))

	var reply domain.AuthCodeResponse
	if err := c.ShouldBind(&reply); err != nil || reply.Code == "" || reply.State == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code and state are required.",
		})
		return
	}

	ctx := c.Request.Context()
	var flowID string
	found, err := h.store.Get(ctx, oauthStateKeyPrefix+reply.State, &flowID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if !found {
		h.renderError(c, domain.ErrFlowNotFound)
		return
	}
	_ = h.store.Delete(ctx, oauthStateKeyPrefix+reply.State)

	f, err := h.engine.Reload(ctx, flowID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	idpConfig := f.IdpConfig
	if idpConfig == nil || idpConfig.Kind != kind {
		idpConfig, err = h.configs.ClientIdpConfig(ctx, f.Request.ClientID, kind)
		if err != nil {
			h.renderError(c, err)
			return
		}
		if idpConfig == nil {
			h.renderError(c, domain.ErrUnknownConnector)
			return
		}
	}

	user, err := h.registry.Identify(ctx, *idpConfig, reply.Code, h.connectorCallbackURL(kind))
	if err != nil {
		h.renderError(c, err)
		return
	}
	f.OAuthUser = user
	f.CodeResponse = &reply

	subject, err := h.users.ResolveSubjectByIdp(ctx, kind, user.OpenID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if subject == nil {
		// upstream identity is not linked to a local account yet
		f.Fail(domain.NewAuthError(domain.ErrCodeAccountSelectionRequired, "no account is linked to this identity"))
		if err := h.engine.Persist(ctx, f); err != nil {
			h.renderError(c, err)
			return
		}
		applyDecision(c, h.engine.Dispatch(f))
		return
	}

	if err := h.engine.Authenticate(f, subject); err != nil {
		h.renderError(c, err)
		return
	}
	if err := h.engine.Persist(ctx, f); err != nil {
		h.renderError(c, err)
		return
	}
	applyDecision(c, h.engine.Dispatch(f))
}

func (h *AuthHandler) connectorCallbackURL(kind domain.ConnectorKind) string {
	return h.external + "/oauth/callback/" + string(kind)
}

// OpenIDConfig returns the OpenID discovery document.
func (h *AuthHandler) OpenIDConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"issuer":                                h.external,
		"authorization_endpoint":                h.external + "/authorize",
		"jwks_uri":                              h.external + "/.well-known/jwks.json",
		"response_types_supported":              []string{"code", "token", "id_token"},
		"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{string(h.keys.ActivePair().Algorithm)},
	})
}

// JWKS exposes the active verification key.
func (h *AuthHandler) JWKS(c *gin.Context) {
	set, err := h.keys.JWKS(h.jwksKeyID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}
