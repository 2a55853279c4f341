package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/heliannuuthus-iam/authn-api/internal/config"
	"github.com/heliannuuthus-iam/authn-api/internal/http/handler"
	httpmiddleware "github.com/heliannuuthus-iam/authn-api/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, rateLimiter *httpmiddleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/authorize", authHandler.Authorize)
	r.POST("/authorize", authHandler.Authorize)

	login := r.Group("/login")
	{
		login.GET("/pre", authHandler.PreLogin)
		login.POST("/pre", authHandler.PreLogin)
		login.GET("", authHandler.Login)
		login.POST("", authHandler.Login)
	}

	r.POST("/confirm", authHandler.Confirm)
	r.POST("/challenge", authHandler.Challenge)
	r.POST("/registry", authHandler.Registry)

	oauth := r.Group("/oauth")
	{
		oauth.GET("/login", authHandler.OAuthLogin)
		oauth.GET("/callback/:connector", authHandler.OAuthCallback)
		oauth.POST("/callback/:connector", authHandler.OAuthCallback)
	}

	r.GET("/.well-known/openid-configuration", authHandler.OpenIDConfig)
	r.GET("/.well-known/jwks.json", authHandler.JWKS)

	// UI is served only as static files; the protocol logic stays on the
	// API routes above.
	attachUIRoutes(r, filepath.Join("ui", "dist"))

	return r
}

func attachUIRoutes(r *gin.Engine, distDir string) {
	indexPath := filepath.Join(distDir, "index.html")

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if isAPIPath(path) {
			c.Status(http.StatusNotFound)
			return
		}

		if filePath, ok := safeJoin(distDir, path); ok {
			if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
				c.File(filePath)
				return
			}
		}

		c.File(indexPath)
	})
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/authorize") ||
		strings.HasPrefix(path, "/login") ||
		strings.HasPrefix(path, "/confirm") ||
		strings.HasPrefix(path, "/challenge") ||
		strings.HasPrefix(path, "/registry") ||
		strings.HasPrefix(path, "/oauth") ||
		strings.HasPrefix(path, "/.well-known")
}

func safeJoin(baseDir, requestPath string) (string, bool) {
	trimmed := strings.TrimPrefix(requestPath, "/")
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." {
		return filepath.Join(baseDir, cleaned), true
	}
	if strings.HasPrefix(cleaned, "..") {
		return "", false
	}
	return filepath.Join(baseDir, cleaned), true
}
