package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/heliannuuthus-iam/authn-api/internal/adapter/cache"
	oauthadapter "github.com/heliannuuthus-iam/authn-api/internal/adapter/oauth"
	"github.com/heliannuuthus-iam/authn-api/internal/config"
	"github.com/heliannuuthus-iam/authn-api/internal/connector"
	"github.com/heliannuuthus-iam/authn-api/internal/flow"
	httptransport "github.com/heliannuuthus-iam/authn-api/internal/http"
	"github.com/heliannuuthus-iam/authn-api/internal/http/handler"
	httpmiddleware "github.com/heliannuuthus-iam/authn-api/internal/http/middleware"
	"github.com/heliannuuthus-iam/authn-api/internal/jwt"
	"github.com/heliannuuthus-iam/authn-api/internal/rpc"
	"github.com/heliannuuthus-iam/authn-api/internal/server"
	"github.com/heliannuuthus-iam/authn-api/internal/srp"
	"github.com/heliannuuthus-iam/authn-api/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newRedisClient,
			newStore,
			newResolver,
			newRPCClient,
			newConfigCache,
			newOAuthProviderClient,
			newConnectorRegistry,
			newAuthenticator,
			newKeyManager,
			newIssuer,
			newFlowEngine,
			newRateLimiter,
			newAuthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newStore(client redis.UniversalClient) *cacheadapter.Store {
	return cacheadapter.NewStoreWithClient(client, "")
}

func newResolver(cfg config.Config) rpc.Resolver {
	return rpc.NewStaticResolver(cfg.ServiceEndpoints())
}

func newRPCClient(resolver rpc.Resolver) *rpc.Client {
	return rpc.NewClient(nil, resolver)
}

func newConfigCache(client *rpc.Client, cfg config.Config) *cacheadapter.ConfigCache {
	return cacheadapter.NewConfigCache(client, cfg.ConfigCacheTTL)
}

func newOAuthProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newConnectorRegistry(provider oauthadapter.ProviderClient) *connector.Registry {
	return connector.NewRegistry(provider)
}

func newAuthenticator(client *rpc.Client, store *cacheadapter.Store, logger *zap.Logger) *srp.Authenticator {
	return srp.NewAuthenticator(client, store, logger)
}

func newKeyManager(cfg config.Config) (*jwt.KeyManager, error) {
	return jwt.NewKeyManager(jwt.Algorithm(cfg.SigningAlgorithm))
}

func newIssuer(manager *jwt.KeyManager, cfg config.Config) *jwt.Issuer {
	return jwt.NewIssuer(manager, cfg.IssuerFormat, cfg.AccessTokenTTL, cfg.IDTokenTTL)
}

func newFlowEngine(store *cacheadapter.Store, configs *cacheadapter.ConfigCache, issuer *jwt.Issuer, logger *zap.Logger) *flow.Engine {
	return flow.NewEngine(store, configs, issuer, logger)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthHandler(
	engine *flow.Engine,
	authenticator *srp.Authenticator,
	configs *cacheadapter.ConfigCache,
	client *rpc.Client,
	registry *connector.Registry,
	store *cacheadapter.Store,
	keys *jwt.KeyManager,
	cfg config.Config,
	logger *zap.Logger,
) *handler.AuthHandler {
	return handler.NewAuthHandler(engine, authenticator, configs, client, registry, store, keys, cfg.ExternalURL, logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
