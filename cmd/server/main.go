package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/codegouvfr/sill-web/internal/adapter/httpserver"
	"github.com/codegouvfr/sill-web/internal/adapter/keycloak"
	"github.com/codegouvfr/sill-web/internal/adapter/metrics"
	"github.com/codegouvfr/sill-web/internal/adapter/redis"
	"github.com/codegouvfr/sill-web/internal/adapter/sillapi"
	"github.com/codegouvfr/sill-web/internal/app"
	"github.com/codegouvfr/sill-web/internal/catalog"
	"github.com/codegouvfr/sill-web/internal/domain"
	"github.com/codegouvfr/sill-web/internal/platform/config"
	"github.com/codegouvfr/sill-web/internal/platform/crypto"
	"github.com/codegouvfr/sill-web/internal/platform/logging"
)

const (
	startupTimeout        = 30 * time.Second
	shutdownTimeout       = 10 * time.Second
	cacheEvictionInterval = time.Minute
)

// backend is everything the HTTP server needs from the wiring below.
type backend struct {
	factory      app.SessionFactory
	references   *redis.ReferenceCache
	anonymous    app.SessionAPI
	callback     httpserver.LoginCallback
	healthChecks []httpserver.HealthCheck
	redis        *goredis.Client
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupMock serves the catalog from memory with a login that needs no
// identity provider.
func setupMock(cfg *config.Config, clock clockwork.Clock, cacheMetrics *metrics.CacheMetrics) *backend {
	memory := sillapi.NewMemory()
	directory := keycloak.NewMockDirectory()
	refCache := redis.NewReferenceCache(nil, memory.Bind(nil), cfg.ReferenceCacheTTL, clock, cacheMetrics)

	return &backend{
		factory: func(_ context.Context, sessionID string) (domain.Identity, domain.SillAPI, error) {
			identity := directory.Identity(sessionID)
			return identity, memory.Bind(identity), nil
		},
		references: refCache,
		anonymous:  memory.Bind(nil),
	}
}

func setupRemote(ctx context.Context, cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer, cacheMetrics *metrics.CacheMetrics) (*backend, error) {
	client := sillapi.NewClient(cfg.SillAPIURL, sillapi.WithMetrics(metrics.NewBackendMetrics(reg)))
	anonymous := client.Bind(nil)

	serviceConfig, err := anonymous.ServiceConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch service configuration: %w", err)
	}

	redisMetrics := metrics.NewRedisMetrics(reg)
	rdb, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(redisMetrics), redis.NewCircuitBreakerHook(redisMetrics))
	if err != nil {
		return nil, err
	}

	var sealer crypto.Sealer = crypto.Noop{}
	if cfg.TokenEncryptionKey != "" {
		sealer, err = crypto.New(cfg.TokenEncryptionKey)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to create token sealer: %w", err)
		}
	}
	tokens := redis.NewTokenStore(rdb, sealer, cfg.SessionMaxAge)
	refCache := redis.NewReferenceCache(rdb, anonymous, cfg.ReferenceCacheTTL, clock, cacheMetrics)

	b := &backend{
		references: refCache,
		anonymous:  anonymous,
		redis:      rdb,
		healthChecks: []httpserver.HealthCheck{
			{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
			{Name: "sill_api", Check: func(context.Context) error {
				if client.BreakerState() == circuitbreaker.OpenState {
					return errors.New("circuit breaker open")
				}
				return nil
			}},
		},
	}

	if serviceConfig.KeycloakParams == nil {
		slog.Warn("Backend has no Keycloak configuration, login is disabled")
		b.factory = func(context.Context, string) (domain.Identity, domain.SillAPI, error) {
			identity := app.AnonymousIdentity{}
			return identity, app.WithReferenceData(app.WithIdentityUser(anonymous, identity), refCache), nil
		}
		return b, nil
	}

	provider, err := keycloak.NewProvider(*serviceConfig.KeycloakParams, cfg.OIDCClientSecret, cfg.PublicURL, keycloak.LoginDecoration{
		SillAPIURL:        cfg.SillAPIURL,
		AppOrigin:         cfg.PublicOrigin(),
		TermsOfServiceURL: serviceConfig.TermsOfServiceURL,
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}
	slog.Info("Keycloak login enabled", "issuer", provider.Issuer())

	b.factory = func(ctx context.Context, sessionID string) (domain.Identity, domain.SillAPI, error) {
		session, err := keycloak.NewSession(ctx, provider, tokens, sessionID, clock)
		if err != nil {
			return nil, nil, err
		}
		api := app.WithIdentityUser(client.Bind(session), session)
		return session, app.WithReferenceData(api, refCache), nil
	}
	b.callback = keycloak.Callback{Provider: provider, Store: tokens}
	return b, nil
}

func runGracefulShutdown(srv *httpserver.Server, appSvc *app.Service, stopEviction func(), rdb *goredis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		appSvc.Stop()
		stopEviction()

		if rdb != nil {
			if err := rdb.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "mock", cfg.MockMode)

	registry := metrics.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(registry)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	var b *backend
	if cfg.MockMode {
		b = setupMock(cfg, clock, cacheMetrics)
	} else {
		var err error
		b, err = setupRemote(ctx, cfg, clock, registry, cacheMetrics)
		if err != nil {
			slog.Error("Failed to set up SILL API backend", "error", err)
			os.Exit(1)
		}
	}

	stopEviction := b.references.StartEvictionTimer(cacheEvictionInterval)

	appSvc := app.NewService(b.factory, catalog.NewExplorer(b.references), clock, app.Options{
		IdleTimeout: cfg.SessionIdleTimeout,
		Recorder:    metrics.NewProfileMetrics(registry),
		Metrics:     metrics.NewSessionMetrics(registry),
		References:  b.references,
	})
	appSvc.LoadAPIVersion(ctx, b.anonymous)

	// b.callback stays a nil interface when login is disabled
	srv, err := httpserver.NewServer(cfg, appSvc, httpserver.Options{
		Callback:     b.callback,
		HealthChecks: b.healthChecks,
		Registry:     registry,
		Clock:        clock,
	})
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, appSvc, stopEviction, b.redis)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
