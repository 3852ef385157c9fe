package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/coursebridge/launchgate/internal/config"
	"github.com/coursebridge/launchgate/internal/migrate"
	"github.com/coursebridge/launchgate/launch"
	"github.com/coursebridge/launchgate/nonce"
	"github.com/coursebridge/launchgate/outcomes"
	"github.com/coursebridge/launchgate/outcomes/postgres"
	outcomefakes "github.com/coursebridge/launchgate/outcomes/repofakes"
	"github.com/coursebridge/launchgate/providers"
	"github.com/coursebridge/launchgate/rate"
	"github.com/coursebridge/launchgate/runtimeauth"
	"github.com/coursebridge/launchgate/server"
	"github.com/coursebridge/launchgate/token"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()
	cfg := config.New()
	logger := newLogger(cfg)

	displayAppname(cfg.GetAppName())
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	if cfg.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	launchSecret := cfg.GetLaunchSecret()
	runtimeSecret := cfg.GetRuntimeSecret()
	if launchSecret == "" || runtimeSecret == "" {
		return errors.New("LAUNCH_TOKEN_SECRET and RUNTIME_TOKEN_SECRET are required")
	}

	dir, err := providers.LoadFile(cfg.GetProvidersFile())
	if err != nil {
		return errors.Wrap(err, "load provider registry")
	}

	registry, limiter, err := buildSharedState(cfg, logger)
	if err != nil {
		return err
	}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	usage := outcomes.NewPrometheusUsage(metrics)

	var svcOptions []outcomes.ServiceOption
	svcOptions = append(svcOptions, outcomes.WithLogger(logger))
	if secret := cfg.GetAssetSecret(); secret != "" {
		svcOptions = append(svcOptions, outcomes.WithAssetURLSigning(secret, cfg.GetAssetURLTTL()))
	}
	svc, err := outcomes.NewService(store, limiter, usage, svcOptions...)
	if err != nil {
		return errors.Wrap(err, "outcomes service")
	}

	exchanger, err := launch.NewExchanger(dir, registry,
		token.NewHMACSigner(launchSecret), token.NewHMACSigner(runtimeSecret),
		cfg.GetBaseURL(),
		launch.WithRuntimeTTL(cfg.GetRuntimeTokenTTL()),
		launch.WithClockSkew(cfg.GetClockSkew()),
		launch.WithOriginAllowList(cfg.GetOriginAllowList()),
		launch.WithRemoteKeys(providers.NewRemoteKeys()),
		launch.WithLogger(logger),
	)
	if err != nil {
		return errors.Wrap(err, "exchanger")
	}

	authorizer, err := runtimeauth.NewAuthorizer(token.NewHMACSigner(runtimeSecret),
		runtimeauth.WithClockSkew(cfg.GetClockSkew()))
	if err != nil {
		return errors.Wrap(err, "authorizer")
	}

	srv, err := server.New(exchanger, authorizer, svc,
		server.WithMetrics(metrics),
		server.WithServerLogger(logger),
	)
	if err != nil {
		return errors.Wrap(err, "server")
	}

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildSharedState(cfg config.Config, logger zerolog.Logger) (nonce.Registry, rate.Limiter, error) {
	addr := cfg.GetRedisAddr()
	if addr == "" {
		logger.Warn().Msg("no REDIS_ADDR configured, using in-process nonce registry and rate limiter (single instance only)")
		return nonce.NewMemoryRegistry(),
			rate.NewMemoryLimiter(cfg.GetRateLimitMax(), cfg.GetRateLimitWindow()),
			nil
	}

	client := rdb.NewClient(&rdb.Options{Addr: addr, Password: cfg.GetRedisPassword()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, nil, errors.Wrap(err, "redis ping")
	}
	return nonce.NewRedisRegistry(client, ""),
		rate.NewRedisLimiter(client, "", cfg.GetRateLimitMax(), cfg.GetRateLimitWindow()),
		nil
}

func buildStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (outcomes.Store, error) {
	dsn := cfg.GetPostgresDSN()
	if dsn == "" {
		logger.Warn().Msg("no POSTGRES_DSN configured, outcome writes are not durable")
		return outcomefakes.NewFakeStore(), nil
	}

	if err := migrate.Up(ctx, dsn); err != nil {
		return nil, errors.Wrap(err, "migrations")
	}
	db, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres pool")
	}
	return postgres.NewStore(db), nil
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("listen and serve")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
