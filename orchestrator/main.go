package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/deploy"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/execution"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/auth"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/env"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/httpserver"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/objectstore"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/platform/postgres"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/policy"
	repopg "github.com/wasmfleet-labs/wasmfleet-go/internal/repo/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("WASMFLEET_HTTP_ADDR", ":3000")
	shutdownTimeout, err := env.Duration("WASMFLEET_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	// Base URL devices use to reach back, for module package fetches and
	// log forwarding.
	publicURL := env.String("WASMFLEET_PUBLIC_URL", "http://localhost:3000")

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := repopg.EnsureSchema(startupCtx, db); err != nil {
		cancel()
		logger.Error("schema migration failed", "error", err)
		os.Exit(1)
	}
	cancel()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	store, err := objectstore.NewMinioStore(storeClient)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(2)
	}

	uploadMaxMiB, err := env.Int("WASMFLEET_UPLOAD_MAX_MIB", 256)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("orchestrator"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"orchestrator",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	deploymentStore := repopg.NewDeploymentStore(db)
	deviceStore := repopg.NewDeviceStore(db)
	moduleStore := repopg.NewModuleStore(db)
	cardStore := repopg.NewCardStore(db)
	zoneStore := repopg.NewZoneStore(db)
	certificateStore := repopg.NewCertificateStore(db)
	logStore := repopg.NewLogStore(db)

	validator := policy.NewValidator(deploymentStore, cardStore, zoneStore, certificateStore, logger)
	resolver := deploy.NewResolver(deviceStore, moduleStore)
	builder := deploy.NewBuilder(publicURL, logger)
	solver := deploy.NewSolver(resolver, builder, deploymentStore, validator.Validate, logger)
	pusher := deploy.NewPusher(deviceStore, nil)
	runner := execution.NewRunner(nil, logger)

	api := &orchestratorAPI{
		logger:         logger,
		deployments:    deploymentStore,
		devices:        deviceStore,
		modules:        moduleStore,
		cards:          cardStore,
		zones:          zoneStore,
		certificates:   certificateStore,
		logs:           logStore,
		solver:         solver,
		pusher:         pusher,
		runner:         runner,
		store:          store,
		moduleBucket:   storeCfg.BucketModules,
		publicURL:      publicURL,
		uploadMaxBytes: int64(uploadMaxMiB) << 20,
	}
	api.probe = api.probeDevice
	api.register(mux)

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	var handler http.Handler = mux
	if authCfg.Mode != auth.ModeDisabled {
		var authenticator auth.Authenticator
		switch authCfg.Mode {
		case auth.ModeOIDC:
			authenticator, err = auth.NewOIDCAuthenticator(ctx, authCfg)
			if err != nil {
				logger.Error("oidc init failed", "error", err)
				os.Exit(2)
			}
		default:
			authenticator = auth.NewDevAuthenticator(authCfg)
		}
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			Authorize:     auth.OperatorWriteAuthorizer(),
			// Device-facing surfaces: supervisors push logs and
			// self-register without operator credentials.
			SkipPrefixes: []string{
				"/healthz",
				"/readyz",
				"/device/logs",
				"/file/device/discovery/register",
			},
		}.Wrap(mux)
	}

	cfg := httpserver.Config{
		Service:         "orchestrator",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "orchestrator", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
