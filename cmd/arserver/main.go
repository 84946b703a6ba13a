// Package main is the ARServer entry point: the orchestration hub clients
// connect to over a single duplex websocket channel.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/robofit/arcor2-sub002/internal/buildclient"
	"github.com/robofit/arcor2-sub002/internal/common/config"
	"github.com/robofit/arcor2-sub002/internal/common/logger"
	"github.com/robofit/arcor2-sub002/internal/common/tracing"
	"github.com/robofit/arcor2-sub002/internal/dispatcher"
	"github.com/robofit/arcor2-sub002/internal/execbridge"
	"github.com/robofit/arcor2-sub002/internal/execbridge/supervisor"
	"github.com/robofit/arcor2-sub002/internal/hubctx"
	"github.com/robofit/arcor2-sub002/internal/lock"
	"github.com/robofit/arcor2-sub002/internal/notify"
	"github.com/robofit/arcor2-sub002/internal/objecttype"
	"github.com/robofit/arcor2-sub002/internal/packagebuild"
	"github.com/robofit/arcor2-sub002/internal/sceneruntime"
	"github.com/robofit/arcor2-sub002/internal/session"
	"github.com/robofit/arcor2-sub002/internal/simclient"
	"github.com/robofit/arcor2-sub002/internal/state"
	"github.com/robofit/arcor2-sub002/internal/storeclient"
)

var (
	verboseFlag    = flag.Bool("verbose", false, "enable debug-level logging")
	debugFlag      = flag.Bool("debug", false, "enable debug logging and HTTP router debug output")
	versionFlag    = flag.Bool("version", false, "print the server version and exit")
	apiVersionFlag = flag.Bool("api_version", false, "print the wire API version and exit")
	swaggerFlag    = flag.Bool("swagger", false, "print the RPC catalogue as JSON and exit")
)

var asyncioDebugFlag = flag.Bool("asyncio-debug", false, "accepted for compatibility; enables debug-level logging")

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(dispatcher.ServerVersion())
		return
	}
	if *apiVersionFlag {
		fmt.Println(dispatcher.APIVersion())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "arserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if *verboseFlag || *debugFlag || *asyncioDebugFlag {
		level = "debug"
	}
	log, err := logger.New(logger.Config{
		Level:      level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tracing.Init(ctx, cfg.Tracing.OTLPEndpoint); err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancelShutdown()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// Session registry first: the bus fans out through it, and everything
	// downstream publishes to the bus.
	registry := session.NewRegistry(log)

	var bus notify.Bus
	if cfg.Events.NATSURL != "" {
		log.Info("connecting to NATS event bus", zap.String("url", cfg.Events.NATSURL))
		natsBus, err := notify.NewNATSBus(cfg.Events.NATSURL, cfg.Events.Namespace, registry.ClientRegistry(), log)
		if err != nil {
			return fmt.Errorf("connect NATS event bus: %w", err)
		}
		defer natsBus.Close()
		bus = natsBus
	} else {
		bus = notify.NewMemoryBus(registry.ClientRegistry(), log)
	}

	lock.Configure(cfg.Lock.Retries, cfg.Lock.RetryGap)
	locks := lock.New(bus, log)
	cached := state.New()

	types := objecttype.NewRegistry(log)
	types.LoadBuiltins()
	typesDir := filepath.Join(cfg.Scene.DataPath, "object_types")
	if _, err := os.Stat(typesDir); err == nil {
		if err := types.LoadFromSource(typesDir, objecttype.LineMetadataParser{}); err != nil {
			return fmt.Errorf("load object types: %w", err)
		}
	}

	sceneStoreURL := cfg.Store.SceneStoreURL
	if sceneStoreURL == "" {
		sceneStoreURL = cfg.Store.ProjectServiceURL
	}
	store := storeclient.New(cfg.Store.ProjectServiceURL, sceneStoreURL, log)
	sim := simclient.New(cfg.Simulation.URL, log)
	build := buildclient.New(cfg.Build.URL, log)

	runtime := sceneruntime.New(cached, types, locks, sim, bus, log)
	runtime.SetTelemetryPeriod(cfg.Scene.StreamingPeriod)

	bridge := execbridge.New(cfg.Execution.URL, bus, nil, log)
	if cfg.Execution.URL != "" {
		go bridge.Run(ctx)
	} else {
		log.Warn("no execution runtime configured, execution RPCs will queue until one appears")
	}

	if cfg.Docker.Enabled {
		sup, err := supervisor.New(supervisor.Config{Image: cfg.Docker.Image, Name: "arserver-execution"}, log)
		if err != nil {
			return fmt.Errorf("create execution supervisor: %w", err)
		}
		if err := sup.Start(ctx); err != nil {
			return fmt.Errorf("start execution container: %w", err)
		}
		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := sup.Stop(stopCtx); err != nil {
				log.Warn("failed to stop execution container", zap.Error(err))
			}
		}()
	}

	hc := hubctx.New(cached, types, locks, runtime, bus, store, sim, build, bridge, log)

	d := dispatcher.New(hc, log)
	dispatcher.RegisterSessionHandlers(d)
	dispatcher.RegisterLockHandlers(d)
	dispatcher.RegisterObjectTypeHandlers(d)
	dispatcher.RegisterSceneHandlers(d)
	dispatcher.RegisterSceneRobotPoseHandler(d)
	dispatcher.RegisterProjectHandlers(d)
	dispatcher.RegisterProjectItemHandlers(d)
	dispatcher.RegisterRobotHandlers(d)
	dispatcher.RegisterCameraHandlers(d)
	dispatcher.RegisterAimingHandlers(d)

	builder := packagebuild.New(build, bridge, cached, bus, log)
	dispatcher.RegisterExecutionHandlers(d, builder)

	if *swaggerFlag {
		names := d.RegisteredNames()
		sort.Strings(names)
		catalogue, err := json.MarshalIndent(map[string]interface{}{
			"version":    dispatcher.APIVersion(),
			"operations": names,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal RPC catalogue: %w", err)
		}
		fmt.Println(string(catalogue))
		return nil
	}

	registry.Bind(hc, d)

	if *debugFlag {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "arserver"})
	})
	session.NewHandler(registry, log).SetupRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("ARServer listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if st, _ := runtime.State(); st == sceneruntime.Started {
		if err := runtime.Stop(shutdownCtx); err != nil {
			log.Warn("failed to stop scene runtime", zap.Error(err))
		}
	}
	registry.CloseAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	cancel()
	return nil
}
