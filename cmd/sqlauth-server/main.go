package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/maxpert/sqlauth-go/auth"
	"github.com/maxpert/sqlauth-go/config"
	"github.com/maxpert/sqlauth-go/db"
	"github.com/maxpert/sqlauth-go/metrics"
)

const version = "1.0.0"

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path (YAML)")
		showVersion = flag.Bool("version", false, "Show version and exit")
		initDB      = flag.Bool("init-db", false, "Run the init-db statement once at startup")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sqlauth-server version %s\n", version)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	collector := metrics.NewCollector("sqlauth")
	repo := db.New(cfg.DBURI, cfg.Queries(), db.Options{
		ValidationInterval: cfg.ConnValidInterval,
		Logger:             logger,
		Metrics:            collector,
	})
	if err := repo.Init(cfg.InitDB || *initDB); err != nil {
		logger.Fatal("Repository initialization failed", zap.Error(err))
	}
	defer repo.Close()

	engine := auth.NewEngine(repo, cfg, logger, collector)
	logger.Info("Authentication backend ready",
		zap.Strings("sasl_mechs", engine.ListMechanisms(auth.ProtocolSASL)),
		zap.Strings("non_sasl_mechs", engine.ListMechanisms(auth.ProtocolNonSASL)))

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var telemetry *metrics.Server
	if cfg.TelemetryAddr != "" {
		telemetry = metrics.NewServer(cfg.TelemetryAddr)
		g.Go(func() error {
			logger.Info("Telemetry server listening", zap.String("addr", telemetry.Addr()))
			if err := telemetry.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		if telemetry == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return telemetry.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
