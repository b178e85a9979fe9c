package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"veritynet/config"
	"veritynet/core"
	nativeparams "veritynet/native/params"
	"veritynet/observability"
	"veritynet/observability/logging"
	"veritynet/observability/metrics"
	telemetry "veritynet/observability/otel"
	"veritynet/rpc"
	"veritynet/storage"
)

const genesisPathEnv = "VERITYNET_GENESIS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis TOML file (overrides VERITYNET_GENESIS and config GenesisFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VERITYNET_ENV"))
	logger := logging.Setup("veritynetd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "veritynetd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db)
	if err != nil {
		logger.Error("failed to create node", slog.Any("error", err))
		os.Exit(1)
	}

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if genesisPath != "" {
		spec, err := core.LoadGenesisFile(genesisPath)
		if err != nil {
			logger.Error("failed to load genesis spec", slog.String("path", genesisPath), slog.Any("error", err))
			os.Exit(1)
		}
		applied, err := node.InitGenesis(spec)
		if err != nil {
			logger.Error("failed to apply genesis", slog.Any("error", err))
			os.Exit(1)
		}
		if applied {
			logger.Info("genesis state applied", slog.String("path", genesisPath))
		} else {
			logger.Info("genesis already applied, skipping", slog.String("path", genesisPath))
		}
	}

	if err := node.SetModulePauses(nativeparams.Pauses{
		Assertions: cfg.Pauses.Assertions,
		Challenges: cfg.Pauses.Challenges,
		Reputation: cfg.Pauses.Reputation,
		Topics:     cfg.Pauses.Topics,
		Ledger:     cfg.Pauses.Ledger,
		Gov:        cfg.Pauses.Gov,
	}); err != nil {
		logger.Error("failed to apply module pauses", slog.Any("error", err))
		os.Exit(1)
	}

	resolution := metrics.Resolution()
	eventCounter := observability.Events()
	node.RegisterSink(func(evt core.SequencedEvent) {
		eventCounter.RecordEvent(evt.Event.EventType())
		resolution.ObserveEvent(evt.Event)
	})

	rpcServer := rpc.NewServer(node, logger)
	rpcServer.SetRateLimit(cfg.RPCRatePerMinute, cfg.RPCRateBurst)

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("veritynetd listening",
			slog.String("addr", cfg.RPCAddress),
			slog.String("network", cfg.NetworkName),
			slog.String("data_dir", cfg.DataDir))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			logger.Error("failed to shut down RPC server", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("veritynetd stopped")
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("RPC server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

type envLookupFunc func(string) (string, bool)

// resolveGenesisPath prefers the CLI flag, then the environment override,
// then the configured path. An empty result means no genesis will be applied
// this start.
func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if fromEnv, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(fromEnv); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}
