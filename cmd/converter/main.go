// Package main is the entry point for the Octant DAOIP-5 converter, a batch
// tool that fetches grant-funding data from the Octant backend and emits
// DAOIP-5 compliant JSON documents for grants interoperability tooling.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/octant-daoip5/internal/config"
	"github.com/yourorg/octant-daoip5/internal/octant"
	"github.com/yourorg/octant-daoip5/internal/otel"
	"github.com/yourorg/octant-daoip5/internal/pipeline"
	"github.com/yourorg/octant-daoip5/internal/rates"
	"github.com/yourorg/octant-daoip5/internal/writer"
)

func main() {
	// Best-effort .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	setupLogging()

	var (
		epochFlag   = flag.Int("epoch", 0, "Process a specific epoch number")
		epochsFlag  = flag.String("epochs", "", "Process specific epochs (comma-separated, e.g. '3,4,5')")
		currentFlag = flag.Bool("current", false, "Process only the current epoch")
		latestFlag  = flag.Bool("latest", false, "Process only the latest epoch (same as -current)")
		outputFlag  = flag.String("output", "", "Output directory (default ./daoip5_output)")
		baseURLFlag = flag.String("base-url", "", "Octant API base URL (default mainnet)")
		retriesFlag = flag.Int("retries", 0, "Number of API request retries")
		workersFlag = flag.Int("workers", 0, "Concurrent epoch workers")
		configFlag  = flag.String("config", "", "Optional YAML config file")
	)
	flag.Parse()

	sel, err := buildSelection(*epochFlag, *epochsFlag, *currentFlag, *latestFlag)
	if err != nil {
		logrus.Fatal(err)
	}

	cfg := config.Load()
	if *configFlag != "" {
		cfg, err = config.LoadFile(*configFlag)
		if err != nil {
			logrus.Fatalf("Could not load config: %v", err)
		}
	}
	if *outputFlag != "" {
		cfg.OutputDir = *outputFlag
	}
	if *baseURLFlag != "" {
		cfg.BaseURL = *baseURLFlag
	}
	if *retriesFlag > 0 {
		cfg.MaxRetries = *retriesFlag
	}
	if *workersFlag > 0 {
		cfg.Workers = *workersFlag
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	out, err := writer.New(cfg.OutputDir)
	if err != nil {
		logrus.Fatalf("Could not prepare output directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := octant.NewClient(cfg)
	rateCache := rates.NewCache(rates.NewClient(cfg.RatesURL))
	runner := pipeline.New(cfg, client, rateCache, out, strings.Join(os.Args, " "))

	if err := runner.Run(ctx, sel); err != nil {
		if errors.Is(err, context.Canceled) {
			logrus.Warn("Conversion interrupted")
			os.Exit(1)
		}
		logrus.Fatalf("Error during conversion: %v", err)
	}
}

// buildSelection mirrors the mutually exclusive epoch flags.
func buildSelection(epoch int, epochs string, current, latest bool) (pipeline.Selection, error) {
	set := 0
	if epoch != 0 {
		set++
	}
	if epochs != "" {
		set++
	}
	if current || latest {
		set++
	}
	if set > 1 {
		return pipeline.Selection{}, errors.New("-epoch, -epochs and -current/-latest are mutually exclusive")
	}

	sel := pipeline.Selection{
		Epoch:   epoch,
		Current: current || latest,
	}
	if epochs != "" {
		parsed, err := parseEpochList(epochs)
		if err != nil {
			return pipeline.Selection{}, err
		}
		sel.Epochs = parsed
	}
	return sel, nil
}

// setupLogging configures logrus from LOG_FORMAT and LOG_LEVEL.
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// serveMetrics exposes Prometheus metrics for long conversion runs.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logrus.Infof("Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.Warnf("Metrics listener stopped: %v", err)
	}
}
