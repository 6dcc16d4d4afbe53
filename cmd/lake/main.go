package main

import (
	"fmt"
	"os"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/config"
	"github.com/marketlake/lake/exchange"
	"github.com/marketlake/lake/ingest"
	"github.com/marketlake/lake/logger"
	"github.com/marketlake/lake/manifest"
	"github.com/marketlake/lake/observability"
	"github.com/marketlake/lake/redisclient"
	"github.com/marketlake/lake/resultcache"
	"github.com/marketlake/lake/supervisor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "lake",
	Short:   "Local-disk market-data lake for OHLCV candles and funding-rate history",
	Version: Version,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(downloadSymbolsCmd)
	rootCmd.AddCommand(downloadHistoryCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(uploadFeatureCmd)
	rootCmd.AddCommand(serveCmd)
}

// env bundles the wiring every subcommand needs; built fresh per
// invocation so no command holds state across runs.
type env struct {
	cfg       *config.Config
	log       zerolog.Logger
	mf        *manifest.Manifest
	reader    *columnar.Reader
	writer    *columnar.Writer
	registry  *exchange.Registry
	pipeline  *ingest.Pipeline
	metrics   *observability.Metrics
	alerter   *observability.PagerDutyClient
	supervis  *supervisor.Supervisor
	cache     *resultcache.Cache
}

// newEnv loads config and wires every dependency a CLI command or the
// server needs. Callers must call env.close() when done.
func newEnv() (*env, error) {
	cfg := config.Load()
	log := logger.New(cfg)

	mf, err := manifest.Open(cfg.ManifestDB)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	metrics := observability.NewMetrics()
	alerter := observability.NewPagerDutyClient(observability.PagerDutyConfig{
		RoutingKey: cfg.PagerDutyRoutingKey,
		Enabled:    cfg.PagerDutyEnabled,
		SourceName: "market-lake",
	}, log)

	reader := columnar.NewReader(cfg.DataRoot, mf, log)
	writer := columnar.NewWriter(cfg.DataRoot, mf, log)
	writer.Alerter = alerter
	writer.Metrics = metrics

	registry := exchange.NewRegistry()
	binance := exchange.NewBinanceConnector(exchange.BinanceConfig{
		Timeout: cfg.ExchangeTimeout("binance"),
	})
	binance.SetMetrics(metrics)
	registry.Register(binance)

	pipeline := ingest.New(registry, writer, mf, log)
	pipeline.Alerter = alerter
	pipeline.Metrics = metrics

	supervis := supervisor.New(cfg.WorkerPoolSize, log, metrics)

	var cache *resultcache.Cache
	if cfg.CacheEnabled {
		rc, err := redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — continuing without query cache")
		} else {
			cache = resultcache.New(rc, cfg.CacheTTL, log, metrics)
		}
	}
	if cache != nil {
		writer.Cache = cache
	}

	return &env{
		cfg: cfg, log: log, mf: mf, reader: reader, writer: writer,
		registry: registry, pipeline: pipeline, metrics: metrics,
		alerter: alerter, supervis: supervis, cache: cache,
	}, nil
}

func (e *env) close() {
	e.mf.Close()
}

