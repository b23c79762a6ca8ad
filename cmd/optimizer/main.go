// Strategy Optimizer CLI
// Evolves trading-strategy parameter sets against historical data splits
// using multi-objective genetic search.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/yersiniasGhost/berlin-sub000/internal/config"
	"github.com/yersiniasGhost/berlin-sub000/internal/metrics"
	"github.com/yersiniasGhost/berlin-sub000/internal/progress"
	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
	"github.com/yersiniasGhost/berlin-sub000/pkg/backtest"
	"github.com/yersiniasGhost/berlin-sub000/pkg/optimizer"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

var (
	configPath   = flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	strategyFile = flag.String("strategy", "", "Strategy genome file, overrides data.strategy")
	splitFiles   = flag.String("splits", "", "Comma-separated candle CSV files, overrides data.splits")
	outputFile   = flag.String("output", "", "Best strategy export path, overrides data.output")
	seed         = flag.Int64("seed", 0, "Random seed, overrides optimizer.seed (0 = wall clock)")
	generations  = flag.Int("generations", 0, "Generation budget, overrides optimizer.generations")
)

// ============================================================================
// MAIN
// ============================================================================

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg)

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Optimization failed")
	}
}

func applyOverrides(cfg *config.Config) {
	if *strategyFile != "" {
		cfg.Data.Strategy = *strategyFile
	}
	if *splitFiles != "" {
		cfg.Data.Splits = strings.Split(*splitFiles, ",")
	}
	if *outputFile != "" {
		cfg.Data.Output = *outputFile
	}
	if *seed != 0 {
		cfg.Optimizer.Seed = *seed
	}
	if *generations > 0 {
		cfg.Optimizer.Generations = *generations
	}
}

// ============================================================================
// RUN
// ============================================================================

func run(ctx context.Context, cfg *config.Config) error {
	proto, err := strategy.ImportFile(cfg.Data.Strategy)
	if err != nil {
		return fmt.Errorf("failed to load strategy genome: %w", err)
	}

	runners, err := buildRunners(cfg)
	if err != nil {
		return err
	}

	objectives, err := buildObjectives(cfg.Evaluation.Objectives)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Monitoring.EnableMetrics {
		m = metrics.New(registry)
	}

	runSeed := cfg.Optimizer.Seed
	if runSeed == 0 {
		runSeed = time.Now().UnixNano()
	}
	/* #nosec G404 -- reproducible search stream, not cryptographic */
	evalRng := rand.New(rand.NewSource(runSeed + 1))

	evaluator, err := optimizer.NewEvaluator(runners, objectives, optimizer.EvaluatorConfig{
		Workers:          cfg.Evaluation.Workers,
		Parallel:         cfg.Evaluation.Parallel,
		SplitGenerations: cfg.Evaluation.SplitGenerations,
	}, evalRng, log.Logger, m)
	if err != nil {
		return err
	}

	var tracker *optimizer.EvolutionTracker
	if cfg.Tracker.Enabled {
		tracker = optimizer.NewEvolutionTracker(optimizer.TrackerConfig{
			HistoryLimit:        cfg.Tracker.HistoryLimit,
			ConvergenceWindow:   cfg.Tracker.ConvergenceWindow,
			ConvergenceFraction: cfg.Tracker.ConvergenceFraction,
			JumpFraction:        cfg.Tracker.JumpFraction,
		}, log.Logger)
	}

	observers, broadcaster, hub, cleanup, err := buildObservers(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opt, err := optimizer.New(optimizer.Config{
		PopulationSize:    cfg.Optimizer.PopulationSize,
		Generations:       cfg.Optimizer.Generations,
		ElitistSize:       cfg.Optimizer.ElitistSize,
		EliteCap:          cfg.Optimizer.EliteCap,
		SwapProbability:   cfg.Optimizer.SwapProbability,
		MutateProbability: cfg.Optimizer.MutateProbability,
		TournamentSize:    cfg.Optimizer.TournamentSize,
		Seed:              runSeed,
	}, evaluator, tracker, log.Logger, m, observers...)
	if err != nil {
		return err
	}
	defer opt.Close()

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, cancelSrv := context.WithCancel(gctx)
	defer cancelSrv()

	if cfg.Monitoring.EnableMetrics {
		serveHTTP(g, srvCtx, metricsServer(registry, cfg.Monitoring.PrometheusPort), "metrics")
	}
	if hub != nil {
		go hub.Run()
		defer hub.Stop()
		serveHTTP(g, srvCtx, progressServer(hub, cfg.Progress.GetProgressAddr()), "progress")
	}

	var result *optimizer.RunResult
	g.Go(func() error {
		defer cancelSrv()
		var runErr error
		result, runErr = opt.Run(gctx, proto)
		return runErr
	})

	if err := g.Wait(); err != nil && result == nil {
		return err
	}

	if broadcaster != nil && result != nil {
		broadcaster.RunComplete(result)
	}
	return exportBest(cfg, result)
}

func buildRunners(cfg *config.Config) ([]backtest.Runner, error) {
	if len(cfg.Data.Splits) == 0 {
		return nil, fmt.Errorf("at least one data split is required (data.splits or -splits)")
	}
	runners := make([]backtest.Runner, 0, len(cfg.Data.Splits))
	for _, path := range cfg.Data.Splits {
		split, err := loadSplitCSV(strings.TrimSpace(path))
		if err != nil {
			return nil, err
		}
		runner, err := backtest.NewSimRunner(split, log.Logger)
		if err != nil {
			return nil, err
		}
		runners = append(runners, runner)
	}
	return runners, nil
}

func buildObjectives(names []string) ([]backtest.Objective, error) {
	byName := map[string]backtest.Objective{
		"profit":        backtest.NegativeProfitObjective,
		"loss":          backtest.LossObjective,
		"win_rate":      backtest.WinRateObjective,
		"trade_balance": backtest.TradeBalanceObjective,
	}
	objectives := make([]backtest.Objective, 0, len(names))
	for _, name := range names {
		obj, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown objective %q", name)
		}
		objectives = append(objectives, obj)
	}
	return objectives, nil
}

// buildObservers wires the console log, the optional per-generation CSV log,
// and the optional WebSocket progress stream. The returned cleanup closes
// the CSV log; HTTP servers are managed by the caller's errgroup.
func buildObservers(cfg *config.Config) ([]optimizer.Observer, *progress.Broadcaster, *progress.Hub, func(), error) {
	observers := []optimizer.Observer{optimizer.NewConsoleObserver(log.Logger)}
	cleanup := func() {}

	if cfg.Data.CSVLog != "" {
		f, err := os.Create(cfg.Data.CSVLog) // #nosec G304 -- operator-supplied log path
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to create CSV log: %w", err)
		}
		csvObs := optimizer.NewCSVObserver(f, len(cfg.Evaluation.Objectives))
		observers = append(observers, csvObs)
		cleanup = func() {
			if err := csvObs.Close(); err != nil {
				log.Warn().Err(err).Msg("CSV log flush failed")
			}
			f.Close()
		}
	}

	var (
		hub         *progress.Hub
		broadcaster *progress.Broadcaster
	)
	if cfg.Progress.Enabled {
		hub = progress.NewHub(log.Logger)
		broadcaster = progress.NewBroadcaster(hub, log.Logger)
		observers = append(observers, broadcaster)
	}

	return observers, broadcaster, hub, cleanup, nil
}

// ============================================================================
// SERVERS
// ============================================================================

func metricsServer(registry *prometheus.Registry, port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func progressServer(hub *progress.Hub, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveHTTP runs a server inside the errgroup and shuts it down when the
// context ends.
func serveHTTP(g *errgroup.Group, ctx context.Context, server *http.Server, name string) {
	g.Go(func() error {
		log.Info().Str("server", name).Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("%s server failed: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// ============================================================================
// RESULT EXPORT
// ============================================================================

func exportBest(cfg *config.Config, result *optimizer.RunResult) error {
	if result == nil || result.Best == nil {
		log.Warn().Msg("No successful individual to export")
		return nil
	}

	opts := strategy.DefaultExportOptions()
	if strings.HasSuffix(cfg.Data.Output, ".json") {
		opts.Format = strategy.FormatJSON
	}
	data, err := strategy.Export(result.Best.Individual.Config, opts)
	if err != nil {
		return fmt.Errorf("failed to export best strategy: %w", err)
	}
	if err := os.WriteFile(cfg.Data.Output, data, 0o600); err != nil {
		return fmt.Errorf("failed to write best strategy: %w", err)
	}

	log.Info().
		Str("path", cfg.Data.Output).
		Str("individual", result.Best.Individual.ID.String()).
		Floats64("fitness", result.Best.Fitness).
		Int("generations", result.Generations).
		Bool("stopped", result.Stopped).
		Msg("Exported best strategy")
	return nil
}
