// Parallel fitness evaluation: a reusable worker pool runs one full backtest
// per candidate against the generation's data split.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yersiniasGhost/berlin-sub000/internal/metrics"
	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
	"github.com/yersiniasGhost/berlin-sub000/pkg/backtest"
)

// ErrPoolClosed is returned when work is submitted after shutdown.
var ErrPoolClosed = errors.New("optimizer: worker pool is closed")

// EvaluatorConfig configures the fitness evaluation engine.
type EvaluatorConfig struct {
	// Workers is the pool size; defaults to the CPU core count.
	Workers int

	// Parallel selects the worker-pool path. When false every evaluation
	// runs on the calling goroutine.
	Parallel bool

	// SplitGenerations is how many consecutive generations reuse one data
	// split before re-rolling; defaults to 3.
	SplitGenerations int
}

func (c *EvaluatorConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.SplitGenerations <= 0 {
		c.SplitGenerations = 3
	}
}

// Evaluator runs each individual of a generation through a backtest runner
// and scores the result against every objective. The worker pool is created
// lazily on first use, reused across generations, and joined by Close. The
// pool is owned exclusively by this engine and touched only by the driver
// goroutine.
type Evaluator struct {
	cfg        EvaluatorConfig
	runners    []backtest.Runner
	objectives []backtest.Objective
	rng        *rand.Rand
	log        zerolog.Logger
	metrics    *metrics.Metrics

	splitIndex int
	splitUses  int

	pool *workerPool
}

// NewEvaluator builds an evaluation engine over one pre-loaded runner per
// data split. The metrics handle may be nil.
func NewEvaluator(runners []backtest.Runner, objectives []backtest.Objective, cfg EvaluatorConfig, rng *rand.Rand, logger zerolog.Logger, m *metrics.Metrics) (*Evaluator, error) {
	if len(runners) == 0 {
		return nil, fmt.Errorf("at least one backtest runner is required")
	}
	if len(objectives) == 0 {
		return nil, fmt.Errorf("at least one objective is required")
	}
	cfg.applyDefaults()

	return &Evaluator{
		cfg:        cfg,
		runners:    runners,
		objectives: objectives,
		rng:        rng,
		log:        logger.With().Str("component", "evaluator").Logger(),
		metrics:    m,
	}, nil
}

// Objectives returns the number of objectives scored per individual.
func (e *Evaluator) Objectives() int { return len(e.objectives) }

// CurrentSplit returns the split name the last generation evaluated against.
func (e *Evaluator) CurrentSplit() string { return e.runners[e.splitIndex].Split() }

// Evaluate scores every individual of the generation. Results come back in
// submission order so batch index correlates to the original slot. Failures
// local to one individual are penalized and kept (sentinel fitness vector),
// never generation-fatal; a failure of the parallel layer itself re-runs the
// whole generation sequentially with a logged warning.
func (e *Evaluator) Evaluate(ctx context.Context, generation int, population []*strategy.Individual) ([]*IndividualStats, error) {
	runner := e.rotateSplit(generation)

	if !e.cfg.Parallel {
		return e.evaluateSequential(ctx, generation, population, runner), nil
	}

	stats, err := e.evaluateParallel(ctx, generation, population, runner)
	if err != nil {
		e.log.Warn().
			Err(err).
			Int("generation", generation).
			Msg("Parallel evaluation failed, re-running generation sequentially")
		if e.metrics != nil {
			e.metrics.SequentialFallbacks.Inc()
		}
		return e.evaluateSequential(ctx, generation, population, runner), nil
	}
	return stats, nil
}

// Close shuts the worker pool down and waits for in-flight jobs.
func (e *Evaluator) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// rotateSplit keeps the current split for up to SplitGenerations consecutive
// generations, then re-rolls at random. Amortizes per-split load cost while
// resisting overfitting to a single slice.
func (e *Evaluator) rotateSplit(generation int) backtest.Runner {
	if e.splitUses == 0 || e.splitUses >= e.cfg.SplitGenerations {
		e.splitIndex = e.rng.Intn(len(e.runners))
		e.splitUses = 0
		if e.metrics != nil {
			e.metrics.SplitRotations.Inc()
		}
		e.log.Info().
			Int("generation", generation).
			Str("split", e.runners[e.splitIndex].Split()).
			Msg("Rotated evaluation data split")
	}
	e.splitUses++
	return e.runners[e.splitIndex]
}

// ============================================================================
// PARALLEL PATH
// ============================================================================

func (e *Evaluator) evaluateParallel(ctx context.Context, generation int, population []*strategy.Individual, runner backtest.Runner) (stats []*IndividualStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			stats = nil
			err = fmt.Errorf("worker pool panicked: %v", r)
		}
	}()

	if e.pool == nil {
		e.pool = newWorkerPool(e.cfg.Workers, e.runJob)
		e.log.Info().Int("workers", e.cfg.Workers).Msg("Started evaluation worker pool")
	}

	out := make(chan evalOutcome, len(population))
	for slot, ind := range population {
		job := evalJob{
			ctx:        ctx,
			generation: generation,
			slot:       slot,
			individual: ind,
			runner:     runner,
			out:        out,
		}
		if err := e.pool.Submit(job); err != nil {
			return nil, err
		}
	}

	// The driver blocks until every submitted job returns; there is no
	// per-job timeout, so a hung backtest stalls the generation.
	stats = make([]*IndividualStats, len(population))
	for i := 0; i < len(population); i++ {
		outcome := <-out
		stats[outcome.slot] = &IndividualStats{
			Individual: population[outcome.slot],
			Fitness:    outcome.fitness,
			BatchIndex: outcome.slot,
			Failed:     outcome.failed,
		}
	}
	return stats, nil
}

type evalJob struct {
	ctx        context.Context
	generation int
	slot       int
	individual *strategy.Individual
	runner     backtest.Runner
	out        chan<- evalOutcome
}

type evalOutcome struct {
	slot    int
	fitness []float64
	failed  bool
}

// runJob evaluates one individual inside a pool worker. Panics are recovered
// into penalty outcomes so one bad backtest never kills the pool.
func (e *Evaluator) runJob(job evalJob) (outcome evalOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn().
				Int("generation", job.generation).
				Int("slot", job.slot).
				Str("individual", job.individual.ID.String()).
				Interface("panic", r).
				Msg("Backtest panicked, penalizing individual")
			outcome = evalOutcome{
				slot:    job.slot,
				fitness: backtest.PenaltyVector(len(e.objectives)),
				failed:  true,
			}
		}
	}()

	fitness, failed := e.evaluateOne(job.ctx, job.generation, job.slot, job.individual, job.runner)
	return evalOutcome{slot: job.slot, fitness: fitness, failed: failed}
}

// ============================================================================
// SEQUENTIAL PATH
// ============================================================================

func (e *Evaluator) evaluateSequential(ctx context.Context, generation int, population []*strategy.Individual, runner backtest.Runner) []*IndividualStats {
	stats := make([]*IndividualStats, len(population))
	for slot, ind := range population {
		fitness, failed := e.evaluateGuarded(ctx, generation, slot, ind, runner)
		stats[slot] = &IndividualStats{
			Individual: ind,
			Fitness:    fitness,
			BatchIndex: slot,
			Failed:     failed,
		}
	}
	return stats
}

func (e *Evaluator) evaluateGuarded(ctx context.Context, generation, slot int, ind *strategy.Individual, runner backtest.Runner) (fitness []float64, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn().
				Int("generation", generation).
				Int("slot", slot).
				Str("individual", ind.ID.String()).
				Interface("panic", r).
				Msg("Backtest panicked, penalizing individual")
			fitness = backtest.PenaltyVector(len(e.objectives))
			failed = true
		}
	}()
	return e.evaluateOne(ctx, generation, slot, ind, runner)
}

// ============================================================================
// SINGLE-INDIVIDUAL EVALUATION
// ============================================================================

// evaluateOne clones the shared runner, swaps in the individual's genome,
// executes the backtest, and scores the result against every objective. A
// raised backtest or an all-sentinel score vector marks the individual
// failed; it keeps its penalty fitness and stays in the batch so population
// size is reproducible.
func (e *Evaluator) evaluateOne(ctx context.Context, generation, slot int, ind *strategy.Individual, runner backtest.Runner) ([]float64, bool) {
	start := time.Now()
	clone := runner.Clone()

	portfolio, err := clone.Run(ctx, ind)
	if e.metrics != nil {
		e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.log.Warn().
			Err(err).
			Int("generation", generation).
			Int("slot", slot).
			Str("individual", ind.ID.String()).
			Msg("Backtest failed, penalizing individual")
		e.countEvaluation(false)
		return backtest.PenaltyVector(len(e.objectives)), true
	}

	scores := make([]float64, len(e.objectives))
	for i, objective := range e.objectives {
		scores[i] = objective(ind, portfolio, clone)
	}
	scores = backtest.Sanitize(scores)

	failed := backtest.AllFailed(scores)
	if failed {
		e.log.Debug().
			Int("generation", generation).
			Int("slot", slot).
			Str("individual", ind.ID.String()).
			Msg("All objectives at failure sentinel")
	}
	e.countEvaluation(!failed)
	return scores, failed
}

func (e *Evaluator) countEvaluation(success bool) {
	if e.metrics == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	e.metrics.Evaluations.WithLabelValues(result).Inc()
}

// ============================================================================
// WORKER POOL
// ============================================================================

// workerPool is a fixed-size pool of evaluation goroutines fed by a shared
// job channel. Created lazily, reused across generations, and joined on
// Close.
type workerPool struct {
	jobs   chan evalJob
	wg     sync.WaitGroup
	closed atomic.Bool
}

func newWorkerPool(workers int, run func(evalJob) evalOutcome) *workerPool {
	p := &workerPool{jobs: make(chan evalJob)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job.out <- run(job)
			}
		}()
	}
	return p
}

// Submit hands one job to the pool.
func (p *workerPool) Submit(job evalJob) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.jobs <- job
	return nil
}

// Close stops intake and waits for the workers to drain.
func (p *workerPool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.jobs)
		p.wg.Wait()
	}
}
