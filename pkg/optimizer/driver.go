// Generational driver: seeds a random population, then loops
// evaluate -> select -> track -> report -> breed until the generation budget
// is spent or the run is stopped.
package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yersiniasGhost/berlin-sub000/internal/metrics"
	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
)

const (
	defaultEliteCap       = 20
	defaultTournamentSize = 3

	// pausePollInterval is how often a paused driver re-checks its gate.
	pausePollInterval = 100 * time.Millisecond
)

// Config configures one optimization run.
type Config struct {
	// PopulationSize is the number of individuals per generation.
	PopulationSize int

	// Generations is the generation budget.
	Generations int

	// ElitistSize is the per-generation elite quota.
	ElitistSize int

	// EliteCap bounds the carried elite set after merging with previous
	// generations; defaults to 20.
	EliteCap int

	// SwapProbability is the per-gene crossover swap chance.
	SwapProbability float64

	// MutateProbability is the per-gene mutation chance.
	MutateProbability float64

	// TournamentSize is the parent-selection tournament width; defaults
	// to 3.
	TournamentSize int

	// Seed fixes the random stream; 0 seeds from the wall clock.
	Seed int64
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("population size must be at least 2, got %d", c.PopulationSize)
	}
	if c.Generations < 1 {
		return fmt.Errorf("generations must be at least 1, got %d", c.Generations)
	}
	if c.ElitistSize < 1 || c.ElitistSize >= c.PopulationSize {
		return fmt.Errorf("elitist size must be in [1, population), got %d", c.ElitistSize)
	}
	if c.SwapProbability < 0 || c.SwapProbability > 1 {
		return fmt.Errorf("swap probability must be in [0, 1], got %f", c.SwapProbability)
	}
	if c.MutateProbability < 0 || c.MutateProbability > 1 {
		return fmt.Errorf("mutate probability must be in [0, 1], got %f", c.MutateProbability)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.EliteCap <= 0 {
		c.EliteCap = defaultEliteCap
	}
	if c.TournamentSize <= 0 {
		c.TournamentSize = defaultTournamentSize
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// EliteSummary identifies one carried elite for observers: enough for a
// dashboard to render the elite set without holding the genome itself.
type EliteSummary struct {
	ID      string    `json:"id"`
	Fitness []float64 `json:"fitness"`
}

// GenerationReport summarizes one completed generation for observers.
type GenerationReport struct {
	Generation  int            `json:"generation"`
	Split       string         `json:"split"`
	Evaluated   int            `json:"evaluated"`
	Failed      int            `json:"failed"`
	EliteCount  int            `json:"elite_count"`
	Elites      []EliteSummary `json:"elites"`
	BestFitness []float64      `json:"best_fitness"`
	BestID      string         `json:"best_id"`
	Converged   []string       `json:"converged,omitempty"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// RunResult is the outcome of a full optimization run.
type RunResult struct {
	Reports     []*GenerationReport
	Best        *IndividualStats
	Elites      []*IndividualStats
	Generations int
	Stopped     bool
}

// Optimizer is the generational driver. Generations execute strictly
// sequentially on the goroutine that calls Run; Stop and Pause act between
// generations, never mid-evaluation. A single Optimizer supports one Run at
// a time.
type Optimizer struct {
	cfg       Config
	evaluator *Evaluator
	tracker   *EvolutionTracker
	rng       *rand.Rand
	log       zerolog.Logger
	metrics   *metrics.Metrics
	observers []Observer

	mu      sync.Mutex
	stopped bool
	paused  bool

	elites  []*IndividualStats
	best    *IndividualStats
	bestSum float64
}

// New builds a driver over an evaluation engine. Tracker and metrics may be
// nil; observers are notified in registration order.
func New(cfg Config, evaluator *Evaluator, tracker *EvolutionTracker, logger zerolog.Logger, m *metrics.Metrics, observers ...Observer) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}
	cfg.applyDefaults()

	/* #nosec G404 -- reproducible search stream, not cryptographic */
	rng := rand.New(rand.NewSource(cfg.Seed))

	return &Optimizer{
		cfg:       cfg,
		evaluator: evaluator,
		tracker:   tracker,
		rng:       rng,
		log:       logger.With().Str("component", "optimizer").Logger(),
		metrics:   m,
		observers: observers,
	}, nil
}

// Rand exposes the driver's random stream so the caller can share it with
// population seeding and the evaluator's split rotation.
func (o *Optimizer) Rand() *rand.Rand { return o.rng }

// Stop requests termination after the in-flight generation completes.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
}

// Pause holds the driver at the next between-generation gate.
func (o *Optimizer) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
}

// Resume releases a paused driver.
func (o *Optimizer) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
}

// Close releases the evaluation worker pool. The Optimizer is unusable
// afterwards except for sequential evaluation fallback, so call it only once
// no further Run is planned.
func (o *Optimizer) Close() {
	o.evaluator.Close()
}

// Run executes the full generational loop from a fresh random population
// seeded off the prototype configuration. It returns the per-generation
// reports, the carried elite set, and the cumulative best individual.
func (o *Optimizer) Run(ctx context.Context, proto *strategy.Configuration) (*RunResult, error) {
	if proto == nil {
		return nil, fmt.Errorf("a prototype configuration is required")
	}
	if err := proto.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prototype configuration: %w", err)
	}

	o.mu.Lock()
	o.stopped = false
	o.elites = nil
	o.best = nil
	o.bestSum = 0
	o.mu.Unlock()

	o.log.Info().
		Int("population", o.cfg.PopulationSize).
		Int("generations", o.cfg.Generations).
		Int("elitist_size", o.cfg.ElitistSize).
		Int64("seed", o.cfg.Seed).
		Msg("Starting optimization run")

	population := NewRandomPopulation(strategy.NewIndividual(proto.Clone()), o.cfg.PopulationSize, o.rng)
	result := &RunResult{}

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := o.gate(ctx); err != nil {
			result.Stopped = true
			break
		}

		start := time.Now()
		stats, err := o.evaluator.Evaluate(ctx, gen, population)
		if err != nil {
			return nil, fmt.Errorf("generation %d evaluation failed: %w", gen, err)
		}

		o.updateElites(stats)
		o.updateBest(stats)

		eliteIndividuals := make([]*strategy.Individual, len(o.elites))
		for i, e := range o.elites {
			eliteIndividuals[i] = e.Individual
		}
		if o.tracker != nil {
			if err := o.tracker.Collect(gen, population, eliteIndividuals); err != nil {
				o.log.Warn().Err(err).Int("generation", gen).Msg("Tracker collection failed")
			}
		}

		report := o.buildReport(gen, stats, time.Since(start))
		result.Reports = append(result.Reports, report)
		result.Generations = gen + 1
		o.observe(report)
		o.recordMetrics(report)

		if gen < o.cfg.Generations-1 {
			population = o.breed(stats, gen+1)
		}
	}

	o.mu.Lock()
	result.Best = o.best
	result.Elites = append([]*IndividualStats(nil), o.elites...)
	result.Stopped = result.Stopped || o.stopped
	o.mu.Unlock()

	o.log.Info().
		Int("generations", result.Generations).
		Bool("stopped", result.Stopped).
		Str("best", formatFitness(bestFitness(result.Best))).
		Msg("Optimization run finished")
	return result, nil
}

// gate is the between-generation control point. It blocks while paused and
// returns an error when the run is stopped or the context is done.
func (o *Optimizer) gate(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.mu.Lock()
		stopped, paused := o.stopped, o.paused
		o.mu.Unlock()
		if stopped {
			return fmt.Errorf("run stopped")
		}
		if !paused {
			return nil
		}
		time.Sleep(pausePollInterval)
	}
}

// updateElites selects the generation's elite quota from the fresh batch and
// merges it into the carried set, which accumulates across generations up to
// EliteCap before trimming drops the least balanced members.
func (o *Optimizer) updateElites(stats []*IndividualStats) {
	fresh := SelectElites(stats, o.cfg.ElitistSize)
	combined := make([]*IndividualStats, 0, len(fresh)+len(o.elites))
	combined = append(combined, fresh...)
	combined = append(combined, o.elites...)
	o.elites = TrimElites(combined, o.cfg.EliteCap)
}

// updateBest maintains the cumulative best individual by total objective
// sum, updated only on strict improvement so the reported best trend never
// regresses.
func (o *Optimizer) updateBest(stats []*IndividualStats) {
	for _, s := range stats {
		if s.Failed {
			continue
		}
		sum := 0.0
		for _, v := range s.Fitness {
			sum += v
		}
		if o.best == nil || sum < o.bestSum {
			o.best = s
			o.bestSum = sum
		}
	}
}

func (o *Optimizer) buildReport(gen int, stats []*IndividualStats, elapsed time.Duration) *GenerationReport {
	failed := 0
	for _, s := range stats {
		if s.Failed {
			failed++
		}
	}
	report := &GenerationReport{
		Generation: gen,
		Split:      o.evaluator.CurrentSplit(),
		Evaluated:  len(stats),
		Failed:     failed,
		EliteCount: len(o.elites),
		Elites:     make([]EliteSummary, len(o.elites)),
		Elapsed:    elapsed,
	}
	for i, e := range o.elites {
		report.Elites[i] = EliteSummary{
			ID:      e.Individual.ID.String(),
			Fitness: append([]float64(nil), e.Fitness...),
		}
	}
	if o.best != nil {
		report.BestFitness = append([]float64(nil), o.best.Fitness...)
		report.BestID = o.best.Individual.ID.String()
	}
	if o.tracker != nil {
		report.Converged = o.tracker.ConvergedParameters()
	}
	return report
}

func (o *Optimizer) observe(report *GenerationReport) {
	for _, obs := range o.observers {
		obs.OnGeneration(report)
	}
}

func (o *Optimizer) recordMetrics(report *GenerationReport) {
	if o.metrics == nil {
		return
	}
	o.metrics.GenerationsTotal.Inc()
	o.metrics.EliteSetSize.Set(float64(report.EliteCount))
	for i, v := range report.BestFitness {
		o.metrics.BestObjective.WithLabelValues(fmt.Sprintf("%d", i)).Set(v)
	}
}

// ============================================================================
// BREEDING
// ============================================================================

// breed builds the next population: cloned elites first, then children bred
// from tournament-selected parents via crossover and mutation. Every member
// of the new population owns its genome outright.
func (o *Optimizer) breed(stats []*IndividualStats, generation int) []*strategy.Individual {
	next := make([]*strategy.Individual, 0, o.cfg.PopulationSize)

	seed := len(o.elites)
	if seed > o.cfg.ElitistSize {
		seed = o.cfg.ElitistSize
	}
	for _, e := range o.elites[:seed] {
		next = append(next, e.Individual.Clone())
	}

	ranks, distances := o.rankBatch(stats)
	for len(next) < o.cfg.PopulationSize {
		mom := o.tournament(stats, ranks, distances).Individual.Clone()
		dad := o.tournament(stats, ranks, distances).Individual.Clone()

		if _, err := CrossOver(mom, dad, o.cfg.SwapProbability, o.rng); err != nil {
			o.log.Warn().Err(err).Int("generation", generation).Msg("Crossover produced no offspring, keeping parent clones")
		}
		Mutate(mom, o.cfg.MutateProbability, generation, o.rng)
		Mutate(dad, o.cfg.MutateProbability, generation, o.rng)

		next = append(next, mom)
		if len(next) < o.cfg.PopulationSize {
			next = append(next, dad)
		}
	}
	return next
}

// rankBatch assigns each batch member its Pareto front index and its
// distance to the batch ideal point, the two keys parent tournaments
// compare on.
func (o *Optimizer) rankBatch(stats []*IndividualStats) (map[*IndividualStats]int, map[*IndividualStats]float64) {
	ranks := make(map[*IndividualStats]int, len(stats))
	for rank, front := range ParetoFronts(stats) {
		for _, s := range front {
			ranks[s] = rank
		}
	}
	ideal := IdealPoint(stats)
	distances := make(map[*IndividualStats]float64, len(stats))
	for _, s := range stats {
		distances[s] = distanceTo(s.Fitness, ideal)
	}
	return ranks, distances
}

// tournament draws TournamentSize random contestants and keeps the one with
// the lowest front rank, breaking ties by distance to the ideal point.
func (o *Optimizer) tournament(stats []*IndividualStats, ranks map[*IndividualStats]int, distances map[*IndividualStats]float64) *IndividualStats {
	best := stats[o.rng.Intn(len(stats))]
	for i := 1; i < o.cfg.TournamentSize; i++ {
		challenger := stats[o.rng.Intn(len(stats))]
		if ranks[challenger] < ranks[best] ||
			(ranks[challenger] == ranks[best] && distances[challenger] < distances[best]) {
			best = challenger
		}
	}
	return best
}

func bestFitness(best *IndividualStats) []float64 {
	if best == nil {
		return nil
	}
	return best.Fitness
}
