package optimizer

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
)

// TrackerConfig configures the evolution tracker.
type TrackerConfig struct {
	// HistoryLimit bounds the per-parameter snapshot history; defaults to
	// 10000.
	HistoryLimit int

	// ConvergenceWindow is how many trailing generations must all sit
	// below the convergence band; defaults to 5.
	ConvergenceWindow int

	// ConvergenceFraction is the stddev bound as a fraction of the
	// parameter's range width; defaults to 0.05.
	ConvergenceFraction float64

	// JumpFraction is the mean-shift threshold between consecutive
	// generations, as a fraction of range width; defaults to 0.15.
	JumpFraction float64
}

func (c *TrackerConfig) applyDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10000
	}
	if c.ConvergenceWindow <= 0 {
		c.ConvergenceWindow = 5
	}
	if c.ConvergenceFraction <= 0 {
		c.ConvergenceFraction = 0.05
	}
	if c.JumpFraction <= 0 {
		c.JumpFraction = 0.15
	}
}

// ParameterSnapshot is one generation's population statistics for a single
// tracked parameter. EliteMean and EliteStd are nil when the elite set was
// empty at collection time; nil is deliberate to keep "no elites" distinct
// from "elite mean is zero".
type ParameterSnapshot struct {
	Name       string   `json:"name"`
	Generation int      `json:"generation"`
	Mean       float64  `json:"mean"`
	Std        float64  `json:"std"`
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Median     float64  `json:"median"`
	EliteMean  *float64 `json:"elite_mean,omitempty"`
	EliteStd   *float64 `json:"elite_std,omitempty"`
	RangeWidth float64  `json:"range_width"`
}

// Jump records a between-generation mean shift larger than the jump band.
type Jump struct {
	Name       string  `json:"name"`
	Generation int     `json:"generation"`
	From       float64 `json:"from"`
	To         float64 `json:"to"`
	Delta      float64 `json:"delta"`
}

// EvolutionTracker accumulates per-parameter distribution statistics across
// generations. Every tunable gene of the genome is tracked under a stable
// dotted name ("SMA_5m.period", "trigger.macd", "bar.entry.rsi",
// "bar.entry.enter[0]", "monitor.threshold"). Safe for concurrent readers
// while the driver collects.
type EvolutionTracker struct {
	cfg TrackerConfig
	log zerolog.Logger

	mu        sync.Mutex
	history   map[string][]ParameterSnapshot
	lastMean  map[string]float64
	jumps     []Jump
	collected int

	warnedNonFinite bool
}

// NewEvolutionTracker builds a tracker with defaults applied.
func NewEvolutionTracker(cfg TrackerConfig, logger zerolog.Logger) *EvolutionTracker {
	cfg.applyDefaults()
	return &EvolutionTracker{
		cfg:      cfg,
		log:      logger.With().Str("component", "tracker").Logger(),
		history:  make(map[string][]ParameterSnapshot),
		lastMean: make(map[string]float64),
	}
}

// Collect records one generation's parameter distributions. The population
// must be non-empty; elites may be empty, in which case the elite columns of
// every snapshot stay nil.
func (t *EvolutionTracker) Collect(generation int, population, elites []*strategy.Individual) error {
	if len(population) == 0 {
		return fmt.Errorf("cannot collect statistics from an empty population")
	}

	popSamples, widths := t.gatherSamples(population)
	eliteSamples, _ := t.gatherSamples(elites)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, name := range sortedKeys(popSamples) {
		values := popSamples[name]
		if len(values) == 0 {
			continue
		}
		snap := ParameterSnapshot{
			Name:       name,
			Generation: generation,
			Mean:       mean(values),
			Std:        stddev(values),
			Min:        minOf(values),
			Max:        maxOf(values),
			Median:     median(values),
			RangeWidth: widths[name],
		}
		if ev := eliteSamples[name]; len(ev) > 0 {
			m := mean(ev)
			s := stddev(ev)
			snap.EliteMean = &m
			snap.EliteStd = &s
		}

		if prev, ok := t.lastMean[name]; ok && snap.RangeWidth > 0 {
			delta := snap.Mean - prev
			if math.Abs(delta) > t.cfg.JumpFraction*snap.RangeWidth {
				t.jumps = append(t.jumps, Jump{
					Name:       name,
					Generation: generation,
					From:       prev,
					To:         snap.Mean,
					Delta:      delta,
				})
				t.log.Info().
					Str("parameter", name).
					Int("generation", generation).
					Float64("from", prev).
					Float64("to", snap.Mean).
					Msg("Parameter mean jumped")
			}
		}
		t.lastMean[name] = snap.Mean

		hist := append(t.history[name], snap)
		if len(hist) > t.cfg.HistoryLimit {
			hist = hist[len(hist)-t.cfg.HistoryLimit:]
		}
		t.history[name] = hist
	}

	t.collected++
	return nil
}

// History returns a copy of the snapshot history for one parameter, oldest
// first. Nil when the parameter was never observed.
func (t *EvolutionTracker) History(name string) []ParameterSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	hist := t.history[name]
	if hist == nil {
		return nil
	}
	out := make([]ParameterSnapshot, len(hist))
	copy(out, hist)
	return out
}

// Latest returns the most recent snapshot for each tracked parameter,
// ordered by name.
func (t *EvolutionTracker) Latest() []ParameterSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ParameterSnapshot, 0, len(t.history))
	for _, name := range sortedKeys(t.history) {
		hist := t.history[name]
		if len(hist) > 0 {
			out = append(out, hist[len(hist)-1])
		}
	}
	return out
}

// Jumps returns every recorded mean shift, in collection order.
func (t *EvolutionTracker) Jumps() []Jump {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Jump, len(t.jumps))
	copy(out, t.jumps)
	return out
}

// Converged reports whether the parameter's population stddev has stayed
// below the convergence band for the full trailing window.
func (t *EvolutionTracker) Converged(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.convergedLocked(name)
}

// ConvergedParameters lists every converged parameter, ordered by name.
func (t *EvolutionTracker) ConvergedParameters() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, name := range sortedKeys(t.history) {
		if t.convergedLocked(name) {
			out = append(out, name)
		}
	}
	return out
}

func (t *EvolutionTracker) convergedLocked(name string) bool {
	hist := t.history[name]
	if len(hist) < t.cfg.ConvergenceWindow {
		return false
	}
	for _, snap := range hist[len(hist)-t.cfg.ConvergenceWindow:] {
		if snap.RangeWidth <= 0 {
			return false
		}
		if snap.Std >= t.cfg.ConvergenceFraction*snap.RangeWidth {
			return false
		}
	}
	return true
}

// ResetSnapshot clears the jump-detection baseline so the next collection
// starts fresh. Recorded jumps and the accumulated snapshot history survive.
// Used when the driver restarts a search from a new random population over
// the same genome shape.
func (t *EvolutionTracker) ResetSnapshot() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastMean = make(map[string]float64)
}

// Generations returns how many generations have been collected.
func (t *EvolutionTracker) Generations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.collected
}

// gatherSamples walks every individual and buckets each tunable gene value
// under its dotted parameter name, alongside the gene's range width.
// Non-finite values are skipped with a single warning per tracker.
func (t *EvolutionTracker) gatherSamples(individuals []*strategy.Individual) (map[string][]float64, map[string]float64) {
	samples := make(map[string][]float64)
	widths := make(map[string]float64)

	record := func(name string, value, width float64) {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			if !t.warnedNonFinite {
				t.warnedNonFinite = true
				t.log.Warn().
					Str("parameter", name).
					Msg("Skipping non-finite parameter values")
			}
			return
		}
		samples[name] = append(samples[name], value)
		widths[name] = width
	}

	for _, ind := range individuals {
		if ind == nil || ind.Config == nil {
			continue
		}
		for _, spec := range ind.Config.Indicators {
			for _, pname := range sortedParamKeys(spec.Params) {
				param := spec.Params[pname]
				if !param.Tunable() {
					continue
				}
				record(spec.QualifiedName()+"."+pname, param.Value, param.Width())
			}
		}
		for _, bar := range ind.Config.Bars {
			for _, wname := range sortedKeys(bar.Weights) {
				record("bar."+bar.Name+"."+wname, bar.Weights[wname], strategy.WeightWidth())
			}
			for i, v := range bar.EnterThresholds {
				record(fmt.Sprintf("bar.%s.enter[%d]", bar.Name, i), v, strategy.ThresholdWidth())
			}
			for i, v := range bar.ExitThresholds {
				record(fmt.Sprintf("bar.%s.exit[%d]", bar.Name, i), v, strategy.ThresholdWidth())
			}
		}
		for _, name := range sortedKeys(ind.TriggerWeights) {
			record("trigger."+name, ind.TriggerWeights[name], strategy.WeightWidth())
		}
		for _, name := range sortedKeys(ind.BearTriggerWeights) {
			record("bear_trigger."+name, ind.BearTriggerWeights[name], strategy.WeightWidth())
		}
		record("monitor.threshold", ind.MonitorThreshold, strategy.MonitorThresholdWidth())
	}
	return samples, widths
}

// ============================================================================
// DESCRIPTIVE STATISTICS
// ============================================================================

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func minOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
