package optimizer

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
	"github.com/yersiniasGhost/berlin-sub000/pkg/backtest"
)

// stubRunner is a deterministic Runner for engine tests: the portfolio
// profit equals the individual's monitor threshold, so fitness is a pure
// function of the genome.
type stubRunner struct {
	name   string
	err    error
	panics bool
	empty  bool
}

func (r *stubRunner) Run(_ context.Context, ind *strategy.Individual) (*backtest.Portfolio, error) {
	if r.panics {
		panic("stub backtest exploded")
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.empty {
		return &backtest.Portfolio{}, nil
	}
	return &backtest.Portfolio{
		TotalPercentProfit: ind.MonitorThreshold,
		WinningTrades:      1,
	}, nil
}

func (r *stubRunner) Clone() backtest.Runner {
	c := *r
	return &c
}

func (r *stubRunner) Split() string { return r.name }

func newTestEvaluator(t *testing.T, runner backtest.Runner, parallel bool) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(
		[]backtest.Runner{runner},
		[]backtest.Objective{backtest.NegativeProfitObjective},
		EvaluatorConfig{Workers: 4, Parallel: parallel},
		rand.New(rand.NewSource(1)),
		zerolog.Nop(),
		nil,
	)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func testPopulation(n int, seed int64) []*strategy.Individual {
	return NewRandomPopulation(testPrototype(), n, rand.New(rand.NewSource(seed)))
}

func TestNewEvaluatorValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := NewEvaluator(nil, []backtest.Objective{backtest.LossObjective}, EvaluatorConfig{}, rng, zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = NewEvaluator([]backtest.Runner{&stubRunner{name: "a"}}, nil, EvaluatorConfig{}, rng, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestEvaluateSequentialOrder(t *testing.T) {
	e := newTestEvaluator(t, &stubRunner{name: "train"}, false)
	population := testPopulation(8, 2)

	stats, err := e.Evaluate(context.Background(), 0, population)
	require.NoError(t, err)
	require.Len(t, stats, len(population))

	for slot, s := range stats {
		assert.Same(t, population[slot], s.Individual)
		assert.Equal(t, slot, s.BatchIndex)
		assert.False(t, s.Failed)
		require.Len(t, s.Fitness, 1)
		assert.InDelta(t, -population[slot].MonitorThreshold, s.Fitness[0], 1e-12)
	}
}

func TestEvaluateParallelMatchesSequential(t *testing.T) {
	parallel := newTestEvaluator(t, &stubRunner{name: "train"}, true)
	sequential := newTestEvaluator(t, &stubRunner{name: "train"}, false)
	population := testPopulation(20, 3)

	pstats, err := parallel.Evaluate(context.Background(), 0, population)
	require.NoError(t, err)
	sstats, err := sequential.Evaluate(context.Background(), 0, population)
	require.NoError(t, err)

	require.Len(t, pstats, len(sstats))
	for i := range pstats {
		assert.Equal(t, sstats[i].Fitness, pstats[i].Fitness, "slot %d", i)
		assert.Equal(t, sstats[i].BatchIndex, pstats[i].BatchIndex)
	}
}

func TestEvaluatePenalizesBacktestError(t *testing.T) {
	e := newTestEvaluator(t, &stubRunner{name: "train", err: errors.New("feed gap")}, true)
	population := testPopulation(5, 4)

	stats, err := e.Evaluate(context.Background(), 0, population)
	require.NoError(t, err, "individual failures are never generation-fatal")
	require.Len(t, stats, len(population))

	for _, s := range stats {
		assert.True(t, s.Failed)
		assert.Equal(t, backtest.PenaltyVector(1), s.Fitness)
	}
}

func TestEvaluateRecoversPanics(t *testing.T) {
	e := newTestEvaluator(t, &stubRunner{name: "train", panics: true}, true)
	population := testPopulation(6, 5)

	// The pool must survive panicking jobs across generations.
	for gen := 0; gen < 2; gen++ {
		stats, err := e.Evaluate(context.Background(), gen, population)
		require.NoError(t, err)
		require.Len(t, stats, len(population))
		for _, s := range stats {
			assert.True(t, s.Failed)
			assert.Equal(t, backtest.PenaltyVector(1), s.Fitness)
		}
	}
}

func TestEvaluateMarksZeroTradeResultsFailed(t *testing.T) {
	e := newTestEvaluator(t, &stubRunner{name: "train", empty: true}, false)
	population := testPopulation(3, 6)

	stats, err := e.Evaluate(context.Background(), 0, population)
	require.NoError(t, err)
	for _, s := range stats {
		assert.True(t, s.Failed, "all-sentinel score vectors count as full failures")
		assert.Equal(t, []float64{backtest.FailureScore}, s.Fitness)
	}
}

func TestSplitRotationReusesSplit(t *testing.T) {
	runners := []backtest.Runner{
		&stubRunner{name: "jan"},
		&stubRunner{name: "feb"},
		&stubRunner{name: "mar"},
	}
	e, err := NewEvaluator(
		runners,
		[]backtest.Objective{backtest.NegativeProfitObjective},
		EvaluatorConfig{Parallel: false, SplitGenerations: 2},
		rand.New(rand.NewSource(9)),
		zerolog.Nop(),
		nil,
	)
	require.NoError(t, err)
	defer e.Close()

	population := testPopulation(2, 7)
	splits := make([]string, 6)
	for gen := 0; gen < 6; gen++ {
		_, err := e.Evaluate(context.Background(), gen, population)
		require.NoError(t, err)
		splits[gen] = e.CurrentSplit()
	}

	// One split serves two consecutive generations before the re-roll.
	assert.Equal(t, splits[0], splits[1])
	assert.Equal(t, splits[2], splits[3])
	assert.Equal(t, splits[4], splits[5])
}

func TestEvaluateFallsBackAfterClose(t *testing.T) {
	e := newTestEvaluator(t, &stubRunner{name: "train"}, true)
	population := testPopulation(4, 8)

	// First generation spins the pool up.
	_, err := e.Evaluate(context.Background(), 0, population)
	require.NoError(t, err)

	e.Close()

	// Submitting into the closed pool fails; the engine re-runs the
	// generation sequentially instead of surfacing an error.
	stats, err := e.Evaluate(context.Background(), 1, population)
	require.NoError(t, err)
	require.Len(t, stats, len(population))
	for slot, s := range stats {
		assert.False(t, s.Failed)
		assert.InDelta(t, -population[slot].MonitorThreshold, s.Fitness[0], 1e-12)
	}
}
