// Package backtest provides the evaluation surface the optimizer scores
// candidates against: historical data splits, the backtest Runner contract,
// the Portfolio result, and the objective function family.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// Candle represents OHLCV data for one time period.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// DataSplit is a fixed historical price-series slice used as backtest input
// for one or more generations. Series holds precomputed per-candle indicator
// scores keyed by qualified indicator name; the indicator math producing them
// lives outside this module. A split is logically immutable once built.
type DataSplit struct {
	Name    string               `json:"name"`
	Candles []Candle             `json:"candles"`
	Series  map[string][]float64 `json:"series"`
}

// Validate checks that every series covers the candle range.
func (s *DataSplit) Validate() error {
	if len(s.Candles) == 0 {
		return fmt.Errorf("split %s has no candles", s.Name)
	}
	for name, series := range s.Series {
		if len(series) != len(s.Candles) {
			return fmt.Errorf("split %s series %s has %d values for %d candles",
				s.Name, name, len(series), len(s.Candles))
		}
	}
	return nil
}

// Trade records one round trip. Kept for visualization only; the optimizer
// scores portfolios, not trades.
type Trade struct {
	EntryIndex int     `json:"entry_index"`
	ExitIndex  int     `json:"exit_index"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	ReturnPct  float64 `json:"return_pct"`
}

// Portfolio is the result of running one strategy configuration over a split.
// TotalPercentProfit accumulates winning-trade returns, TotalPercentLoss the
// magnitudes of losing-trade returns; both are non-negative.
type Portfolio struct {
	TotalPercentProfit float64 `json:"total_percent_profit"`
	TotalPercentLoss   float64 `json:"total_percent_loss"`
	WinningTrades      int     `json:"winning_trades"`
	LosingTrades       int     `json:"losing_trades"`

	// Optional visualization payloads.
	Trades    []Trade   `json:"trades,omitempty"`
	BarScores []float64 `json:"bar_scores,omitempty"`
}

// TotalTrades returns the round-trip count.
func (p *Portfolio) TotalTrades() int { return p.WinningTrades + p.LosingTrades }

// ============================================================================
// RUNNER CONTRACT
// ============================================================================

// Runner executes a full backtest of one individual against a pre-loaded
// data split. Implementations must not share mutable state between clones:
// the evaluation engine calls Clone once per worker job and runs the clones
// concurrently.
type Runner interface {
	// Run backtests the individual and returns its portfolio result.
	Run(ctx context.Context, ind *strategy.Individual) (*Portfolio, error)

	// Clone returns an independent runner over the same immutable split,
	// with any mutable precomputed aggregation state deep-copied.
	Clone() Runner

	// Split returns the name of the data split this runner is loaded with.
	Split() string
}

// ============================================================================
// SIMULATION RUNNER
// ============================================================================

// SimRunner is the shipped Runner implementation: a bar-scoring simulation
// over a data split. Each genome bar combines its weighted indicator scores
// into a per-candle score; bar enter/exit votes are aggregated through the
// individual's trigger weights and gated by the monitor threshold.
type SimRunner struct {
	split  *DataSplit
	scores map[string][]float64
	log    zerolog.Logger
}

// NewSimRunner builds a runner over a validated split.
func NewSimRunner(split *DataSplit, logger zerolog.Logger) (*SimRunner, error) {
	if err := split.Validate(); err != nil {
		return nil, err
	}
	r := &SimRunner{
		split:  split,
		scores: make(map[string][]float64, len(split.Series)),
		log:    logger.With().Str("component", "sim_runner").Str("split", split.Name).Logger(),
	}
	for name, series := range split.Series {
		r.scores[name] = append([]float64(nil), series...)
	}
	return r, nil
}

// Clone deep-copies the mutable score state. The split itself is immutable
// and shared.
func (r *SimRunner) Clone() Runner {
	c := &SimRunner{
		split:  r.split,
		scores: make(map[string][]float64, len(r.scores)),
		log:    r.log,
	}
	for name, series := range r.scores {
		c.scores[name] = append([]float64(nil), series...)
	}
	return c
}

// Split returns the loaded split name.
func (r *SimRunner) Split() string { return r.split.Name }

// Run walks the split candle by candle, entering a position when the
// bull-side trigger consensus clears the monitor threshold and exiting when
// the bear side does. Any open position is closed on the final candle.
func (r *SimRunner) Run(ctx context.Context, ind *strategy.Individual) (*Portfolio, error) {
	if err := ind.Validate(); err != nil {
		return nil, fmt.Errorf("invalid individual %s: %w", ind.ID, err)
	}

	portfolio := &Portfolio{}
	inPosition := false
	entryIndex := 0
	entryPrice := 0.0

	for i := range r.split.Candles {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		bull, bear := r.monitorScores(ind, i)
		portfolio.BarScores = append(portfolio.BarScores, bull)

		switch {
		case !inPosition && bull >= ind.MonitorThreshold:
			inPosition = true
			entryIndex = i
			entryPrice = r.split.Candles[i].Close

		case inPosition && bear >= ind.MonitorThreshold:
			r.closeTrade(portfolio, entryIndex, i, entryPrice)
			inPosition = false
		}
	}

	if inPosition {
		r.closeTrade(portfolio, entryIndex, len(r.split.Candles)-1, entryPrice)
	}

	r.log.Debug().
		Str("individual", ind.ID.String()).
		Int("trades", portfolio.TotalTrades()).
		Float64("profit_pct", portfolio.TotalPercentProfit).
		Float64("loss_pct", portfolio.TotalPercentLoss).
		Msg("Backtest finished")

	return portfolio, nil
}

// monitorScores aggregates per-bar enter/exit votes into the bull and bear
// consensus scores for candle i.
func (r *SimRunner) monitorScores(ind *strategy.Individual, i int) (bull, bear float64) {
	var bullWeight, bearWeight float64

	for _, bar := range ind.Config.Bars {
		score := r.barScore(bar, i)

		if w := ind.TriggerWeights[bar.Name]; w > 0 {
			bullWeight += w
			if allAtLeast(score, bar.EnterThresholds) {
				bull += w
			}
		}
		if w := ind.BearTriggerWeights[bar.Name]; w > 0 {
			bearWeight += w
			if anyBelow(score, bar.ExitThresholds) {
				bear += w
			}
		}
	}

	if bullWeight > 0 {
		bull /= bullWeight
	}
	if bearWeight > 0 {
		bear /= bearWeight
	}
	return bull, bear
}

// barScore is the weighted average of the bar's indicator scores at candle i.
func (r *SimRunner) barScore(bar *strategy.Bar, i int) float64 {
	var sum, total float64
	for name, weight := range bar.Weights {
		series, ok := r.scores[name]
		if !ok || weight <= 0 {
			continue
		}
		sum += weight * series[i]
		total += weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func (r *SimRunner) closeTrade(p *Portfolio, entryIndex, exitIndex int, entryPrice float64) {
	exitPrice := r.split.Candles[exitIndex].Close
	returnPct := 0.0
	if entryPrice != 0 {
		returnPct = (exitPrice - entryPrice) / entryPrice * 100.0
	}

	if returnPct > 0 {
		p.WinningTrades++
		p.TotalPercentProfit += returnPct
	} else {
		p.LosingTrades++
		p.TotalPercentLoss += -returnPct
	}

	p.Trades = append(p.Trades, Trade{
		EntryIndex: entryIndex,
		ExitIndex:  exitIndex,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		ReturnPct:  returnPct,
	})
}

func allAtLeast(score float64, thresholds []float64) bool {
	if len(thresholds) == 0 {
		return false
	}
	for _, t := range thresholds {
		if score < t {
			return false
		}
	}
	return true
}

func anyBelow(score float64, thresholds []float64) bool {
	for _, t := range thresholds {
		if score <= t {
			return true
		}
	}
	return false
}
