// Objective functions scoring backtest portfolios, minimization convention.
package backtest

import (
	"math"

	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
)

// FailureScore is the documented sentinel for a totally failed evaluation.
// An individual whose every objective equals FailureScore is treated as a
// full failure by the evaluation engine.
const FailureScore = 100.0

// Objective scores one evaluated individual. Lower is better. Implementations
// return FailureScore when the portfolio carries no usable signal.
type Objective func(ind *strategy.Individual, p *Portfolio, r Runner) float64

// Predefined objectives
var (
	// NegativeProfitObjective rewards accumulated winning returns.
	NegativeProfitObjective Objective = func(_ *strategy.Individual, p *Portfolio, _ Runner) float64 {
		if p == nil || p.TotalTrades() == 0 {
			return FailureScore
		}
		return -p.TotalPercentProfit
	}

	// LossObjective penalizes accumulated losing returns.
	LossObjective Objective = func(_ *strategy.Individual, p *Portfolio, _ Runner) float64 {
		if p == nil || p.TotalTrades() == 0 {
			return FailureScore
		}
		return p.TotalPercentLoss
	}

	// WinRateObjective minimizes the losing-trade fraction.
	WinRateObjective Objective = func(_ *strategy.Individual, p *Portfolio, _ Runner) float64 {
		if p == nil || p.TotalTrades() == 0 {
			return FailureScore
		}
		return float64(p.LosingTrades) / float64(p.TotalTrades())
	}

	// TradeBalanceObjective penalizes loss-heavy profit profiles: the ratio
	// of losing to winning percent moves, squashed into [0,1).
	TradeBalanceObjective Objective = func(_ *strategy.Individual, p *Portfolio, _ Runner) float64 {
		if p == nil || p.TotalTrades() == 0 {
			return FailureScore
		}
		if p.TotalPercentProfit <= 0 {
			return FailureScore
		}
		ratio := p.TotalPercentLoss / p.TotalPercentProfit
		return ratio / (1.0 + ratio)
	}
)

// AllFailed reports whether every score equals the failure sentinel, the
// full-failure condition for one individual.
func AllFailed(scores []float64) bool {
	if len(scores) == 0 {
		return true
	}
	for _, s := range scores {
		if s != FailureScore {
			return false
		}
	}
	return true
}

// PenaltyVector returns the sentinel repeated once per objective. Assigned to
// individuals whose backtest raised, keeping population size reproducible.
func PenaltyVector(objectives int) []float64 {
	v := make([]float64, objectives)
	for i := range v {
		v[i] = FailureScore
	}
	return v
}

// Sanitize clamps non-finite scores to the failure sentinel so selection
// arithmetic stays well defined.
func Sanitize(scores []float64) []float64 {
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			scores[i] = FailureScore
		}
	}
	return scores
}
