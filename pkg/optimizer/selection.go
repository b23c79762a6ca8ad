// Pareto-front partitioning, within-front balancing, and bounded elitism.
package optimizer

import (
	"math"
	"sort"

	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
)

// IndividualStats pairs an individual with its fitness vector (minimization
// convention) and the batch index it was submitted under. Immutable once
// built; failed individuals are tracked by identity, never by position.
type IndividualStats struct {
	Individual *strategy.Individual
	Fitness    []float64
	BatchIndex int
	Failed     bool
}

// Dominates reports whether fitness vector a dominates b: every objective of
// a is <= b's and at least one is strictly less.
func Dominates(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	strict := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			strict = true
		}
	}
	return strict
}

// ParetoFronts partitions the batch into Pareto fronts by repeatedly
// extracting the maximal non-dominated subset. Every individual lands in
// exactly one front; front 0 contains nothing dominated by another member of
// the batch.
func ParetoFronts(batch []*IndividualStats) [][]*IndividualStats {
	if len(batch) == 0 {
		return nil
	}

	var fronts [][]*IndividualStats
	remaining := append([]*IndividualStats(nil), batch...)

	for len(remaining) > 0 {
		var front, rest []*IndividualStats

		for i, candidate := range remaining {
			dominated := false
			for j, other := range remaining {
				if i == j {
					continue
				}
				if Dominates(other.Fitness, candidate.Fitness) {
					dominated = true
					break
				}
			}
			if dominated {
				rest = append(rest, candidate)
			} else {
				front = append(front, candidate)
			}
		}

		fronts = append(fronts, balanceFront(front))
		remaining = rest
	}

	return fronts
}

// IdealPoint is the component-wise minimum fitness vector across the set.
func IdealPoint(set []*IndividualStats) []float64 {
	if len(set) == 0 {
		return nil
	}
	ideal := append([]float64(nil), set[0].Fitness...)
	for _, stats := range set[1:] {
		for i, v := range stats.Fitness {
			if v < ideal[i] {
				ideal[i] = v
			}
		}
	}
	return ideal
}

func distanceTo(fitness, ideal []float64) float64 {
	var sum float64
	for i := range fitness {
		d := fitness[i] - ideal[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// balanceFront orders a front by ascending Euclidean distance from its ideal
// point, ranking members by cross-objective balance. Ties break on batch
// index so the ordering is deterministic.
func balanceFront(front []*IndividualStats) []*IndividualStats {
	if len(front) < 2 {
		return front
	}
	ideal := IdealPoint(front)
	sorted := append([]*IndividualStats(nil), front...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := distanceTo(sorted[i].Fitness, ideal)
		dj := distanceTo(sorted[j].Fitness, ideal)
		if di != dj {
			return di < dj
		}
		return sorted[i].BatchIndex < sorted[j].BatchIndex
	})
	return sorted
}

// SelectElites walks fronts in order, taking balanced-sorted members from
// each until the elitist quota is filled. Members beyond the quota are not
// elites but may still seed the next crossover pool per driver policy.
func SelectElites(batch []*IndividualStats, quota int) []*IndividualStats {
	if quota <= 0 {
		return nil
	}

	elites := make([]*IndividualStats, 0, quota)
	for _, front := range ParetoFronts(batch) {
		for _, stats := range front {
			if len(elites) == quota {
				return elites
			}
			elites = append(elites, stats)
		}
	}
	return elites
}

// TrimElites bounds an externally observed elite set to at most limit
// members, always keeping the lowest-distance-to-ideal members against the
// ideal point of the combined set.
func TrimElites(elites []*IndividualStats, limit int) []*IndividualStats {
	if limit <= 0 || len(elites) <= limit {
		return elites
	}
	ideal := IdealPoint(elites)
	sorted := append([]*IndividualStats(nil), elites...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di := distanceTo(sorted[i].Fitness, ideal)
		dj := distanceTo(sorted[j].Fitness, ideal)
		if di != dj {
			return di < dj
		}
		return sorted[i].BatchIndex < sorted[j].BatchIndex
	})
	return sorted[:limit]
}
