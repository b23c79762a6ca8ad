package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statsBatch wraps fitness vectors into a batch with submission-order batch
// indices. Selection never touches the individuals, so they stay nil.
func statsBatch(fitness ...[]float64) []*IndividualStats {
	batch := make([]*IndividualStats, len(fitness))
	for i, f := range fitness {
		batch[i] = &IndividualStats{Fitness: f, BatchIndex: i}
	}
	return batch
}

func fitnessSet(front []*IndividualStats) map[int]bool {
	set := make(map[int]bool, len(front))
	for _, s := range front {
		set[s.BatchIndex] = true
	}
	return set
}

func TestDominates(t *testing.T) {
	assert.True(t, Dominates([]float64{1, 1, 1}, []float64{2, 1, 1}))
	assert.True(t, Dominates([]float64{0, 0}, []float64{1, 1}))
	assert.False(t, Dominates([]float64{1, 1}, []float64{1, 1}), "equal vectors never dominate")
	assert.False(t, Dominates([]float64{0, 2}, []float64{1, 1}), "trade-offs are incomparable")
	assert.False(t, Dominates([]float64{1, 2}, []float64{1, 1, 1}), "length mismatch")
}

func TestParetoFrontsPartition(t *testing.T) {
	batch := statsBatch(
		[]float64{1, 5, 3}, // 0
		[]float64{2, 1, 4}, // 1
		[]float64{5, 5, 5}, // 2
		[]float64{1, 1, 1}, // 3
		[]float64{3, 3, 3}, // 4
		[]float64{0, 9, 9}, // 5
	)

	fronts := ParetoFronts(batch)
	require.Len(t, fronts, 3)

	assert.Equal(t, map[int]bool{3: true, 5: true}, fitnessSet(fronts[0]))
	assert.Equal(t, map[int]bool{0: true, 1: true, 4: true}, fitnessSet(fronts[1]))
	assert.Equal(t, map[int]bool{2: true}, fitnessSet(fronts[2]))

	// Exhaustive: every member lands in exactly one front.
	total := 0
	seen := make(map[int]bool)
	for _, front := range fronts {
		total += len(front)
		for _, s := range front {
			assert.False(t, seen[s.BatchIndex])
			seen[s.BatchIndex] = true
		}
	}
	assert.Equal(t, len(batch), total)
}

func TestParetoFrontsIdempotentOnFrontZero(t *testing.T) {
	batch := statsBatch(
		[]float64{1, 5, 3},
		[]float64{2, 1, 4},
		[]float64{1, 1, 1},
		[]float64{0, 9, 9},
	)
	front0 := ParetoFronts(batch)[0]

	again := ParetoFronts(front0)
	require.Len(t, again, 1)
	assert.Equal(t, fitnessSet(front0), fitnessSet(again[0]))
}

func TestParetoFrontsEmptyBatch(t *testing.T) {
	assert.Nil(t, ParetoFronts(nil))
}

func TestIdealPoint(t *testing.T) {
	batch := statsBatch([]float64{1, 5}, []float64{4, 2}, []float64{3, 3})
	assert.Equal(t, []float64{1, 2}, IdealPoint(batch))
	assert.Nil(t, IdealPoint(nil))
}

func TestBalanceFrontOrdering(t *testing.T) {
	// Both are front-zero members; [1,1,1] sits far closer to the ideal
	// [0,1,1] than the lopsided [0,9,9].
	batch := statsBatch([]float64{0, 9, 9}, []float64{1, 1, 1})
	front := ParetoFronts(batch)[0]

	require.Len(t, front, 2)
	assert.Equal(t, []float64{1, 1, 1}, front[0].Fitness)
	assert.Equal(t, []float64{0, 9, 9}, front[1].Fitness)
}

func TestBalanceFrontTieBreaksOnBatchIndex(t *testing.T) {
	batch := statsBatch([]float64{2, 2}, []float64{2, 2}, []float64{2, 2})
	front := ParetoFronts(batch)[0]

	require.Len(t, front, 3)
	for i, s := range front {
		assert.Equal(t, i, s.BatchIndex)
	}
}

func TestSelectElites(t *testing.T) {
	batch := statsBatch(
		[]float64{1, 5, 3},
		[]float64{2, 1, 4},
		[]float64{5, 5, 5},
		[]float64{1, 1, 1},
		[]float64{3, 3, 3},
		[]float64{0, 9, 9},
	)

	t.Run("quota within front zero", func(t *testing.T) {
		elites := SelectElites(batch, 2)
		require.Len(t, elites, 2)
		assert.Equal(t, map[int]bool{3: true, 5: true}, fitnessSet(elites))
	})

	t.Run("quota spills into front one", func(t *testing.T) {
		elites := SelectElites(batch, 3)
		require.Len(t, elites, 3)
		// Front one's most balanced member against its ideal [1,1,3].
		assert.Equal(t, []float64{2, 1, 4}, elites[2].Fitness)
	})

	t.Run("quota beyond batch", func(t *testing.T) {
		assert.Len(t, SelectElites(batch, 50), len(batch))
	})

	t.Run("zero quota", func(t *testing.T) {
		assert.Empty(t, SelectElites(batch, 0))
	})
}

func TestTrimElites(t *testing.T) {
	var batch []*IndividualStats
	for i := 0; i < 30; i++ {
		batch = append(batch, &IndividualStats{
			Fitness:    []float64{float64(i), float64(i)},
			BatchIndex: i,
		})
	}

	trimmed := TrimElites(batch, 20)
	require.Len(t, trimmed, 20)
	for _, s := range trimmed {
		assert.Less(t, s.BatchIndex, 20, "trim keeps the members closest to the ideal")
	}

	// Under the cap the set passes through untouched.
	small := statsBatch([]float64{1, 1}, []float64{2, 2})
	assert.Equal(t, small, TrimElites(small, 20))
}
