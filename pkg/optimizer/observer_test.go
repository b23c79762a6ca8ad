package optimizer

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := NewCSVObserver(&buf, 2)

	obs.OnGeneration(&GenerationReport{
		Generation:  0,
		Split:       "jan",
		Evaluated:   10,
		Failed:      1,
		EliteCount:  4,
		BestFitness: []float64{-0.5, 0.25},
		Elapsed:     1500 * time.Millisecond,
	})
	obs.OnGeneration(&GenerationReport{
		Generation:  1,
		Split:       "jan",
		Evaluated:   10,
		EliteCount:  4,
		BestFitness: []float64{-0.75, 0.2},
		Elapsed:     900 * time.Millisecond,
	})
	require.NoError(t, obs.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per generation")

	assert.Equal(t, []string{
		"generation", "split", "evaluated", "failed", "elites",
		"converged", "elapsed_ms", "best_objective_0", "best_objective_1",
	}, rows[0])
	assert.Equal(t, []string{"0", "jan", "10", "1", "4", "0", "1500", "-0.5", "0.25"}, rows[1])
	assert.Equal(t, []string{"1", "jan", "10", "0", "4", "0", "900", "-0.75", "0.2"}, rows[2])
}

func TestCSVObserverPadsMissingBest(t *testing.T) {
	var buf bytes.Buffer
	obs := NewCSVObserver(&buf, 3)

	obs.OnGeneration(&GenerationReport{Generation: 0, Split: "jan"})
	require.NoError(t, obs.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"", "", ""}, rows[1][len(rows[1])-3:])
}

func TestObserverFunc(t *testing.T) {
	seen := 0
	var obs Observer = ObserverFunc(func(*GenerationReport) { seen++ })
	obs.OnGeneration(&GenerationReport{})
	assert.Equal(t, 1, seen)
}

func TestFormatFitness(t *testing.T) {
	assert.Equal(t, "[-0.5000, 0.2500]", formatFitness([]float64{-0.5, 0.25}))
	assert.Equal(t, "[]", formatFitness(nil))
}
