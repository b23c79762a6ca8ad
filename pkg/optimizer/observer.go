package optimizer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Observer receives one callback per completed generation. Callbacks run on
// the driver goroutine, so a slow observer stalls the run.
type Observer interface {
	OnGeneration(report *GenerationReport)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(report *GenerationReport)

// OnGeneration implements Observer.
func (f ObserverFunc) OnGeneration(report *GenerationReport) { f(report) }

// ConsoleObserver logs a one-line summary per generation.
type ConsoleObserver struct {
	log zerolog.Logger
}

// NewConsoleObserver builds a console observer on the given logger.
func NewConsoleObserver(logger zerolog.Logger) *ConsoleObserver {
	return &ConsoleObserver{log: logger.With().Str("component", "progress").Logger()}
}

// OnGeneration implements Observer.
func (o *ConsoleObserver) OnGeneration(report *GenerationReport) {
	o.log.Info().
		Int("generation", report.Generation).
		Str("split", report.Split).
		Int("evaluated", report.Evaluated).
		Int("failed", report.Failed).
		Int("elites", report.EliteCount).
		Str("best", formatFitness(report.BestFitness)).
		Int("converged", len(report.Converged)).
		Dur("elapsed", report.Elapsed).
		Msg("Generation complete")
}

// CSVObserver appends one row per generation to a CSV stream. The header is
// written before the first row; Flush errors surface on Close.
type CSVObserver struct {
	mu         sync.Mutex
	w          *csv.Writer
	objectives int
	wroteHead  bool
}

// NewCSVObserver builds a CSV observer over the given writer for a run with
// the given objective count.
func NewCSVObserver(w io.Writer, objectives int) *CSVObserver {
	return &CSVObserver{w: csv.NewWriter(w), objectives: objectives}
}

// OnGeneration implements Observer.
func (o *CSVObserver) OnGeneration(report *GenerationReport) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.wroteHead {
		head := []string{"generation", "split", "evaluated", "failed", "elites", "converged", "elapsed_ms"}
		for i := 0; i < o.objectives; i++ {
			head = append(head, fmt.Sprintf("best_objective_%d", i))
		}
		_ = o.w.Write(head)
		o.wroteHead = true
	}

	row := []string{
		strconv.Itoa(report.Generation),
		report.Split,
		strconv.Itoa(report.Evaluated),
		strconv.Itoa(report.Failed),
		strconv.Itoa(report.EliteCount),
		strconv.Itoa(len(report.Converged)),
		strconv.FormatInt(report.Elapsed.Milliseconds(), 10),
	}
	for i := 0; i < o.objectives; i++ {
		if i < len(report.BestFitness) {
			row = append(row, strconv.FormatFloat(report.BestFitness[i], 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}
	_ = o.w.Write(row)
	o.w.Flush()
}

// Close flushes buffered rows and reports any write error.
func (o *CSVObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.w.Flush()
	return o.w.Error()
}

func formatFitness(fitness []float64) string {
	parts := make([]string, len(fitness))
	for i, v := range fitness {
		parts[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
