// Package optimizer implements the multi-objective genetic-algorithm search
// over strategy genomes: population operators, parallel fitness evaluation,
// Pareto-front selection with bounded elitism, a parameter evolution tracker,
// and the generational driver coordinating them.
package optimizer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/yersiniasGhost/berlin-sub000/internal/strategy"
)

const (
	// geneMutateFraction sizes mutation deltas as a fraction of each gene's
	// declared range width.
	geneMutateFraction = 0.20

	// maxOperatorRetries bounds the no-op-avoidance retry loop in crossover
	// and mutation before a change is forced.
	maxOperatorRetries = 10
)

// ============================================================================
// POPULATION INITIALIZATION
// ============================================================================

// NewRandomPopulation creates n independently randomized deep clones of the
// prototype. Indicator parameters are drawn uniformly within their declared
// ranges (type-respecting), trigger and bar weights as random integers within
// the weight band, and the monitor threshold uniformly within its band.
func NewRandomPopulation(proto *strategy.Individual, n int, rng *rand.Rand) []*strategy.Individual {
	population := make([]*strategy.Individual, n)
	for i := 0; i < n; i++ {
		ind := proto.Clone()
		randomizeIndividual(ind, rng)
		population[i] = ind
	}
	return population
}

func randomizeIndividual(ind *strategy.Individual, rng *rand.Rand) {
	for _, spec := range ind.Config.Indicators {
		for _, name := range sortedParamKeys(spec.Params) {
			p := spec.Params[name]
			if !p.Tunable() {
				continue
			}
			p.Value = randomParamValue(p, rng)
		}
	}

	for _, bar := range ind.Config.Bars {
		for _, name := range sortedKeys(bar.Weights) {
			bar.Weights[name] = randomWeight(rng)
		}
		for i := range bar.EnterThresholds {
			bar.EnterThresholds[i] = randomInBand(strategy.ThresholdMin, strategy.ThresholdMax, rng)
		}
		for i := range bar.ExitThresholds {
			bar.ExitThresholds[i] = randomInBand(strategy.ThresholdMin, strategy.ThresholdMax, rng)
		}
	}

	for _, name := range sortedKeys(ind.TriggerWeights) {
		ind.TriggerWeights[name] = randomWeight(rng)
	}
	for _, name := range sortedKeys(ind.BearTriggerWeights) {
		ind.BearTriggerWeights[name] = randomWeight(rng)
	}

	ind.MonitorThreshold = randomInBand(strategy.MonitorThresholdMin, strategy.MonitorThresholdMax, rng)
}

func randomParamValue(p *strategy.Param, rng *rand.Rand) float64 {
	v := p.Min + rng.Float64()*p.Width()
	if p.Kind == strategy.KindInteger {
		return clamp(math.Round(v), p.Min, p.Max)
	}
	return v
}

func randomWeight(rng *rand.Rand) float64 {
	min := int(strategy.WeightMin)
	max := int(strategy.WeightMax)
	return float64(min + rng.Intn(max-min+1))
}

func randomInBand(min, max float64, rng *rand.Rand) float64 {
	return min + rng.Float64()*(max-min)
}

// ============================================================================
// CROSSOVER
// ============================================================================

// crossGene is one shared scalar gene swappable between two parents.
type crossGene struct {
	swap func()
}

// CrossOver performs a uniform per-gene swap between mom and dad across every
// shared scalar gene: trigger weights, bear-trigger weights, and each tunable
// indicator parameter. The pass retries while no swap happened; after the
// retry budget a single random gene is swapped so the at-least-one-swap
// contract holds even at swapProbability 0. The two mutated parents are the
// children; no separate offspring objects exist. Returns the swap count.
func CrossOver(mom, dad *strategy.Individual, swapProbability float64, rng *rand.Rand) (int, error) {
	genes := sharedGenes(mom, dad)
	if len(genes) == 0 {
		return 0, fmt.Errorf("individuals %s and %s share no genes", mom.ID, dad.ID)
	}

	swaps := 0
	for attempt := 0; attempt <= maxOperatorRetries; attempt++ {
		for _, gene := range genes {
			if rng.Float64() < swapProbability {
				gene.swap()
				swaps++
			}
		}
		if swaps > 0 {
			return swaps, nil
		}
	}

	// Degenerate pass: force one swap to honor the contract.
	genes[rng.Intn(len(genes))].swap()
	return 1, nil
}

// sharedGenes enumerates the scalar genes present in both individuals, in a
// deterministic order so seeded runs reproduce.
func sharedGenes(mom, dad *strategy.Individual) []crossGene {
	var genes []crossGene

	for _, name := range sortedKeys(mom.TriggerWeights) {
		if _, ok := dad.TriggerWeights[name]; !ok {
			continue
		}
		name := name
		genes = append(genes, crossGene{swap: func() {
			mom.TriggerWeights[name], dad.TriggerWeights[name] =
				dad.TriggerWeights[name], mom.TriggerWeights[name]
		}})
	}

	for _, name := range sortedKeys(mom.BearTriggerWeights) {
		if _, ok := dad.BearTriggerWeights[name]; !ok {
			continue
		}
		name := name
		genes = append(genes, crossGene{swap: func() {
			mom.BearTriggerWeights[name], dad.BearTriggerWeights[name] =
				dad.BearTriggerWeights[name], mom.BearTriggerWeights[name]
		}})
	}

	dadSpecs := make(map[string]*strategy.IndicatorSpec, len(dad.Config.Indicators))
	for _, spec := range dad.Config.Indicators {
		dadSpecs[spec.QualifiedName()] = spec
	}
	for _, momSpec := range mom.Config.Indicators {
		dadSpec, ok := dadSpecs[momSpec.QualifiedName()]
		if !ok {
			continue
		}
		for _, name := range sortedParamKeys(momSpec.Params) {
			momParam := momSpec.Params[name]
			dadParam, ok := dadSpec.Params[name]
			if !ok || !momParam.Tunable() || !dadParam.Tunable() {
				continue
			}
			genes = append(genes, crossGene{swap: func() {
				momParam.Value, dadParam.Value = dadParam.Value, momParam.Value
			}})
		}
	}

	return genes
}

// ============================================================================
// MUTATION
// ============================================================================

// mutGene is one mutable scalar gene with its declared range.
type mutGene struct {
	get     func() float64
	set     func(float64)
	min     float64
	max     float64
	integer bool
}

// Mutate perturbs each gene independently with the given probability by a
// bounded delta sized as a fixed fraction of the gene's declared range,
// clamped to the range. Non-tunable genes are never touched. The pass
// retries while no gene effectively changed; after the retry budget one
// random gene is forced. A provenance note recording the mutation count and
// generation index is appended. Returns the effective mutation count.
func Mutate(ind *strategy.Individual, mutateProbability float64, generation int, rng *rand.Rand) int {
	genes := mutableGenes(ind)
	if len(genes) == 0 {
		return 0
	}

	mutations := 0
	for attempt := 0; attempt <= maxOperatorRetries; attempt++ {
		for _, gene := range genes {
			if rng.Float64() < mutateProbability {
				if perturb(gene, rng) {
					mutations++
				}
			}
		}
		if mutations > 0 {
			break
		}
	}

	if mutations == 0 {
		// Degenerate pass: force one effective change.
		for attempt := 0; attempt < maxOperatorRetries; attempt++ {
			if perturb(genes[rng.Intn(len(genes))], rng) {
				mutations = 1
				break
			}
		}
	}

	if mutations > 0 {
		ind.Mutations += mutations
		ind.Provenance = append(ind.Provenance,
			fmt.Sprintf("mut#%d@gen%d", ind.Mutations, generation))
	}
	return mutations
}

// perturb applies one bounded delta; reports whether the value changed.
func perturb(gene mutGene, rng *rand.Rand) bool {
	width := gene.max - gene.min
	if width <= 0 {
		return false
	}

	old := gene.get()
	var next float64

	if gene.integer {
		maxStep := int(math.Round(width * geneMutateFraction))
		if maxStep < 1 {
			maxStep = 1
		}
		step := float64(1 + rng.Intn(maxStep))
		if rng.Intn(2) == 0 {
			step = -step
		}
		next = clamp(math.Round(old+step), gene.min, gene.max)
	} else {
		delta := (rng.Float64()*2 - 1) * width * geneMutateFraction
		next = clamp(old+delta, gene.min, gene.max)
	}

	if next == old {
		return false
	}
	gene.set(next)
	return true
}

// mutableGenes enumerates every tunable scalar gene of the individual in a
// deterministic order: indicator parameters, trigger and bear-trigger
// weights, bar weights and thresholds, and the monitor threshold.
func mutableGenes(ind *strategy.Individual) []mutGene {
	var genes []mutGene

	for _, spec := range ind.Config.Indicators {
		for _, name := range sortedParamKeys(spec.Params) {
			p := spec.Params[name]
			if !p.Tunable() {
				continue
			}
			genes = append(genes, mutGene{
				get:     func() float64 { return p.Value },
				set:     func(v float64) { p.Value = v },
				min:     p.Min,
				max:     p.Max,
				integer: p.Kind == strategy.KindInteger,
			})
		}
	}

	weightMaps := []map[string]float64{ind.TriggerWeights, ind.BearTriggerWeights}
	for _, bar := range ind.Config.Bars {
		weightMaps = append(weightMaps, bar.Weights)
	}
	for _, weights := range weightMaps {
		weights := weights
		for _, name := range sortedKeys(weights) {
			name := name
			genes = append(genes, mutGene{
				get:     func() float64 { return weights[name] },
				set:     func(v float64) { weights[name] = v },
				min:     strategy.WeightMin,
				max:     strategy.WeightMax,
				integer: true,
			})
		}
	}

	for _, bar := range ind.Config.Bars {
		for _, thresholds := range [][]float64{bar.EnterThresholds, bar.ExitThresholds} {
			thresholds := thresholds
			for i := range thresholds {
				i := i
				genes = append(genes, mutGene{
					get: func() float64 { return thresholds[i] },
					set: func(v float64) { thresholds[i] = v },
					min: strategy.ThresholdMin,
					max: strategy.ThresholdMax,
				})
			}
		}
	}

	genes = append(genes, mutGene{
		get: func() float64 { return ind.MonitorThreshold },
		set: func(v float64) { ind.MonitorThreshold = v },
		min: strategy.MonitorThresholdMin,
		max: strategy.MonitorThresholdMax,
	})

	return genes
}

// ============================================================================
// HELPERS
// ============================================================================

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedParamKeys(m map[string]*strategy.Param) []string {
	return sortedKeys(m)
}
