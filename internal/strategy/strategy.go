// Package strategy defines the trading-strategy genome that the optimizer
// searches over: indicator parameter specs, bar-level weight maps and
// thresholds, and monitor-level trigger weights.
package strategy

import (
	"fmt"

	"github.com/google/uuid"
)

// ============================================================================
// PARAMETER KINDS
// ============================================================================

// ParamKind tags how a parameter may be tuned during optimization.
type ParamKind int

const (
	// KindInteger parameters take whole values within their declared range.
	KindInteger ParamKind = iota
	// KindFloat parameters take continuous values within their declared range.
	KindFloat
	// KindSkip parameters are carried through the genome but never tuned.
	KindSkip
)

// String returns the canonical textual form of the kind.
func (k ParamKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindSkip:
		return "skip"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler for JSON export.
func (k ParamKind) MarshalText() ([]byte, error) {
	switch k {
	case KindInteger, KindFloat, KindSkip:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("unknown parameter kind %d", int(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON import.
func (k *ParamKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "integer", "int":
		*k = KindInteger
	case "float":
		*k = KindFloat
	case "skip":
		*k = KindSkip
	default:
		return fmt.Errorf("unknown parameter kind %q", string(text))
	}
	return nil
}

// MarshalYAML renders the kind as its textual form.
func (k ParamKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML parses the textual form.
func (k *ParamKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return k.UnmarshalText([]byte(s))
}

// ============================================================================
// FIXED GENE BANDS
// ============================================================================

// Bands for genes that carry no per-gene declared range. Trigger and bar
// weights are integers in [WeightMin, WeightMax]; bar thresholds and the
// monitor threshold are floats within their bands.
const (
	WeightMin = 1.0
	WeightMax = 100.0

	ThresholdMin = 0.0
	ThresholdMax = 1.0

	MonitorThresholdMin = 0.6
	MonitorThresholdMax = 0.9
)

// WeightWidth is the declared range width of weight genes.
func WeightWidth() float64 { return WeightMax - WeightMin }

// ThresholdWidth is the declared range width of bar threshold genes.
func ThresholdWidth() float64 { return ThresholdMax - ThresholdMin }

// MonitorThresholdWidth is the declared range width of the monitor threshold.
func MonitorThresholdWidth() float64 { return MonitorThresholdMax - MonitorThresholdMin }

// ============================================================================
// GENOME STRUCTURES
// ============================================================================

// Param is one tunable indicator parameter with its declared range.
type Param struct {
	Value float64   `json:"value" yaml:"value"`
	Kind  ParamKind `json:"kind" yaml:"kind"`
	Min   float64   `json:"min" yaml:"min"`
	Max   float64   `json:"max" yaml:"max"`
}

// Width returns the declared range width.
func (p *Param) Width() float64 { return p.Max - p.Min }

// Tunable reports whether the optimizer may modify this parameter.
func (p *Param) Tunable() bool { return p.Kind != KindSkip }

// Clone returns an independent copy.
func (p *Param) Clone() *Param {
	c := *p
	return &c
}

// IndicatorSpec describes one indicator instance: its name, the timeframe it
// runs on, and its parameter set. The indicator math itself lives outside the
// optimizer; only the parameters are subject to search.
type IndicatorSpec struct {
	Name      string            `json:"name" yaml:"name"`
	Timeframe string            `json:"timeframe" yaml:"timeframe"`
	Params    map[string]*Param `json:"params" yaml:"params"`
}

// QualifiedName returns the indicator name with its timeframe suffix, e.g.
// "SMA_5m". Tracker parameter names are built from this.
func (s *IndicatorSpec) QualifiedName() string {
	if s.Timeframe == "" {
		return s.Name
	}
	return s.Name + "_" + s.Timeframe
}

// Clone returns a deep copy.
func (s *IndicatorSpec) Clone() *IndicatorSpec {
	c := &IndicatorSpec{
		Name:      s.Name,
		Timeframe: s.Timeframe,
		Params:    make(map[string]*Param, len(s.Params)),
	}
	for name, p := range s.Params {
		c.Params[name] = p.Clone()
	}
	return c
}

// Bar is a named grouping of indicator weights with entry and exit threshold
// lists. A bar's weighted indicator score is compared against its thresholds
// to produce enter/exit votes.
type Bar struct {
	Name            string             `json:"name" yaml:"name"`
	Weights         map[string]float64 `json:"weights" yaml:"weights"`
	EnterThresholds []float64          `json:"enter_thresholds" yaml:"enter_thresholds"`
	ExitThresholds  []float64          `json:"exit_thresholds" yaml:"exit_thresholds"`
}

// Clone returns a deep copy.
func (b *Bar) Clone() *Bar {
	c := &Bar{
		Name:            b.Name,
		Weights:         make(map[string]float64, len(b.Weights)),
		EnterThresholds: append([]float64(nil), b.EnterThresholds...),
		ExitThresholds:  append([]float64(nil), b.ExitThresholds...),
	}
	for name, w := range b.Weights {
		c.Weights[name] = w
	}
	return c
}

// Configuration is the full strategy configuration under optimization.
type Configuration struct {
	SchemaVersion string           `json:"schema_version" yaml:"schema_version"`
	Indicators    []*IndicatorSpec `json:"indicators" yaml:"indicators"`
	Bars          []*Bar           `json:"bars" yaml:"bars"`
}

// Clone returns a deep copy.
func (c *Configuration) Clone() *Configuration {
	clone := &Configuration{
		SchemaVersion: c.SchemaVersion,
		Indicators:    make([]*IndicatorSpec, len(c.Indicators)),
		Bars:          make([]*Bar, len(c.Bars)),
	}
	for i, spec := range c.Indicators {
		clone.Indicators[i] = spec.Clone()
	}
	for i, bar := range c.Bars {
		clone.Bars[i] = bar.Clone()
	}
	return clone
}

// Validate checks structural invariants of a configuration.
func (c *Configuration) Validate() error {
	if len(c.Indicators) == 0 {
		return fmt.Errorf("configuration requires at least one indicator")
	}
	if len(c.Bars) == 0 {
		return fmt.Errorf("configuration requires at least one bar")
	}
	seen := make(map[string]bool, len(c.Indicators))
	for _, spec := range c.Indicators {
		if spec.Name == "" {
			return fmt.Errorf("indicator name is required")
		}
		qn := spec.QualifiedName()
		if seen[qn] {
			return fmt.Errorf("duplicate indicator %s", qn)
		}
		seen[qn] = true
		for name, p := range spec.Params {
			if p == nil {
				return fmt.Errorf("indicator %s parameter %s is nil", qn, name)
			}
			if p.Tunable() && p.Max < p.Min {
				return fmt.Errorf("indicator %s parameter %s has inverted range [%v,%v]", qn, name, p.Min, p.Max)
			}
		}
	}
	for _, bar := range c.Bars {
		if bar.Name == "" {
			return fmt.Errorf("bar name is required")
		}
		for ind := range bar.Weights {
			if !seen[ind] {
				return fmt.Errorf("bar %s references unknown indicator %s", bar.Name, ind)
			}
		}
		if len(bar.EnterThresholds) == 0 {
			return fmt.Errorf("bar %s requires at least one enter threshold", bar.Name)
		}
	}
	return nil
}

// ============================================================================
// INDIVIDUAL
// ============================================================================

// Individual is one candidate strategy under optimization. It exclusively
// owns its configuration: individuals are deep-cloned on creation, crossover
// and mutation, and are never aliased across population slots.
type Individual struct {
	ID                 uuid.UUID          `json:"id" yaml:"id"`
	Config             *Configuration     `json:"config" yaml:"config"`
	TriggerWeights     map[string]float64 `json:"trigger_weights" yaml:"trigger_weights"`
	BearTriggerWeights map[string]float64 `json:"bear_trigger_weights" yaml:"bear_trigger_weights"`
	MonitorThreshold   float64            `json:"monitor_threshold" yaml:"monitor_threshold"`

	// Provenance is an audit trail of operator applications.
	Mutations  int      `json:"mutations" yaml:"mutations"`
	Provenance []string `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// NewIndividual wraps a configuration into a fresh individual with default
// monitor-level genes derived from the configuration's bars.
func NewIndividual(cfg *Configuration) *Individual {
	ind := &Individual{
		ID:                 uuid.New(),
		Config:             cfg,
		TriggerWeights:     make(map[string]float64, len(cfg.Bars)),
		BearTriggerWeights: make(map[string]float64, len(cfg.Bars)),
		MonitorThreshold:   MonitorThresholdMin,
	}
	for _, bar := range cfg.Bars {
		ind.TriggerWeights[bar.Name] = WeightMin
		ind.BearTriggerWeights[bar.Name] = WeightMin
	}
	return ind
}

// Clone returns a deep copy with a fresh identity. Fitness bookkeeping tracks
// individuals by ID, so a clone is a distinct individual from the start.
func (ind *Individual) Clone() *Individual {
	c := &Individual{
		ID:                 uuid.New(),
		Config:             ind.Config.Clone(),
		TriggerWeights:     make(map[string]float64, len(ind.TriggerWeights)),
		BearTriggerWeights: make(map[string]float64, len(ind.BearTriggerWeights)),
		MonitorThreshold:   ind.MonitorThreshold,
		Mutations:          ind.Mutations,
		Provenance:         append([]string(nil), ind.Provenance...),
	}
	for name, w := range ind.TriggerWeights {
		c.TriggerWeights[name] = w
	}
	for name, w := range ind.BearTriggerWeights {
		c.BearTriggerWeights[name] = w
	}
	return c
}

// Validate checks the individual and its configuration.
func (ind *Individual) Validate() error {
	if ind.Config == nil {
		return fmt.Errorf("individual has no configuration")
	}
	if err := ind.Config.Validate(); err != nil {
		return err
	}
	if ind.MonitorThreshold < MonitorThresholdMin || ind.MonitorThreshold > MonitorThresholdMax {
		return fmt.Errorf("monitor threshold %v outside [%v,%v]",
			ind.MonitorThreshold, MonitorThresholdMin, MonitorThresholdMax)
	}
	return nil
}
