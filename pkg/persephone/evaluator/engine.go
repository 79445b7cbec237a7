package evaluator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MetricGroup is one independent family of metrics. Compute must not modify
// the input and must not fail; undefined metrics carry the sentinel.
type MetricGroup interface {
	Section() string
	Compute(in *Input) map[string]float64
}

// Options configures an Engine.
type Options struct {
	MaxHorizon   int
	WarningRatio float64
	DriftRatio   float64
	// Parallel runs the independent metric groups concurrently.
	Parallel bool
}

// DefaultOptions returns the reference thresholds.
func DefaultOptions() Options {
	return Options{
		MaxHorizon:   DefaultMaxHorizon,
		WarningRatio: DefaultWarningRatio,
		DriftRatio:   DefaultDriftRatio,
	}
}

func (o Options) validate() error {
	if o.MaxHorizon <= 0 {
		return fmt.Errorf("%w: max horizon must be positive, got %d", ErrInvalidOptions, o.MaxHorizon)
	}
	if o.WarningRatio <= 0 || o.DriftRatio < o.WarningRatio {
		return fmt.Errorf("%w: need 0 < warning ratio (%g) <= drift ratio (%g)", ErrInvalidOptions, o.WarningRatio, o.DriftRatio)
	}
	return nil
}

// Engine composes the metric groups into an evaluation report. It holds only
// configuration and is safe for concurrent use.
type Engine struct {
	opts   Options
	groups []MetricGroup
}

// NewEngine creates an engine with the five built-in metric groups.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		opts: opts,
		groups: []MetricGroup{
			accuracyGroup{},
			reliabilityGroup{},
			efficiencyGroup{},
			horizonGroup{maxHorizon: opts.MaxHorizon},
			businessGroup{},
		},
	}, nil
}

// Evaluate validates in and builds the report. Precondition violations are
// returned as errors wrapping ErrInvalidInput; numeric degeneracies only
// affect the metric concerned.
func (e *Engine) Evaluate(ctx context.Context, in *Input) (*Report, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sections := make([]map[string]float64, len(e.groups))
	if e.opts.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, group := range e.groups {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sections[i] = group.Compute(in)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, group := range e.groups {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sections[i] = group.Compute(in)
		}
	}

	report := &Report{}
	for i, group := range e.groups {
		switch group.Section() {
		case SectionAccuracy:
			report.Accuracy = sections[i]
		case SectionReliability:
			report.Reliability = sections[i]
		case SectionEfficiency:
			report.Efficiency = sections[i]
		case SectionHorizon:
			report.Horizon = sections[i]
		case SectionBusiness:
			report.Business = sections[i]
		}
	}

	// Drift is the only group that depends on another group's output.
	status := ClassifyDrift(report.Accuracy[KeyMAPE], in.BaselineMAPE, e.opts.WarningRatio, e.opts.DriftRatio)
	report.Drift = map[string]string{DriftStatusKey: string(status)}

	return report, nil
}

// Evaluate runs a default engine over in.
func Evaluate(ctx context.Context, in *Input) (*Report, error) {
	e, err := NewEngine(DefaultOptions())
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, in)
}

type accuracyGroup struct{}

func (accuracyGroup) Section() string { return SectionAccuracy }
func (accuracyGroup) Compute(in *Input) map[string]float64 {
	return ComputeAccuracy(in.Actual, in.Predicted)
}

type reliabilityGroup struct{}

func (reliabilityGroup) Section() string { return SectionReliability }
func (reliabilityGroup) Compute(in *Input) map[string]float64 {
	return ComputeReliability(in.Actual, in.Predicted)
}

type efficiencyGroup struct{}

func (efficiencyGroup) Section() string { return SectionEfficiency }
func (efficiencyGroup) Compute(in *Input) map[string]float64 {
	return ComputeEfficiency(in.Runtime)
}

type horizonGroup struct {
	maxHorizon int
}

func (horizonGroup) Section() string { return SectionHorizon }
func (g horizonGroup) Compute(in *Input) map[string]float64 {
	return MAEPerHorizon(in.Actual, in.Predicted, in.Horizons, g.maxHorizon)
}

type businessGroup struct{}

func (businessGroup) Section() string { return SectionBusiness }
func (businessGroup) Compute(in *Input) map[string]float64 {
	return ComputeBusiness(in.Actual, in.Predicted, in.PeakFlags, in.Weights)
}
