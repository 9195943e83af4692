package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"estrainer/internal/body"
)

var (
	ErrUnknownKind = errors.New("unknown provider kind")
	ErrTargetUnset = errors.New("provider target is not set")
	ErrNoSource    = errors.New("provider requires a body source")
)

// Observation writes a fixed number of scalars into the flat observation
// buffer.
type Observation interface {
	Kind() string
	Size() int
	// Write fills buf[offset:offset+Size()] and returns offset+Size().
	Write(buf []float64, offset int) int
}

// Reward scores one tick of an episode. Instances carry per-episode state and
// belong to exactly one runner.
type Reward interface {
	Kind() string
	Reset()
	Step(dt float64) (reward float64, done bool)
}

// ObservationSpec is the value-type template for an observation provider.
// Binding a spec never mutates it, so one spec can serve every runner.
type ObservationSpec struct {
	Kind        string      `json:"kind" yaml:"kind"`
	TargetPoint *body.Vec3  `json:"target,omitempty" yaml:"target,omitempty"`
	Target      body.Source `json:"-" yaml:"-"`
}

// RewardSpec is the value-type template for a reward provider. Zero numeric
// fields fall back to the per-kind defaults.
type RewardSpec struct {
	Kind        string      `json:"kind" yaml:"kind"`
	TargetPoint *body.Vec3  `json:"target,omitempty" yaml:"target,omitempty"`
	Target      body.Source `json:"-" yaml:"-"`
	Radius      float64     `json:"radius,omitempty" yaml:"radius,omitempty"`
	Invert      bool        `json:"invert,omitempty" yaml:"invert,omitempty"`
	Multiplier  float64     `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	Bonus       float64     `json:"bonus,omitempty" yaml:"bonus,omitempty"`
	Penalty     float64     `json:"penalty,omitempty" yaml:"penalty,omitempty"`
	StepPenalty float64     `json:"step_penalty,omitempty" yaml:"step_penalty,omitempty"`
	CurveRange  float64     `json:"curve_range,omitempty" yaml:"curve_range,omitempty"`
	Value       float64     `json:"value,omitempty" yaml:"value,omitempty"`
}

type observationFactory struct {
	size  int
	build func(spec ObservationSpec, src body.Source) (Observation, error)
}

type rewardFactory func(spec RewardSpec, src body.Source) (Reward, error)

var (
	observationKinds = map[string]observationFactory{
		KindDistanceToTarget: {size: 2, build: newDistanceToTarget},
		KindVelocity:         {size: 2, build: newVelocity},
		KindGoalProximity:    {size: 1, build: newGoalProximity},
	}
	rewardKinds = map[string]rewardFactory{
		KindDistance:    newDistanceReward,
		KindSphereArea:  newSphereAreaReward,
		KindArenaBounds: newArenaBoundsReward,
		KindConstant:    newConstantReward,
		KindShapedGoal:  newShapedGoalReward,
	}
)

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func resolveTarget(src body.Source, point *body.Vec3) body.Source {
	if src != nil {
		return src
	}
	if point != nil {
		return body.Point(*point)
	}
	return nil
}

// BindObservation creates an independent observation instance reading src.
func BindObservation(spec ObservationSpec, src body.Source) (Observation, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	factory, ok := observationKinds[normalizeKind(spec.Kind)]
	if !ok {
		return nil, fmt.Errorf("%w: observation %q", ErrUnknownKind, spec.Kind)
	}
	return factory.build(spec, src)
}

// BindReward creates an independent reward instance reading src.
func BindReward(spec RewardSpec, src body.Source) (Reward, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	factory, ok := rewardKinds[normalizeKind(spec.Kind)]
	if !ok {
		return nil, fmt.Errorf("%w: reward %q", ErrUnknownKind, spec.Kind)
	}
	return factory(spec, src)
}

// BindObservations binds specs in order; the order defines the layout of the
// observation vector and must stay fixed for a training run.
func BindObservations(specs []ObservationSpec, src body.Source) ([]Observation, error) {
	out := make([]Observation, 0, len(specs))
	for i, spec := range specs {
		obs, err := BindObservation(spec, src)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		out = append(out, obs)
	}
	return out, nil
}

func BindRewards(specs []RewardSpec, src body.Source) ([]Reward, error) {
	out := make([]Reward, 0, len(specs))
	for i, spec := range specs {
		r, err := BindReward(spec, src)
		if err != nil {
			return nil, fmt.Errorf("reward %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ObservationSize is the total width of the observation vector for specs.
func ObservationSize(specs []ObservationSpec) (int, error) {
	total := 0
	for i, spec := range specs {
		factory, ok := observationKinds[normalizeKind(spec.Kind)]
		if !ok {
			return 0, fmt.Errorf("observation %d: %w: %q", i, ErrUnknownKind, spec.Kind)
		}
		total += factory.size
	}
	return total, nil
}

func ObservationKinds() []string {
	names := make([]string, 0, len(observationKinds))
	for name := range observationKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func RewardKinds() []string {
	names := make([]string, 0, len(rewardKinds))
	for name := range rewardKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
