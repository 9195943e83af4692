package provider

import (
	"fmt"

	"estrainer/internal/body"
)

const (
	KindDistance    = "distance"
	KindSphereArea  = "sphere_area"
	KindArenaBounds = "arena_bounds"
	KindConstant    = "constant"
	KindShapedGoal  = "shaped_goal"
)

const (
	defaultDistanceRadius   = 0.5
	defaultDistanceBonus    = 50.0
	defaultSphereRadius     = 0.5
	defaultArenaRadius      = 10.0
	defaultArenaPenalty     = -1.0
	defaultGoalRadius       = 1.0
	defaultGoalBonus        = 2.0
	defaultGoalStepPenalty  = -0.005
	defaultGoalCurveRange   = 10.0
	defaultSphereMultiplier = 1.0
)

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func sign(invert bool) float64 {
	if invert {
		return -1
	}
	return 1
}

// DistanceReward pays -distance·dt every tick and a bonus once the body is
// inside radius, which also ends the episode.
type DistanceReward struct {
	src    body.Source
	target body.Source
	radius float64
	bonus  float64
	inv    float64
	done   bool
}

func newDistanceReward(spec RewardSpec, src body.Source) (Reward, error) {
	target := resolveTarget(spec.Target, spec.TargetPoint)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetUnset, KindDistance)
	}
	return &DistanceReward{
		src:    src,
		target: target,
		radius: orDefault(spec.Radius, defaultDistanceRadius),
		bonus:  orDefault(spec.Bonus, defaultDistanceBonus),
		inv:    sign(spec.Invert),
	}, nil
}

func (*DistanceReward) Kind() string { return KindDistance }
func (r *DistanceReward) Reset()     { r.done = false }

func (r *DistanceReward) Step(dt float64) (float64, bool) {
	d := r.src.Position().Sub(r.target.Position()).Len()
	reward := r.inv * -d * dt
	if d < r.radius {
		reward += r.bonus
		r.done = true
	}
	return reward, r.done
}

// SphereAreaReward pays multiplier (signed by invert) on entering the sphere
// and ends the episode.
type SphereAreaReward struct {
	src        body.Source
	target     body.Source
	radius     float64
	multiplier float64
	done       bool
}

func newSphereAreaReward(spec RewardSpec, src body.Source) (Reward, error) {
	target := resolveTarget(spec.Target, spec.TargetPoint)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetUnset, KindSphereArea)
	}
	return &SphereAreaReward{
		src:        src,
		target:     target,
		radius:     orDefault(spec.Radius, defaultSphereRadius),
		multiplier: orDefault(spec.Multiplier, defaultSphereMultiplier) * sign(spec.Invert),
	}, nil
}

func (*SphereAreaReward) Kind() string { return KindSphereArea }
func (r *SphereAreaReward) Reset()     { r.done = false }

func (r *SphereAreaReward) Step(float64) (float64, bool) {
	if r.src.Position().Sub(r.target.Position()).Len() < r.radius {
		r.done = true
		return r.multiplier, true
	}
	return 0, r.done
}

// ArenaBoundsReward penalizes leaving the arena disc and ends the episode.
// The centre defaults to the origin.
type ArenaBoundsReward struct {
	src     body.Source
	center  body.Source
	radius  float64
	penalty float64
	done    bool
}

func newArenaBoundsReward(spec RewardSpec, src body.Source) (Reward, error) {
	center := resolveTarget(spec.Target, spec.TargetPoint)
	if center == nil {
		center = body.Point{}
	}
	return &ArenaBoundsReward{
		src:     src,
		center:  center,
		radius:  orDefault(spec.Radius, defaultArenaRadius),
		penalty: orDefault(spec.Penalty, defaultArenaPenalty),
	}, nil
}

func (*ArenaBoundsReward) Kind() string { return KindArenaBounds }
func (r *ArenaBoundsReward) Reset()     { r.done = false }

func (r *ArenaBoundsReward) Step(float64) (float64, bool) {
	if r.src.Position().Sub(r.center.Position()).PlanarLen() > r.radius {
		r.done = true
		return r.penalty, true
	}
	return 0, r.done
}

// ConstantReward pays a fixed amount every tick and never terminates.
type ConstantReward struct {
	value float64
}

func newConstantReward(spec RewardSpec, _ body.Source) (Reward, error) {
	return &ConstantReward{value: spec.Value}, nil
}

func (*ConstantReward) Kind() string                   { return KindConstant }
func (*ConstantReward) Reset()                         {}
func (r *ConstantReward) Step(float64) (float64, bool) { return r.value, false }

// ShapedGoalReward is a linear distance curve from 1 at the goal to 0 at
// CurveRange, plus a per-tick step penalty and a bonus inside the goal radius.
type ShapedGoalReward struct {
	src         body.Source
	target      body.Source
	radius      float64
	bonus       float64
	stepPenalty float64
	curveRange  float64
	done        bool
}

func newShapedGoalReward(spec RewardSpec, src body.Source) (Reward, error) {
	target := resolveTarget(spec.Target, spec.TargetPoint)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetUnset, KindShapedGoal)
	}
	return &ShapedGoalReward{
		src:         src,
		target:      target,
		radius:      orDefault(spec.Radius, defaultGoalRadius),
		bonus:       orDefault(spec.Bonus, defaultGoalBonus),
		stepPenalty: orDefault(spec.StepPenalty, defaultGoalStepPenalty),
		curveRange:  orDefault(spec.CurveRange, defaultGoalCurveRange),
	}, nil
}

func (*ShapedGoalReward) Kind() string { return KindShapedGoal }
func (r *ShapedGoalReward) Reset()     { r.done = false }

func (r *ShapedGoalReward) Step(float64) (float64, bool) {
	d := r.src.Position().Sub(r.target.Position()).Len()
	curve := 1 - d/r.curveRange
	if curve < 0 {
		curve = 0
	}
	reward := curve + r.stepPenalty
	if d < r.radius {
		reward += r.bonus
		r.done = true
	}
	return reward, r.done
}
