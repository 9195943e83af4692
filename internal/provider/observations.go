package provider

import (
	"fmt"

	"estrainer/internal/body"
)

const (
	KindDistanceToTarget = "distance_to_target"
	KindVelocity         = "velocity"
	KindGoalProximity    = "goal_proximity"
)

// DistanceToTarget writes the planar offset target - position as (x, z).
type DistanceToTarget struct {
	src    body.Source
	target body.Source
}

func newDistanceToTarget(spec ObservationSpec, src body.Source) (Observation, error) {
	target := resolveTarget(spec.Target, spec.TargetPoint)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetUnset, KindDistanceToTarget)
	}
	return &DistanceToTarget{src: src, target: target}, nil
}

func (*DistanceToTarget) Kind() string { return KindDistanceToTarget }
func (*DistanceToTarget) Size() int    { return 2 }

func (o *DistanceToTarget) Write(buf []float64, offset int) int {
	diff := o.target.Position().Sub(o.src.Position())
	buf[offset] = diff.X
	buf[offset+1] = diff.Z
	return offset + 2
}

// Velocity writes the planar velocity (vx, vz).
type Velocity struct {
	src body.Source
}

func newVelocity(_ ObservationSpec, src body.Source) (Observation, error) {
	return &Velocity{src: src}, nil
}

func (*Velocity) Kind() string { return KindVelocity }
func (*Velocity) Size() int    { return 2 }

func (o *Velocity) Write(buf []float64, offset int) int {
	v := o.src.Velocity()
	buf[offset] = v.X
	buf[offset+1] = v.Z
	return offset + 2
}

// GoalProximity writes the planar distance to the target.
type GoalProximity struct {
	src    body.Source
	target body.Source
}

func newGoalProximity(spec ObservationSpec, src body.Source) (Observation, error) {
	target := resolveTarget(spec.Target, spec.TargetPoint)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetUnset, KindGoalProximity)
	}
	return &GoalProximity{src: src, target: target}, nil
}

func (*GoalProximity) Kind() string { return KindGoalProximity }
func (*GoalProximity) Size() int    { return 1 }

func (o *GoalProximity) Write(buf []float64, offset int) int {
	buf[offset] = o.target.Position().Sub(o.src.Position()).PlanarLen()
	return offset + 1
}
