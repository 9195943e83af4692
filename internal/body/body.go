package body

import "math"

// Vec3 is a world-space vector. The trainer only steers in the XZ plane;
// Y is carried through so sources can report full positions.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vec3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// PlanarLen ignores the vertical component.
func (v Vec3) PlanarLen() float64 {
	return math.Hypot(v.X, v.Z)
}

// Normalized returns the unit vector, or the zero vector when v is too short
// to carry a direction.
func (v Vec3) Normalized() Vec3 {
	l := v.Len()
	if l < 1e-9 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Source exposes read-only body state to observation and reward providers.
type Source interface {
	Position() Vec3
	Velocity() Vec3
}

// Mover receives the desired planar heading each tick. Whoever implements it
// owns forces, rotation and collision.
type Mover interface {
	SetDesiredDirection(dir Vec3)
}

// Quiescer toggles the physical presence of a body (collision, rendering,
// velocity) between episodes.
type Quiescer interface {
	Despawn()
	Respawn()
}

// Body is everything an episode runner needs from the simulation.
type Body interface {
	Source
	Mover
	Quiescer
}

// Planar builds the normalized XZ direction for a raw two-component action.
func Planar(x, z float64) Vec3 {
	return Vec3{X: x, Z: z}.Normalized()
}

// Point is a static Source, used for fixed goals and arena centres.
type Point Vec3

func (p Point) Position() Vec3 { return Vec3(p) }
func (Point) Velocity() Vec3   { return Vec3{} }
