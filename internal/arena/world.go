// Package arena is a small kinematic stand-in for the physics world: bodies
// move on the XZ plane at a fixed speed toward their desired direction.
package arena

import (
	"fmt"
	"math"
	"math/rand"

	"estrainer/internal/body"
)

const (
	DefaultSpeed      = 5.0
	DefaultRingRadius = 5.0
)

// Body is a point mass owned by a World. It is driven by one runner at a
// time; Integrate must not overlap with that runner's Step.
type Body struct {
	id     int
	world  *World
	pos    body.Vec3
	vel    body.Vec3
	dir    body.Vec3
	active bool
}

func (b *Body) ID() int                     { return b.id }
func (b *Body) Position() body.Vec3         { return b.pos }
func (b *Body) Velocity() body.Vec3         { return b.vel }
func (b *Body) Active() bool                { return b.active }
func (b *Body) DesiredDirection() body.Vec3 { return b.dir }

func (b *Body) SetDesiredDirection(d body.Vec3) {
	d.Y = 0
	b.dir = d.Normalized()
}

// Despawn freezes the body in place.
func (b *Body) Despawn() {
	b.active = false
	b.vel = body.Vec3{}
	b.dir = body.Vec3{}
}

func (b *Body) Respawn() {
	b.active = true
}

// Teleport moves the body and clears its velocity.
func (b *Body) Teleport(p body.Vec3) {
	b.pos = p
	b.vel = body.Vec3{}
}

type World struct {
	speed      float64
	ringRadius float64
	bodies     []*Body
}

func NewWorld(n int, speed float64) (*World, error) {
	if n < 0 {
		return nil, fmt.Errorf("body count must be >= 0")
	}
	if speed < 0 {
		return nil, fmt.Errorf("speed must be >= 0")
	}
	if speed == 0 {
		speed = DefaultSpeed
	}
	w := &World{speed: speed, ringRadius: DefaultRingRadius}
	w.bodies = make([]*Body, n)
	for i := range w.bodies {
		w.bodies[i] = &Body{id: i, world: w}
	}
	return w, nil
}

func (w *World) Len() int         { return len(w.bodies) }
func (w *World) Body(i int) *Body { return w.bodies[i] }
func (w *World) Bodies() []*Body  { return append([]*Body(nil), w.bodies...) }
func (w *World) Speed() float64   { return w.speed }

// SetRingRadius changes the radius used by Place.
func (w *World) SetRingRadius(r float64) {
	if r > 0 {
		w.ringRadius = r
	}
}

// Integrate advances every active body by dt seconds.
func (w *World) Integrate(dt float64) {
	for _, b := range w.bodies {
		if !b.active {
			continue
		}
		b.vel = b.dir.Scale(w.speed)
		b.pos = b.pos.Add(b.vel.Scale(dt))
	}
}

// Place puts member index of a population on an evenly spaced ring around
// the origin. Bodies from other worlds are ignored.
func (w *World) Place(b body.Body, index, population int) {
	ab, ok := b.(*Body)
	if !ok || ab.world != w || population <= 0 {
		return
	}
	ab.Teleport(RingPosition(index, population, w.ringRadius))
}

// RingPosition is slot index of n evenly spaced points on a circle.
func RingPosition(index, n int, radius float64) body.Vec3 {
	angle := float64(index) * 2 * math.Pi / float64(n)
	return body.Vec3{X: math.Cos(angle) * radius, Z: math.Sin(angle) * radius}
}

// RandomSpawn draws a point uniformly from the disc of the given radius.
func RandomSpawn(rng *rand.Rand, radius float64) body.Vec3 {
	r := radius * math.Sqrt(rng.Float64())
	angle := rng.Float64() * 2 * math.Pi
	return body.Vec3{X: math.Cos(angle) * r, Z: math.Sin(angle) * r}
}
