package arena

import (
	"math"
	"math/rand"
	"testing"

	"estrainer/internal/body"
)

func TestIntegrateMovesActiveBodiesAtFixedSpeed(t *testing.T) {
	w, err := NewWorld(2, 0)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	moving, frozen := w.Body(0), w.Body(1)
	moving.Respawn()
	moving.SetDesiredDirection(body.Vec3{X: 3, Y: 7, Z: 4})
	frozen.SetDesiredDirection(body.Vec3{X: 1})

	w.Integrate(0.1)
	want := body.Vec3{X: 0.3, Z: 0.4}
	if moving.Position().Sub(want).Len() > 1e-12 {
		t.Fatalf("unexpected position %+v", moving.Position())
	}
	if math.Abs(moving.Velocity().Len()-DefaultSpeed) > 1e-12 {
		t.Fatalf("unexpected speed %f", moving.Velocity().Len())
	}
	if frozen.Position() != (body.Vec3{}) {
		t.Fatalf("inactive body moved to %+v", frozen.Position())
	}

	moving.Despawn()
	w.Integrate(0.1)
	if moving.Position().Sub(want).Len() > 1e-12 || moving.Velocity() != (body.Vec3{}) {
		t.Fatal("despawned body kept moving")
	}
}

func TestPlaceUsesRing(t *testing.T) {
	w, _ := NewWorld(4, 0)
	for i := 0; i < 4; i++ {
		w.Place(w.Body(i), i, 4)
	}
	if got := w.Body(0).Position(); math.Abs(got.X-DefaultRingRadius) > 1e-12 || math.Abs(got.Z) > 1e-12 {
		t.Fatalf("member 0 at %+v", got)
	}
	if got := w.Body(1).Position(); math.Abs(got.X) > 1e-12 || math.Abs(got.Z-DefaultRingRadius) > 1e-12 {
		t.Fatalf("member 1 at %+v", got)
	}
	for i, b := range w.Bodies() {
		if math.Abs(b.Position().PlanarLen()-DefaultRingRadius) > 1e-12 {
			t.Fatalf("body %d off the ring", i)
		}
	}

	other, _ := NewWorld(1, 0)
	w.Place(other.Body(0), 1, 4)
	if other.Body(0).Position() != (body.Vec3{}) {
		t.Fatal("placed a body from another world")
	}
}

func TestRandomSpawnStaysInsideRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		if p := RandomSpawn(rng, 8); p.PlanarLen() > 8 || p.Y != 0 {
			t.Fatalf("spawn %d outside disc: %+v", i, p)
		}
	}
}

func TestNewWorldValidation(t *testing.T) {
	if _, err := NewWorld(-1, 0); err == nil {
		t.Fatal("expected error for negative body count")
	}
	if _, err := NewWorld(1, -2); err == nil {
		t.Fatal("expected error for negative speed")
	}
	w, _ := NewWorld(0, 2)
	if w.Speed() != 2 || w.Len() != 0 {
		t.Fatalf("unexpected world: speed=%f len=%d", w.Speed(), w.Len())
	}
}
