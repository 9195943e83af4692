package pool

import (
	"errors"
	"testing"

	"estrainer/internal/body"
	"estrainer/internal/episode"
)

type stillBody struct {
	quiescent bool
}

func (*stillBody) Position() body.Vec3           { return body.Vec3{} }
func (*stillBody) Velocity() body.Vec3           { return body.Vec3{} }
func (*stillBody) SetDesiredDirection(body.Vec3) {}
func (b *stillBody) Despawn()                    { b.quiescent = true }
func (b *stillBody) Respawn()                    { b.quiescent = false }

func newPool(n int) (*Pool, []*stillBody) {
	runners := make([]*episode.Runner, n)
	bodies := make([]*stillBody, n)
	for i := range runners {
		bodies[i] = &stillBody{}
		runners[i] = episode.NewRunner(i, bodies[i])
	}
	return New(runners), bodies
}

func TestNewRecyclesEveryRunner(t *testing.T) {
	p, bodies := newPool(3)
	if p.Capacity() != 3 || p.Available() != 3 {
		t.Fatalf("capacity=%d available=%d", p.Capacity(), p.Available())
	}
	for i, b := range bodies {
		if !b.quiescent {
			t.Fatalf("body %d not quiesced on pool creation", i)
		}
	}
	for _, s := range p.Snapshot() {
		if s != episode.StateRecycled {
			t.Fatalf("expected recycled state, got %s", s)
		}
	}
}

func TestCheckoutExhaustion(t *testing.T) {
	p, _ := newPool(1)
	r, err := p.Checkout()
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := p.Checkout(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if err := p.Return(r); err != nil {
		t.Fatalf("return: %v", err)
	}
	if p.Available() != 1 {
		t.Fatalf("expected runner back in queue, available=%d", p.Available())
	}
}

func TestCheckoutNIsAllOrNothing(t *testing.T) {
	p, _ := newPool(3)
	if _, err := p.CheckoutN(4); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if p.Available() != 3 {
		t.Fatalf("failed CheckoutN consumed runners: available=%d", p.Available())
	}
	runners, err := p.CheckoutN(3)
	if err != nil {
		t.Fatalf("checkout 3: %v", err)
	}
	seen := map[int]bool{}
	for _, r := range runners {
		if seen[r.ID()] {
			t.Fatalf("runner %d handed out twice", r.ID())
		}
		seen[r.ID()] = true
	}
	if p.Available() != 0 {
		t.Fatalf("expected empty queue, available=%d", p.Available())
	}
	if err := p.ReturnAll(runners); err != nil {
		t.Fatalf("return all: %v", err)
	}
	if p.Available() != 3 {
		t.Fatalf("expected full queue, available=%d", p.Available())
	}
}

func TestReturnQuiescesAndRejectsDoubleReturn(t *testing.T) {
	p, bodies := newPool(2)
	r, err := p.Checkout()
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	r.Respawn()
	if bodies[r.ID()].quiescent {
		t.Fatal("respawn did not wake the body")
	}
	if err := p.Return(r); err != nil {
		t.Fatalf("return: %v", err)
	}
	if !bodies[r.ID()].quiescent || r.State() != episode.StateRecycled {
		t.Fatal("returned runner not quiesced")
	}
	if err := p.Return(r); !errors.Is(err, ErrNotCheckedOut) {
		t.Fatalf("expected ErrNotCheckedOut, got %v", err)
	}
	stranger := episode.NewRunner(99, &stillBody{})
	if err := p.Return(stranger); !errors.Is(err, ErrForeignRunner) {
		t.Fatalf("expected ErrForeignRunner, got %v", err)
	}
}
