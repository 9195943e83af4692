package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"estrainer/internal/episode"
)

var (
	ErrPoolExhausted = errors.New("runner pool exhausted")
	ErrNotCheckedOut = errors.New("runner is not checked out")
	ErrForeignRunner = errors.New("runner does not belong to this pool")
)

// Pool is a fixed set of runners created up front. Checked-in runners are
// always quiesced.
type Pool struct {
	mu       sync.Mutex
	members  map[*episode.Runner]bool // true while checked out
	queue    []*episode.Runner
	capacity int
}

// New takes ownership of runners and recycles each of them.
func New(runners []*episode.Runner) *Pool {
	p := &Pool{
		members:  make(map[*episode.Runner]bool, len(runners)),
		queue:    make([]*episode.Runner, 0, len(runners)),
		capacity: len(runners),
	}
	for _, r := range runners {
		if r == nil {
			continue
		}
		if _, dup := p.members[r]; dup {
			continue
		}
		r.Recycle()
		p.members[r] = false
		p.queue = append(p.queue, r)
	}
	p.capacity = len(p.queue)
	return p
}

func (p *Pool) Capacity() int {
	return p.capacity
}

func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) Checkout() (*episode.Runner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, ErrPoolExhausted
	}
	return p.take(), nil
}

// CheckoutN hands out n runners or none at all.
func (p *Pool) CheckoutN(n int) ([]*episode.Runner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || n > len(p.queue) {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrPoolExhausted, n, len(p.queue))
	}
	out := make([]*episode.Runner, n)
	for i := range out {
		out[i] = p.take()
	}
	return out, nil
}

func (p *Pool) take() *episode.Runner {
	r := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.members[r] = true
	return r
}

// Return quiesces r and puts it back in the queue.
func (p *Pool) Return(r *episode.Runner) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, ok := p.members[r]
	if !ok {
		return ErrForeignRunner
	}
	if !out {
		return fmt.Errorf("%w: runner %d", ErrNotCheckedOut, r.ID())
	}
	r.Recycle()
	p.members[r] = false
	p.queue = append(p.queue, r)
	return nil
}

// ReturnAll returns every runner, continuing past failures.
func (p *Pool) ReturnAll(runners []*episode.Runner) error {
	var errs []error
	for _, r := range runners {
		if err := p.Return(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot reports the state of every pooled runner, checked out or not,
// ordered by runner id.
func (p *Pool) Snapshot() []episode.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	byID := make([]*episode.Runner, 0, len(p.members))
	for r := range p.members {
		byID = append(byID, r)
	}
	sort.Slice(byID, func(i, j int) bool { return byID[i].ID() < byID[j].ID() })
	states := make([]episode.State, len(byID))
	for i, r := range byID {
		states[i] = r.State()
	}
	return states
}
