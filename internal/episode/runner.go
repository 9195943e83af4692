package episode

import (
	"errors"
	"fmt"

	"estrainer/internal/body"
	"estrainer/internal/policy"
	"estrainer/internal/provider"
)

// DefaultMaxEpisodeTime is the simulated-seconds budget of one episode.
const DefaultMaxEpisodeTime = 3.0

var (
	ErrNotConfigured  = errors.New("runner is not configured")
	ErrNilPolicy      = errors.New("policy is required")
	ErrObservationDim = errors.New("observation size does not match policy input")
	ErrActionDim      = errors.New("policy must emit at least two action components")
)

type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateRunning
	StateDone
	StateRecycled
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateRecycled:
		return "recycled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	// MaxEpisodeTime ends the episode once elapsed time exceeds it.
	MaxEpisodeTime float64 `json:"max_episode_time" yaml:"max_episode_time"`
}

func (o Options) normalized() Options {
	if o.MaxEpisodeTime <= 0 {
		o.MaxEpisodeTime = DefaultMaxEpisodeTime
	}
	return o
}

// Runner is one reusable agent slot: a body, the policy bound to it, and the
// providers reading that body. A runner is driven by a single goroutine at a
// time.
type Runner struct {
	id   int
	body body.Body

	policy       policy.Policy
	observations []provider.Observation
	rewards      []provider.Reward
	obs          []float64
	act          []float64
	opts         Options

	cumulative float64
	elapsed    float64
	done       bool
	despawned  bool
	state      State
}

func NewRunner(id int, b body.Body) *Runner {
	return &Runner{id: id, body: b, done: true}
}

func (r *Runner) ID() int                   { return r.id }
func (r *Runner) Body() body.Body           { return r.body }
func (r *Runner) State() State              { return r.state }
func (r *Runner) Done() bool                { return r.done }
func (r *Runner) CumulativeReward() float64 { return r.cumulative }
func (r *Runner) Elapsed() float64          { return r.elapsed }
func (r *Runner) Despawned() bool           { return r.despawned }

// Policy is the runner's own policy instance, nil before Configure.
func (r *Runner) Policy() policy.Policy { return r.policy }

// LastAction returns a copy of the raw action from the latest tick.
func (r *Runner) LastAction() []float64 {
	return append([]float64(nil), r.act...)
}

// Configure binds a private copy of template and fresh provider instances.
// Buffers are reallocated only when the policy dimensions change.
func (r *Runner) Configure(template policy.Policy, observations []provider.ObservationSpec, rewards []provider.RewardSpec, opts Options) error {
	if template == nil {
		return ErrNilPolicy
	}
	if template.OutputDim() < 2 {
		return fmt.Errorf("%w: got %d", ErrActionDim, template.OutputDim())
	}
	size, err := provider.ObservationSize(observations)
	if err != nil {
		return err
	}
	if size != template.InputDim() {
		return fmt.Errorf("%w: observations=%d policy=%d", ErrObservationDim, size, template.InputDim())
	}
	boundObs, err := provider.BindObservations(observations, r.body)
	if err != nil {
		return err
	}
	boundRewards, err := provider.BindRewards(rewards, r.body)
	if err != nil {
		return err
	}

	if !samePolicyShape(r.policy, template) {
		r.policy = template.Clone()
	}
	if len(r.obs) != template.InputDim() {
		r.obs = make([]float64, template.InputDim())
	}
	if len(r.act) != template.OutputDim() {
		r.act = make([]float64, template.OutputDim())
	}
	r.observations = boundObs
	r.rewards = boundRewards
	r.opts = opts.normalized()
	r.done = true
	r.state = StateConfigured
	return nil
}

func samePolicyShape(a, b policy.Policy) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Kind() == b.Kind() &&
		a.InputDim() == b.InputDim() &&
		a.OutputDim() == b.OutputDim() &&
		a.ParamCount() == b.ParamCount()
}

// PrepareForRun binds theta and resets all per-episode state.
func (r *Runner) PrepareForRun(theta []float64) error {
	if r.policy == nil {
		return ErrNotConfigured
	}
	if err := r.policy.SetParams(theta); err != nil {
		return fmt.Errorf("runner %d: %w", r.id, err)
	}
	for _, rw := range r.rewards {
		rw.Reset()
	}
	for i := range r.act {
		r.act[i] = 0
	}
	r.cumulative = 0
	r.elapsed = 0
	r.done = false
	r.Respawn()
	r.state = StateRunning
	return nil
}

// Step advances the episode by one tick of dt seconds. It is a no-op unless
// the runner is running.
func (r *Runner) Step(dt float64) {
	if r.done || r.state != StateRunning {
		return
	}

	offset := 0
	for _, o := range r.observations {
		offset = o.Write(r.obs, offset)
	}
	r.policy.Act(r.obs, r.act)
	r.body.SetDesiredDirection(body.Planar(r.act[0], r.act[1]))

	finished := false
	for _, rw := range r.rewards {
		reward, done := rw.Step(dt)
		r.cumulative += reward
		if done {
			finished = true
		}
	}
	r.elapsed += dt
	if r.elapsed > r.opts.MaxEpisodeTime {
		finished = true
	}
	if finished {
		r.finish()
	}
}

// MarkDone terminates a running episode early, keeping the reward so far.
func (r *Runner) MarkDone() {
	if r.state == StateRunning {
		r.finish()
	}
}

func (r *Runner) finish() {
	r.done = true
	r.state = StateDone
	r.Despawn()
}

// Despawn quiesces the body. Repeated calls are ignored.
func (r *Runner) Despawn() {
	if r.despawned {
		return
	}
	r.despawned = true
	r.body.SetDesiredDirection(body.Vec3{})
	r.body.Despawn()
}

// Respawn re-enables a quiesced body. It pairs with exactly one prior Despawn.
func (r *Runner) Respawn() {
	if !r.despawned {
		return
	}
	r.despawned = false
	r.body.Respawn()
}

// Recycle quiesces the runner and parks it for reuse.
func (r *Runner) Recycle() {
	r.Despawn()
	r.done = true
	r.state = StateRecycled
}
