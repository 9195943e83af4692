package es

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	cpool "github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"estrainer/internal/body"
	"estrainer/internal/episode"
	"estrainer/internal/policy"
	"estrainer/internal/pool"
	"estrainer/internal/provider"
)

const (
	DefaultSigma = 0.1
	DefaultAlpha = 0.05
)

var (
	ErrAlreadyRunning    = errors.New("optimizer is already running")
	ErrNotRunning        = errors.New("optimizer is not running")
	ErrInvalidPopulation = errors.New("population size must be > 0")
)

// Placer positions a freshly prepared body before its episode starts.
type Placer interface {
	Place(b body.Body, index, population int)
}

type Config struct {
	Policy       policy.Spec
	Observations []provider.ObservationSpec
	Rewards      []provider.RewardSpec
	Episode      episode.Options
	Sigma        float64
	Alpha        float64
	Seed         int64
	// Workers > 1 steps runners concurrently.
	Workers int
	Placer  Placer
	Logger  *slog.Logger
}

// Report summarizes one finished generation.
type Report struct {
	Generation int     `json:"generation"`
	Population int     `json:"population"`
	BestReward float64 `json:"best_reward"`
	MeanReward float64 `json:"mean_reward"`
	MinReward  float64 `json:"min_reward"`
	ThetaNorm  float64 `json:"theta_norm"`
}

type member struct {
	runner *episode.Runner
	noise  []float64
	mirror bool
	theta  []float64
}

// Optimizer runs antithetic evolution strategies over a runner pool. The
// master parameter vector changes only after every member of a generation
// has finished its episode.
type Optimizer struct {
	mu         sync.Mutex
	cfg        Config
	pool       *pool.Pool
	template   policy.Policy
	rng        *rand.Rand
	logger     *slog.Logger
	theta      []float64
	lastTheta  []float64
	generation int
	population int
	running    bool
	members    []member
	configured map[*episode.Runner]bool
	rewards    []float64
	grad       []float64
	listeners  []func(Report)
}

func New(cfg Config, p *pool.Pool) (*Optimizer, error) {
	if p == nil {
		return nil, fmt.Errorf("runner pool is required")
	}
	if cfg.Sigma < 0 {
		return nil, fmt.Errorf("sigma must be > 0")
	}
	if cfg.Alpha < 0 {
		return nil, fmt.Errorf("alpha must be > 0")
	}
	if cfg.Sigma == 0 {
		cfg.Sigma = DefaultSigma
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if len(cfg.Rewards) == 0 {
		return nil, fmt.Errorf("at least one reward provider is required")
	}
	template, err := policy.New(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}
	size, err := provider.ObservationSize(cfg.Observations)
	if err != nil {
		return nil, err
	}
	if size != template.InputDim() {
		return nil, fmt.Errorf("%w: observations=%d policy=%d", episode.ErrObservationDim, size, template.InputDim())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Optimizer{
		cfg:        cfg,
		pool:       p,
		template:   template,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		logger:     logger,
		theta:      make([]float64, template.ParamCount()),
		configured: make(map[*episode.Runner]bool),
		grad:       make([]float64, template.ParamCount()),
	}, nil
}

// OnGenerationFinished registers fn to receive every generation report. fn
// runs outside the optimizer lock and may call Stop.
func (o *Optimizer) OnGenerationFinished(fn func(Report)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Theta returns a copy of the master parameter vector.
func (o *Optimizer) Theta() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]float64(nil), o.theta...)
}

// SetTheta seeds the master parameters while idle.
func (o *Optimizer) SetTheta(theta []float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrAlreadyRunning
	}
	if len(theta) != len(o.theta) {
		return fmt.Errorf("%w: got %d, want %d", policy.ErrDimensionMismatch, len(theta), len(o.theta))
	}
	copy(o.theta, theta)
	return nil
}

func (o *Optimizer) Generation() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

func (o *Optimizer) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Optimizer) Population() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.population
}

// Active returns the runners of the current generation.
func (o *Optimizer) Active() []*episode.Runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*episode.Runner, len(o.members))
	for i, m := range o.members {
		out[i] = m.runner
	}
	return out
}

// Start begins generation 0 with populationSize rounded up to even.
func (o *Optimizer) Start(populationSize int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrAlreadyRunning
	}
	if populationSize <= 0 {
		return ErrInvalidPopulation
	}
	n := roundUpEven(populationSize)
	if n > o.pool.Capacity() {
		return fmt.Errorf("%w: population %d exceeds capacity %d", pool.ErrPoolExhausted, n, o.pool.Capacity())
	}
	o.population = n
	o.generation = 0
	o.members = make([]member, n)
	o.rewards = make([]float64, n)
	for j := 0; j < n/2; j++ {
		noise := make([]float64, len(o.theta))
		o.members[2*j] = member{noise: noise, theta: make([]float64, len(o.theta))}
		o.members[2*j+1] = member{noise: noise, mirror: true, theta: make([]float64, len(o.theta))}
	}
	if err := o.spawnLocked(); err != nil {
		o.members = nil
		return err
	}
	o.running = true
	o.logger.Info("es started", "population", n, "params", len(o.theta), "sigma", o.cfg.Sigma, "alpha", o.cfg.Alpha)
	return nil
}

func (o *Optimizer) spawnLocked() error {
	runners, err := o.pool.CheckoutN(len(o.members))
	if err != nil {
		return err
	}
	for j := 0; j < len(o.members); j += 2 {
		noise := o.members[j].noise
		for k := range noise {
			noise[k] = o.rng.Float64()*2 - 1
		}
	}
	for i := range o.members {
		m := &o.members[i]
		m.runner = runners[i]
		sign := 1.0
		if m.mirror {
			sign = -1
		}
		floats.AddScaledTo(m.theta, o.theta, sign*o.cfg.Sigma, m.noise)
		if err := o.prepare(m.runner, m.theta); err != nil {
			_ = o.pool.ReturnAll(runners)
			for k := range o.members {
				o.members[k].runner = nil
			}
			return err
		}
		if o.cfg.Placer != nil {
			o.cfg.Placer.Place(m.runner.Body(), i, len(o.members))
		}
	}
	return nil
}

func (o *Optimizer) prepare(r *episode.Runner, theta []float64) error {
	if !o.configured[r] {
		if err := r.Configure(o.template, o.cfg.Observations, o.cfg.Rewards, o.cfg.Episode); err != nil {
			return fmt.Errorf("configure runner %d: %w", r.ID(), err)
		}
		o.configured[r] = true
	}
	return r.PrepareForRun(theta)
}

// Step advances every active runner by dt.
func (o *Optimizer) Step(ctx context.Context, dt float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return ErrNotRunning
	}
	if o.cfg.Workers == 1 {
		for _, m := range o.members {
			m.runner.Step(dt)
		}
		return nil
	}
	workers := cpool.New().WithMaxGoroutines(o.cfg.Workers)
	for _, m := range o.members {
		r := m.runner
		workers.Go(func() { r.Step(dt) })
	}
	workers.Wait()
	return nil
}

// Tick steps every runner and then polls the generation barrier.
func (o *Optimizer) Tick(ctx context.Context, dt float64) (bool, error) {
	if err := o.Step(ctx, dt); err != nil {
		return false, err
	}
	return o.Poll()
}

// Poll reports whether the current generation just finished. When every
// runner is done it applies the gradient step, recycles the runners and
// spawns the next generation.
func (o *Optimizer) Poll() (bool, error) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return false, ErrNotRunning
	}
	for _, m := range o.members {
		if !m.runner.Done() {
			o.mu.Unlock()
			return false, nil
		}
	}

	runners := make([]*episode.Runner, len(o.members))
	for i, m := range o.members {
		runners[i] = m.runner
		o.rewards[i] = m.runner.CumulativeReward()
	}
	// The generation is abandoned with theta untouched if any runner cannot
	// go back to the pool.
	if err := o.pool.ReturnAll(runners); err != nil {
		generation := o.generation
		o.abandonLocked()
		o.mu.Unlock()
		return false, fmt.Errorf("return generation %d: %w", generation, err)
	}
	report := o.updateLocked()
	o.generation++
	spawnErr := o.spawnLocked()
	if spawnErr != nil {
		o.abandonLocked()
	}
	listeners := append([]func(Report){}, o.listeners...)
	o.mu.Unlock()

	o.logger.Info("generation finished",
		"generation", report.Generation,
		"best", report.BestReward,
		"mean", report.MeanReward,
		"theta_norm", report.ThetaNorm,
	)
	for _, fn := range listeners {
		fn(report)
	}
	if spawnErr != nil {
		return true, fmt.Errorf("spawn generation %d: %w", report.Generation+1, spawnErr)
	}
	return true, nil
}

// updateLocked applies the gradient step for the rewards collected in
// o.rewards.
func (o *Optimizer) updateLocked() Report {
	n := len(o.members)
	ranks := CenteredRanks(o.rewards)
	for i := range o.grad {
		o.grad[i] = 0
	}
	for i, m := range o.members {
		weight := ranks[i]
		if m.mirror {
			weight = -weight
		}
		floats.AddScaled(o.grad, weight, m.noise)
	}
	floats.AddScaled(o.theta, o.cfg.Alpha/(float64(n)*o.cfg.Sigma), o.grad)

	return Report{
		Generation: o.generation,
		Population: n,
		BestReward: floats.Max(o.rewards),
		MeanReward: stat.Mean(o.rewards, nil),
		MinReward:  floats.Min(o.rewards),
		ThetaNorm:  floats.Norm(o.theta, 2),
	}
}

// Stop ends training at once. In-flight runners are terminated and returned
// to the pool, theta is zeroed and the generation counter reset.
func (o *Optimizer) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return ErrNotRunning
	}
	runners := make([]*episode.Runner, 0, len(o.members))
	for _, m := range o.members {
		if m.runner == nil {
			continue
		}
		m.runner.MarkDone()
		runners = append(runners, m.runner)
	}
	err := o.pool.ReturnAll(runners)
	o.abandonLocked()
	for i := range o.theta {
		o.theta[i] = 0
	}
	o.generation = 0
	o.logger.Info("es stopped")
	return err
}

// abandonLocked leaves the running state and keeps a copy of theta for Run.
func (o *Optimizer) abandonLocked() {
	o.members = nil
	o.running = false
	o.lastTheta = append(o.lastTheta[:0], o.theta...)
}

// TickHook runs once per tick after the runners have stepped, typically to
// integrate the physics world.
type TickHook func(dt float64)

// Run starts a population, ticks until generations have finished or ctx is
// done, and stops the optimizer before returning. It returns the master
// parameters as they were just before the stop.
func (o *Optimizer) Run(ctx context.Context, populationSize, generations int, dt float64, hook TickHook) ([]float64, error) {
	if generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if dt <= 0 {
		return nil, fmt.Errorf("dt must be > 0")
	}
	if err := o.Start(populationSize); err != nil {
		return nil, err
	}
	var runErr error
	for o.Generation() < generations {
		if err := o.Step(ctx, dt); err != nil {
			runErr = err
			break
		}
		if hook != nil {
			hook(dt)
		}
		if _, err := o.Poll(); err != nil {
			runErr = err
			break
		}
	}
	if errors.Is(runErr, ErrNotRunning) {
		// a listener stopped the optimizer
		runErr = nil
	}
	if err := o.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		runErr = errors.Join(runErr, err)
	}
	o.mu.Lock()
	theta := append([]float64(nil), o.lastTheta...)
	o.mu.Unlock()
	return theta, runErr
}
