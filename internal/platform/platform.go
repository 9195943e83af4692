package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"estrainer/internal/a2c"
	"estrainer/internal/arena"
	"estrainer/internal/body"
	"estrainer/internal/episode"
	"estrainer/internal/es"
	"estrainer/internal/model"
	"estrainer/internal/monitor"
	"estrainer/internal/policy"
	"estrainer/internal/pool"
	"estrainer/internal/provider"
	"estrainer/internal/storage"
)

var ErrUnknownRun = errors.New("unknown run")

// Publisher receives progress events; *monitor.Hub satisfies it.
type Publisher interface {
	Publish(ev monitor.Event) error
}

type Config struct {
	Store     storage.Store
	Publisher Publisher
	Logger    *slog.Logger
}

// Platform owns the run history store and drives training runs against an
// in-process arena.
type Platform struct {
	store     storage.Store
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	runs    map[string]context.CancelFunc
	now     func() time.Time
}

func NewPlatform(cfg Config) *Platform {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Platform{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
		runs:      make(map[string]context.CancelFunc),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *Platform) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

func (p *Platform) Store() storage.Store { return p.store }

// ActiveRuns lists the ids of runs in progress.
func (p *Platform) ActiveRuns() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopRun cancels a run in progress. The run records status cancelled.
func (p *Platform) StopRun(runID string) error {
	p.mu.Lock()
	cancel, ok := p.runs[runID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	cancel()
	return nil
}

func (p *Platform) begin(ctx context.Context, run *model.Run) (context.Context, error) {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("platform is not initialized")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.VersionedRecord = storage.CurrentVersion()
	run.Status = model.RunStatusRunning
	run.CreatedAt = p.now()
	if err := p.store.SaveRun(ctx, *run); err != nil {
		return nil, fmt.Errorf("save run %s: %w", run.ID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.runs[run.ID] = cancel
	p.mu.Unlock()
	p.publish(monitor.Event{Type: monitor.EventRunStarted, RunID: run.ID, Data: *run})
	return runCtx, nil
}

// finish records the outcome of run. It uses ctx without the run's own
// cancellation so a cancelled run is still persisted.
func (p *Platform) finish(ctx context.Context, run *model.Run, runErr error) error {
	p.mu.Lock()
	if cancel, ok := p.runs[run.ID]; ok {
		cancel()
		delete(p.runs, run.ID)
	}
	p.mu.Unlock()

	run.FinishedAt = p.now()
	switch {
	case runErr == nil:
		run.Status = model.RunStatusCompleted
	case errors.Is(runErr, context.Canceled):
		run.Status = model.RunStatusCancelled
	default:
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	}
	saveErr := p.store.SaveRun(context.WithoutCancel(ctx), *run)
	p.publish(monitor.Event{Type: monitor.EventRunFinished, RunID: run.ID, Data: *run})
	p.logger.Info("run finished", "run_id", run.ID, "algorithm", run.Algorithm, "status", run.Status, "best", run.BestReward)
	if saveErr != nil {
		return errors.Join(runErr, fmt.Errorf("save run %s: %w", run.ID, saveErr))
	}
	return runErr
}

func (p *Platform) publish(ev monitor.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ev); err != nil {
		p.logger.Debug("publish event failed", "type", ev.Type, "error", err)
	}
}

// ESConfig describes one evolution strategies run in the arena.
type ESConfig struct {
	RunID        string
	Population   int
	Generations  int
	DT           float64
	Speed        float64
	RingRadius   float64
	Policy       policy.Spec
	Observations []provider.ObservationSpec
	Rewards      []provider.RewardSpec
	Episode      episode.Options
	Sigma        float64
	Alpha        float64
	Seed         int64
	Workers      int
}

type ESResult struct {
	RunID   string
	Theta   []float64
	Reports []es.Report
}

// RunES trains a policy with a pool sized to the population. Every finished
// generation is persisted and published.
func (p *Platform) RunES(ctx context.Context, cfg ESConfig) (ESResult, error) {
	if cfg.Population <= 0 {
		return ESResult{}, es.ErrInvalidPopulation
	}
	if cfg.Generations <= 0 {
		return ESResult{}, fmt.Errorf("generations must be > 0")
	}
	if cfg.DT <= 0 {
		return ESResult{}, fmt.Errorf("dt must be > 0")
	}
	population := cfg.Population + cfg.Population%2

	world, err := arena.NewWorld(population, cfg.Speed)
	if err != nil {
		return ESResult{}, err
	}
	world.SetRingRadius(cfg.RingRadius)
	runners := make([]*episode.Runner, population)
	for i := range runners {
		runners[i] = episode.NewRunner(i, world.Body(i))
	}
	optimizer, err := es.New(es.Config{
		Policy:       cfg.Policy,
		Observations: cfg.Observations,
		Rewards:      cfg.Rewards,
		Episode:      cfg.Episode,
		Sigma:        cfg.Sigma,
		Alpha:        cfg.Alpha,
		Seed:         cfg.Seed,
		Workers:      cfg.Workers,
		Placer:       world,
		Logger:       p.logger,
	}, pool.New(runners))
	if err != nil {
		return ESResult{}, err
	}

	run := model.Run{
		ID:         cfg.RunID,
		Algorithm:  model.AlgorithmES,
		PolicyKind: cfg.Policy.Kind,
		InputDim:   cfg.Policy.InputDim,
		OutputDim:  cfg.Policy.OutputDim,
		ParamCount: len(optimizer.Theta()),
		Population: population,
		Sigma:      cfg.Sigma,
		Alpha:      cfg.Alpha,
		Seed:       cfg.Seed,
	}
	runCtx, err := p.begin(ctx, &run)
	if err != nil {
		return ESResult{}, err
	}

	var (
		reports  []es.Report
		storeErr error
	)
	optimizer.OnGenerationFinished(func(r es.Report) {
		reports = append(reports, r)
		if len(reports) == 1 || r.BestReward > run.BestReward {
			run.BestReward = r.BestReward
		}
		run.Generations = r.Generation + 1
		record := model.GenerationRecord{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           run.ID,
			Generation:      r.Generation,
			Population:      r.Population,
			BestReward:      r.BestReward,
			MeanReward:      r.MeanReward,
			MinReward:       r.MinReward,
			ThetaNorm:       r.ThetaNorm,
		}
		if err := p.store.AppendGeneration(runCtx, record); err != nil && storeErr == nil {
			storeErr = fmt.Errorf("append generation %d: %w", r.Generation, err)
		}
		p.publish(monitor.Event{Type: monitor.EventGeneration, RunID: run.ID, Data: r})
	})

	theta, runErr := optimizer.Run(runCtx, population, cfg.Generations, cfg.DT, world.Integrate)
	if runErr == nil {
		runErr = storeErr
	}
	err = p.finish(ctx, &run, runErr)
	return ESResult{RunID: run.ID, Theta: theta, Reports: reports}, err
}

// A2CConfig describes one actor-critic run with a single agent.
type A2CConfig struct {
	RunID          string
	Ticks          int
	DT             float64
	Speed          float64
	ArenaRadius    float64
	SpawnMargin    float64
	Learner        a2c.Config
	Observations   []provider.ObservationSpec
	Rewards        []provider.RewardSpec
	MaxEpisodeTime float64
}

type A2CResult struct {
	RunID    string
	Episodes []a2c.EpisodeSummary
	Updates  int
}

// RunA2C trains a single agent that respawns at a random point inside the
// arena after every episode.
func (p *Platform) RunA2C(ctx context.Context, cfg A2CConfig) (A2CResult, error) {
	if cfg.Ticks <= 0 {
		return A2CResult{}, fmt.Errorf("ticks must be > 0")
	}
	if cfg.DT <= 0 {
		return A2CResult{}, fmt.Errorf("dt must be > 0")
	}
	spawnRadius := cfg.ArenaRadius - cfg.SpawnMargin
	if spawnRadius <= 0 {
		return A2CResult{}, fmt.Errorf("arena radius must exceed spawn margin")
	}
	world, err := arena.NewWorld(1, cfg.Speed)
	if err != nil {
		return A2CResult{}, err
	}
	learner, err := a2c.New(cfg.Learner)
	if err != nil {
		return A2CResult{}, err
	}
	rng := rand.New(rand.NewSource(cfg.Learner.Seed + 1))
	agent := world.Body(0)
	session, err := a2c.NewSession(learner, agent, cfg.Observations, cfg.Rewards, a2c.SessionOptions{
		MaxEpisodeTime: cfg.MaxEpisodeTime,
		Reset: func(body.Body) {
			agent.Teleport(arena.RandomSpawn(rng, spawnRadius))
		},
	})
	if err != nil {
		return A2CResult{}, err
	}

	run := model.Run{
		ID:         cfg.RunID,
		Algorithm:  model.AlgorithmA2C,
		PolicyKind: policy.KindMLP,
		InputDim:   cfg.Learner.ObsDim,
		OutputDim:  cfg.Learner.ActDim,
		Seed:       cfg.Learner.Seed,
	}
	runCtx, err := p.begin(ctx, &run)
	if err != nil {
		return A2CResult{}, err
	}

	var (
		episodes []a2c.EpisodeSummary
		storeErr error
	)
	session.OnEpisodeEnd(func(e a2c.EpisodeSummary) {
		episodes = append(episodes, e)
		if len(episodes) == 1 || e.Reward > run.BestReward {
			run.BestReward = e.Reward
		}
		run.Generations = len(episodes)
		stats := session.LastStats()
		record := model.EpisodeRecord{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           run.ID,
			Episode:         e.Episode,
			Reward:          e.Reward,
			Steps:           e.Steps,
			ActorLoss:       stats.ActorLoss,
			CriticLoss:      stats.CriticLoss,
			Entropy:         stats.Entropy,
		}
		if err := p.store.AppendEpisode(runCtx, record); err != nil && storeErr == nil {
			storeErr = fmt.Errorf("append episode %d: %w", e.Episode, err)
		}
		p.publish(monitor.Event{Type: monitor.EventEpisode, RunID: run.ID, Data: record})
	})

	runErr := session.Run(runCtx, cfg.Ticks, cfg.DT, world.Integrate)
	if runErr == nil {
		runErr = storeErr
	}
	err = p.finish(ctx, &run, runErr)
	return A2CResult{RunID: run.ID, Episodes: episodes, Updates: learner.Updates()}, err
}
