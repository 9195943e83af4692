package estrainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"estrainer/internal/a2c"
	"estrainer/internal/body"
	"estrainer/internal/episode"
	"estrainer/internal/model"
	"estrainer/internal/platform"
	"estrainer/internal/policy"
	"estrainer/internal/provider"
	"estrainer/internal/storage"
)

const (
	defaultDBPath         = "estrainer.db"
	defaultPopulation     = 16
	defaultGenerations    = 50
	defaultDT             = 0.02
	defaultArenaRadius    = 10.0
	defaultSpawnMargin    = 1.0
	defaultA2CTicks       = 5000
	defaultEpisodeSeconds = episode.DefaultMaxEpisodeTime
)

type Options struct {
	StoreKind string
	DBPath    string
	Publisher platform.Publisher
	Logger    *slog.Logger
}

type Client struct {
	store    storage.Store
	platform *platform.Platform
}

// RunRequest configures an ES run of the default goal-seeking scenario:
// agents start on a ring around the origin and are rewarded for closing in
// on the goal without leaving the arena.
type RunRequest struct {
	Population     int     `yaml:"population"`
	Generations    int     `yaml:"generations"`
	Policy         string  `yaml:"policy"`
	Hidden         int     `yaml:"hidden"`
	EpisodeSeconds float64 `yaml:"episode_seconds"`
	DT             float64 `yaml:"dt"`
	Sigma          float64 `yaml:"sigma"`
	Alpha          float64 `yaml:"alpha"`
	Seed           int64   `yaml:"seed"`
	Workers        int     `yaml:"workers"`
	GoalX          float64 `yaml:"goal_x"`
	GoalZ          float64 `yaml:"goal_z"`
	Reward         string  `yaml:"reward"`
}

type RunSummary struct {
	RunID            string
	ParamCount       int
	BestByGeneration []float64
	MeanByGeneration []float64
	FinalBestReward  float64
	Theta            []float64
}

type A2CRequest struct {
	Ticks          int     `yaml:"ticks"`
	DT             float64 `yaml:"dt"`
	Hidden         []int   `yaml:"hidden"`
	Activation     string  `yaml:"activation"`
	LR             float64 `yaml:"lr"`
	Gamma          float64 `yaml:"gamma"`
	EntropyBeta    float64 `yaml:"entropy_beta"`
	EpisodeSeconds float64 `yaml:"episode_seconds"`
	Seed           int64   `yaml:"seed"`
	GoalX          float64 `yaml:"goal_x"`
	GoalZ          float64 `yaml:"goal_z"`
}

type A2CSummary struct {
	RunID          string
	Episodes       int
	Updates        int
	MeanReward     float64
	LastRewards    []float64
	BestEpisodeSum float64
}

type RunsRequest struct {
	Limit     int
	Algorithm string
}

type RunItem struct {
	RunID        string
	Algorithm    string
	Status       string
	CreatedAtUTC string
	Population   int
	Generations  int
	Seed         int64
	BestReward   float64
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store: store,
		platform: platform.NewPlatform(platform.Config{
			Store:     store,
			Publisher: opts.Publisher,
			Logger:    opts.Logger,
		}),
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.platform.Init(ctx)
}

// StopRun cancels a run in progress.
func (c *Client) StopRun(runID string) error {
	return c.platform.StopRun(runID)
}

func goalScenario(goal body.Vec3, reward string) ([]provider.ObservationSpec, []provider.RewardSpec, error) {
	observations := []provider.ObservationSpec{
		{Kind: provider.KindDistanceToTarget, TargetPoint: &goal},
		{Kind: provider.KindVelocity},
	}
	bounds := provider.RewardSpec{Kind: provider.KindArenaBounds, Radius: defaultArenaRadius}
	switch strings.ToLower(reward) {
	case "", provider.KindDistance:
		return observations, []provider.RewardSpec{{Kind: provider.KindDistance, TargetPoint: &goal}, bounds}, nil
	case provider.KindShapedGoal:
		return observations, []provider.RewardSpec{{Kind: provider.KindShapedGoal, TargetPoint: &goal}, bounds}, nil
	case provider.KindSphereArea:
		return observations, []provider.RewardSpec{{Kind: provider.KindSphereArea, TargetPoint: &goal, Multiplier: 10}, bounds}, nil
	default:
		return nil, nil, fmt.Errorf("%w: reward %q", provider.ErrUnknownKind, reward)
	}
}

func (c *Client) TrainES(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Population <= 0 {
		req.Population = defaultPopulation
	}
	if req.Generations <= 0 {
		req.Generations = defaultGenerations
	}
	if req.Policy == "" {
		req.Policy = policy.KindLinear
	}
	if req.EpisodeSeconds <= 0 {
		req.EpisodeSeconds = defaultEpisodeSeconds
	}
	if req.DT <= 0 {
		req.DT = defaultDT
	}
	if req.Workers <= 0 {
		req.Workers = 1
	}
	observations, rewards, err := goalScenario(body.Vec3{X: req.GoalX, Z: req.GoalZ}, req.Reward)
	if err != nil {
		return RunSummary{}, err
	}
	inputDim, err := provider.ObservationSize(observations)
	if err != nil {
		return RunSummary{}, err
	}
	spec := policy.Spec{Kind: req.Policy, InputDim: inputDim, OutputDim: 2, HiddenDim: req.Hidden}

	result, err := c.platform.RunES(ctx, platform.ESConfig{
		Population:   req.Population,
		Generations:  req.Generations,
		DT:           req.DT,
		Policy:       spec,
		Observations: observations,
		Rewards:      rewards,
		Episode:      episode.Options{MaxEpisodeTime: req.EpisodeSeconds},
		Sigma:        req.Sigma,
		Alpha:        req.Alpha,
		Seed:         req.Seed,
		Workers:      req.Workers,
	})
	summary := RunSummary{RunID: result.RunID, ParamCount: len(result.Theta), Theta: result.Theta}
	for i, r := range result.Reports {
		summary.BestByGeneration = append(summary.BestByGeneration, r.BestReward)
		summary.MeanByGeneration = append(summary.MeanByGeneration, r.MeanReward)
		if i == 0 || r.BestReward > summary.FinalBestReward {
			summary.FinalBestReward = r.BestReward
		}
	}
	return summary, err
}

func (c *Client) TrainA2C(ctx context.Context, req A2CRequest) (A2CSummary, error) {
	if req.Ticks <= 0 {
		req.Ticks = defaultA2CTicks
	}
	if req.DT <= 0 {
		req.DT = defaultDT
	}
	observations, rewards, err := goalScenario(body.Vec3{X: req.GoalX, Z: req.GoalZ}, provider.KindShapedGoal)
	if err != nil {
		return A2CSummary{}, err
	}
	obsDim, err := provider.ObservationSize(observations)
	if err != nil {
		return A2CSummary{}, err
	}
	result, err := c.platform.RunA2C(ctx, platform.A2CConfig{
		Ticks:       req.Ticks,
		DT:          req.DT,
		ArenaRadius: defaultArenaRadius,
		SpawnMargin: defaultSpawnMargin,
		Learner: a2c.Config{
			ObsDim:      obsDim,
			ActDim:      2,
			Hidden:      req.Hidden,
			Activation:  req.Activation,
			Gamma:       req.Gamma,
			EntropyBeta: req.EntropyBeta,
			LR:          req.LR,
			Seed:        req.Seed,
		},
		Observations:   observations,
		Rewards:        rewards,
		MaxEpisodeTime: req.EpisodeSeconds,
	})
	summary := A2CSummary{RunID: result.RunID, Episodes: len(result.Episodes), Updates: result.Updates}
	total := 0.0
	for i, e := range result.Episodes {
		total += e.Reward
		if i == 0 || e.Reward > summary.BestEpisodeSum {
			summary.BestEpisodeSum = e.Reward
		}
	}
	if n := len(result.Episodes); n > 0 {
		summary.MeanReward = total / float64(n)
		tail := result.Episodes[max(0, n-10):]
		for _, e := range tail {
			summary.LastRewards = append(summary.LastRewards, e.Reward)
		}
	}
	return summary, err
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	runs, err := c.store.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, min(len(runs), req.Limit))
	for _, r := range runs {
		if req.Algorithm != "" && r.Algorithm != req.Algorithm {
			continue
		}
		out = append(out, RunItem{
			RunID:        r.ID,
			Algorithm:    r.Algorithm,
			Status:       r.Status,
			CreatedAtUTC: r.CreatedAt.UTC().Format(time.RFC3339),
			Population:   r.Population,
			Generations:  r.Generations,
			Seed:         r.Seed,
			BestReward:   r.BestReward,
		})
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (c *Client) resolveRunID(ctx context.Context, req HistoryRequest, algorithm string) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if !req.Latest {
		if req.RunID == "" {
			return "", errors.New("history requires run id or latest")
		}
		return req.RunID, nil
	}
	runs, err := c.store.ListRuns(ctx, 0)
	if err != nil {
		return "", err
	}
	for _, r := range runs {
		if r.Algorithm == algorithm {
			return r.ID, nil
		}
	}
	return "", errors.New("no runs available")
}

// Generations returns the per-generation history of an ES run.
func (c *Client) Generations(ctx context.Context, req HistoryRequest) ([]model.GenerationRecord, error) {
	runID, err := c.resolveRunID(ctx, req, model.AlgorithmES)
	if err != nil {
		return nil, err
	}
	records, ok, err := c.store.GetGenerations(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("generation history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}
	return records, nil
}

// Episodes returns the per-episode history of an A2C run.
func (c *Client) Episodes(ctx context.Context, req HistoryRequest) ([]model.EpisodeRecord, error) {
	runID, err := c.resolveRunID(ctx, req, model.AlgorithmA2C)
	if err != nil {
		return nil, err
	}
	records, ok, err := c.store.GetEpisodes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("episode history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}
	return records, nil
}
