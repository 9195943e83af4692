package a2c

import (
	"context"
	"errors"
	"fmt"

	"estrainer/internal/body"
	"estrainer/internal/episode"
	"estrainer/internal/provider"
)

// DefaultSessionEpisodeTime bounds A2C episodes that never reach a terminal
// reward.
const DefaultSessionEpisodeTime = 10.0

// ResetFunc repositions a body at the start of every episode.
type ResetFunc func(b body.Body)

type SessionOptions struct {
	MaxEpisodeTime float64
	Reset          ResetFunc
}

// EpisodeSummary is emitted whenever a session episode ends.
type EpisodeSummary struct {
	Episode int     `json:"episode"`
	Reward  float64 `json:"reward"`
	Steps   int     `json:"steps"`
	Elapsed float64 `json:"elapsed"`
}

// Session drives one body with a learner, learning after every tick.
type Session struct {
	learner      *Learner
	body         body.Body
	observations []provider.Observation
	rewards      []provider.Reward
	opts         SessionOptions
	obs          []float64

	episode   int
	reward    float64
	steps     int
	elapsed   float64
	lastStats Stats
	listeners []func(EpisodeSummary)
}

func NewSession(l *Learner, b body.Body, observations []provider.ObservationSpec, rewards []provider.RewardSpec, opts SessionOptions) (*Session, error) {
	if l == nil {
		return nil, errors.New("learner is required")
	}
	if b == nil {
		return nil, provider.ErrNoSource
	}
	if l.cfg.ActDim < 2 {
		return nil, fmt.Errorf("%w: got %d", episode.ErrActionDim, l.cfg.ActDim)
	}
	size, err := provider.ObservationSize(observations)
	if err != nil {
		return nil, err
	}
	if size != l.cfg.ObsDim {
		return nil, fmt.Errorf("%w: observations=%d learner=%d", episode.ErrObservationDim, size, l.cfg.ObsDim)
	}
	boundObs, err := provider.BindObservations(observations, b)
	if err != nil {
		return nil, err
	}
	boundRewards, err := provider.BindRewards(rewards, b)
	if err != nil {
		return nil, err
	}
	if opts.MaxEpisodeTime <= 0 {
		opts.MaxEpisodeTime = DefaultSessionEpisodeTime
	}
	s := &Session{
		learner:      l,
		body:         b,
		observations: boundObs,
		rewards:      boundRewards,
		opts:         opts,
		obs:          make([]float64, size),
	}
	s.resetEpisode()
	return s, nil
}

func (s *Session) Learner() *Learner      { return s.learner }
func (s *Session) Episodes() int          { return s.episode }
func (s *Session) EpisodeReward() float64 { return s.reward }
func (s *Session) LastStats() Stats       { return s.lastStats }

func (s *Session) OnEpisodeEnd(fn func(EpisodeSummary)) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

func (s *Session) resetEpisode() {
	for _, r := range s.rewards {
		r.Reset()
	}
	s.body.Despawn()
	if s.opts.Reset != nil {
		s.opts.Reset(s.body)
	}
	s.body.Respawn()
	s.reward = 0
	s.steps = 0
	s.elapsed = 0
}

func (s *Session) observe() []float64 {
	offset := 0
	for _, o := range s.observations {
		offset = o.Write(s.obs, offset)
	}
	return s.obs
}

// Tick acts, lets hook advance the world by dt, scores the result and learns
// from it. The episode restarts when a reward reports done or time runs out.
func (s *Session) Tick(dt float64, hook func(dt float64)) (Stats, error) {
	obs := append([]float64(nil), s.observe()...)
	action, logp := s.learner.SampleAction(obs)
	value := s.learner.Value(obs)
	s.body.SetDesiredDirection(body.Planar(action[0], action[1]))
	if hook != nil {
		hook(dt)
	}

	reward := 0.0
	done := false
	for _, r := range s.rewards {
		rw, d := r.Step(dt)
		reward += rw
		done = done || d
	}
	s.reward += reward
	s.steps++
	s.elapsed += dt
	if s.elapsed > s.opts.MaxEpisodeTime {
		done = true
	}

	if err := s.learner.AddTransition(obs, action, reward, logp, value, done); err != nil {
		return Stats{}, err
	}
	stats, err := s.learner.Learn()
	if err != nil {
		return Stats{}, err
	}
	s.lastStats = stats

	if done {
		summary := EpisodeSummary{Episode: s.episode, Reward: s.reward, Steps: s.steps, Elapsed: s.elapsed}
		s.episode++
		s.resetEpisode()
		for _, fn := range s.listeners {
			fn(summary)
		}
	}
	return stats, nil
}

// Run ticks until ticks have elapsed or ctx is done.
func (s *Session) Run(ctx context.Context, ticks int, dt float64, hook func(dt float64)) error {
	if dt <= 0 {
		return fmt.Errorf("dt must be > 0")
	}
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Tick(dt, hook); err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}
	}
	return nil
}
