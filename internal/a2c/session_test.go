package a2c

import (
	"context"
	"errors"
	"testing"

	"estrainer/internal/arena"
	"estrainer/internal/body"
	"estrainer/internal/episode"
	"estrainer/internal/provider"
)

func sessionSpecs() ([]provider.ObservationSpec, []provider.RewardSpec) {
	goal := body.Vec3{X: 4}
	return []provider.ObservationSpec{
			{Kind: provider.KindDistanceToTarget, TargetPoint: &goal},
			{Kind: provider.KindVelocity},
		}, []provider.RewardSpec{
			{Kind: provider.KindConstant, Value: -1},
		}
}

func TestSessionResetsEveryEpisode(t *testing.T) {
	world, err := arena.NewWorld(1, 0)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	b := world.Body(0)
	resets := 0
	obs, rewards := sessionSpecs()
	l := mustLearner(t, Config{ObsDim: 4, ActDim: 2, Hidden: []int{8}, Seed: 1})
	s, err := NewSession(l, b, obs, rewards, SessionOptions{
		MaxEpisodeTime: 0.1,
		Reset: func(body.Body) {
			resets++
			b.Teleport(body.Vec3{Z: 1})
		},
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if resets != 1 || !b.Active() {
		t.Fatalf("session did not start an episode: resets=%d active=%v", resets, b.Active())
	}
	var summaries []EpisodeSummary
	s.OnEpisodeEnd(func(e EpisodeSummary) { summaries = append(summaries, e) })

	if err := s.Run(context.Background(), 9, 0.05, world.Integrate); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.Episodes() != 3 || len(summaries) != 3 || resets != 4 {
		t.Fatalf("episodes=%d summaries=%d resets=%d", s.Episodes(), len(summaries), resets)
	}
	for i, e := range summaries {
		if e.Episode != i || e.Steps != 3 || e.Reward != -3 {
			t.Fatalf("unexpected summary %d: %+v", i, e)
		}
	}
	if l.Updates() != 9 || s.LastStats().Steps != 1 {
		t.Fatalf("expected one update per tick, got %d", l.Updates())
	}
	if b.Position() != (body.Vec3{Z: 1}) || !b.Active() {
		t.Fatalf("body not reset after final episode: %+v", b.Position())
	}
}

func TestSessionMovesBody(t *testing.T) {
	world, _ := arena.NewWorld(1, 0)
	obs, rewards := sessionSpecs()
	l := mustLearner(t, Config{ObsDim: 4, ActDim: 2, Hidden: []int{8}, Seed: 2})
	s, err := NewSession(l, world.Body(0), obs, rewards, SessionOptions{})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Tick(0.1, world.Integrate); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if world.Body(0).Position().PlanarLen() == 0 {
		t.Fatal("body did not move")
	}
}

func TestSessionValidation(t *testing.T) {
	world, _ := arena.NewWorld(1, 0)
	obs, rewards := sessionSpecs()
	narrow := mustLearner(t, Config{ObsDim: 4, ActDim: 1, Hidden: []int{4}})
	if _, err := NewSession(narrow, world.Body(0), obs, rewards, SessionOptions{}); !errors.Is(err, episode.ErrActionDim) {
		t.Fatalf("expected ErrActionDim, got %v", err)
	}
	wide := mustLearner(t, Config{ObsDim: 5, ActDim: 2, Hidden: []int{4}})
	if _, err := NewSession(wide, world.Body(0), obs, rewards, SessionOptions{}); !errors.Is(err, episode.ErrObservationDim) {
		t.Fatalf("expected ErrObservationDim, got %v", err)
	}
	l := mustLearner(t, Config{ObsDim: 4, ActDim: 2, Hidden: []int{4}})
	if _, err := NewSession(l, nil, obs, rewards, SessionOptions{}); !errors.Is(err, provider.ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}
