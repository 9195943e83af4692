package estrainer

import (
	"context"
	"errors"
	"testing"

	"estrainer/internal/model"
	"estrainer/internal/provider"
)

func newMemoryClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return client
}

func TestClientTrainESAndHistory(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	summary, err := client.TrainES(ctx, RunRequest{
		Population:     4,
		Generations:    2,
		EpisodeSeconds: 0.2,
		DT:             0.05,
		Seed:           7,
	})
	if err != nil {
		t.Fatalf("train es: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if len(summary.BestByGeneration) != 2 || len(summary.MeanByGeneration) != 2 {
		t.Fatalf("unexpected generation summaries: %+v", summary)
	}
	// distance_to_target + velocity into a 2-output linear policy.
	if summary.ParamCount != 10 {
		t.Fatalf("expected 10 params, got %d", summary.ParamCount)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].Status != model.RunStatusCompleted || runs[0].Algorithm != model.AlgorithmES {
		t.Fatalf("unexpected run item: %+v", runs[0])
	}

	history, err := client.Generations(ctx, HistoryRequest{Latest: true})
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if len(history) != 2 || history[1].Generation != 1 {
		t.Fatalf("unexpected history: %+v", history)
	}
	limited, err := client.Generations(ctx, HistoryRequest{RunID: summary.RunID, Limit: 1})
	if err != nil {
		t.Fatalf("generations by id: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limited history, got %d", len(limited))
	}
}

func TestClientTrainESRejectsUnknownReward(t *testing.T) {
	client := newMemoryClient(t)
	_, err := client.TrainES(context.Background(), RunRequest{Reward: "teleport"})
	if !errors.Is(err, provider.ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestClientTrainA2CAndEpisodes(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	summary, err := client.TrainA2C(ctx, A2CRequest{
		Ticks:          20,
		DT:             0.05,
		Hidden:         []int{8},
		EpisodeSeconds: 0.2,
		Seed:           3,
	})
	if err != nil {
		t.Fatalf("train a2c: %v", err)
	}
	if summary.Episodes == 0 {
		t.Fatal("expected finished episodes")
	}
	if want := min(summary.Episodes, 10); len(summary.LastRewards) != want {
		t.Fatalf("expected %d trailing rewards, got %d", want, len(summary.LastRewards))
	}

	episodes, err := client.Episodes(ctx, HistoryRequest{Latest: true})
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if len(episodes) != summary.Episodes {
		t.Fatalf("expected %d episode records, got %d", summary.Episodes, len(episodes))
	}

	runs, err := client.Runs(ctx, RunsRequest{Algorithm: model.AlgorithmES})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no es runs, got %+v", runs)
	}
}

func TestClientHistoryValidation(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	if _, err := client.Generations(ctx, HistoryRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected error for run id and latest")
	}
	if _, err := client.Generations(ctx, HistoryRequest{Latest: true, Limit: -1}); err == nil {
		t.Fatal("expected error for negative limit")
	}
	if _, err := client.Generations(ctx, HistoryRequest{Latest: true}); err == nil {
		t.Fatal("expected error with no runs")
	}
	if _, err := client.Episodes(ctx, HistoryRequest{RunID: "missing"}); err == nil {
		t.Fatal("expected not found error")
	}
}
