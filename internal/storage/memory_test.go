package storage

import (
	"context"
	"testing"
	"time"

	"estrainer/internal/model"
)

func initMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestMemoryStoreRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := initMemoryStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := model.Run{VersionedRecord: CurrentVersion(), ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", id, err)
		}
	}
	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
	all, _ := store.ListRuns(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("expected all runs, got %d", len(all))
	}

	updated := runs[0]
	updated.Status = model.RunStatusCompleted
	if err := store.SaveRun(ctx, updated); err != nil {
		t.Fatalf("update run: %v", err)
	}
	got, ok, err := store.GetRun(ctx, "c")
	if err != nil || !ok || got.Status != model.RunStatusCompleted {
		t.Fatalf("unexpected run after update: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := store.GetRun(ctx, "missing"); ok {
		t.Fatal("expected missing run")
	}
}

func TestMemoryStoreGenerationsOrderedAndReplaced(t *testing.T) {
	ctx := context.Background()
	store := initMemoryStore(t)
	for _, gen := range []int{2, 0, 1, 1} {
		record := model.GenerationRecord{VersionedRecord: CurrentVersion(), RunID: "r1", Generation: gen, BestReward: float64(gen * 10)}
		if err := store.AppendGeneration(ctx, record); err != nil {
			t.Fatalf("append generation %d: %v", gen, err)
		}
	}
	records, ok, err := store.GetGenerations(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("get generations: ok=%v err=%v", ok, err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 generations, got %d", len(records))
	}
	for i, r := range records {
		if r.Generation != i {
			t.Fatalf("generation %d out of order: %+v", i, records)
		}
	}
	records[0].BestReward = 99
	again, _, _ := store.GetGenerations(ctx, "r1")
	if again[0].BestReward == 99 {
		t.Fatal("returned records alias store state")
	}
	if _, ok, _ := store.GetGenerations(ctx, "r2"); ok {
		t.Fatal("expected no generations for unknown run")
	}
}

func TestMemoryStoreEpisodes(t *testing.T) {
	ctx := context.Background()
	store := initMemoryStore(t)
	for ep := 0; ep < 3; ep++ {
		if err := store.AppendEpisode(ctx, model.EpisodeRecord{RunID: "r1", Episode: ep, Reward: float64(ep)}); err != nil {
			t.Fatalf("append episode: %v", err)
		}
	}
	records, ok, err := store.GetEpisodes(ctx, "r1")
	if err != nil || !ok || len(records) != 3 || records[2].Reward != 2 {
		t.Fatalf("unexpected episodes: %+v ok=%v err=%v", records, ok, err)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), model.Run{ID: "r1"}); err == nil {
		t.Fatal("expected error before init")
	}
}
