//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"estrainer/internal/model"
)

func TestSQLiteStoreRunHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "estrainer.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		run := model.Run{
			VersionedRecord: CurrentVersion(),
			ID:              id,
			Algorithm:       model.AlgorithmES,
			Status:          model.RunStatusRunning,
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
			ParamCount:      10,
		}
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	limited, err := store.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit not applied: %+v err=%v", limited, err)
	}

	for _, gen := range []int{1, 0, 1} {
		record := model.GenerationRecord{VersionedRecord: CurrentVersion(), RunID: "new", Generation: gen, MeanReward: -float64(gen)}
		if err := store.AppendGeneration(ctx, record); err != nil {
			t.Fatalf("append generation: %v", err)
		}
	}
	records, ok, err := store.GetGenerations(ctx, "new")
	if err != nil || !ok {
		t.Fatalf("get generations: ok=%v err=%v", ok, err)
	}
	if len(records) != 2 || records[0].Generation != 0 || records[1].MeanReward != -1 {
		t.Fatalf("unexpected generations: %+v", records)
	}

	episode := model.EpisodeRecord{VersionedRecord: CurrentVersion(), RunID: "new", Episode: 0, Reward: 3.5, Steps: 40}
	if err := store.AppendEpisode(ctx, episode); err != nil {
		t.Fatalf("append episode: %v", err)
	}
	episodes, ok, err := store.GetEpisodes(ctx, "new")
	if err != nil || !ok || len(episodes) != 1 || episodes[0].Steps != 40 {
		t.Fatalf("unexpected episodes: %+v ok=%v err=%v", episodes, ok, err)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStoreReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "estrainer.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	run := model.Run{VersionedRecord: CurrentVersion(), ID: "persisted", CreatedAt: time.Now().UTC()}
	if err := first.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewStore("sqlite", dbPath)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reinit: %v", err)
	}
	t.Cleanup(func() {
		_ = CloseIfSupported(second)
	})
	if _, ok, err := second.GetRun(ctx, "persisted"); err != nil || !ok {
		t.Fatalf("run lost across reopen: ok=%v err=%v", ok, err)
	}
}
