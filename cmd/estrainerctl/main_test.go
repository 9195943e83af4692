package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}

func TestRunRequiresCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run(context.Background(), []string{"evolve"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestInitCommandMemory(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"init", "--store", "memory"})
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "initialized store=memory") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTrainCommandMemory(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"train",
			"--store", "memory",
			"--pop", "4",
			"--gens", "2",
			"--episode-seconds", "0.2",
			"--dt", "0.05",
			"--seed", "5",
		})
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !strings.Contains(out, "run completed run_id=") {
		t.Fatalf("missing summary line: %q", out)
	}
	if strings.Count(out, "generation=") != 2 {
		t.Fatalf("expected two generation lines: %q", out)
	}
	if !strings.Contains(out, "final_best_reward=") {
		t.Fatalf("missing final reward: %q", out)
	}
}

func TestTrainCommandJSONWithMonitor(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"train",
			"--store", "memory",
			"--pop", "2",
			"--gens", "1",
			"--episode-seconds", "0.1",
			"--dt", "0.05",
			"--monitor-addr", "127.0.0.1:0",
			"--json",
		})
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	var summary struct {
		RunID            string
		ParamCount       int
		BestByGeneration []float64
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary %q: %v", out, err)
	}
	if summary.RunID == "" || summary.ParamCount != 10 || len(summary.BestByGeneration) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestTrainCommandConfigWithFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	config := `es:
  population: 2
  generations: 3
  episode_seconds: 0.1
  dt: 0.05
  seed: 9
`
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"train", "--store", "memory", "--config", path, "--gens", "1"})
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !strings.Contains(out, "pop=2 gens=1 seed=9") {
		t.Fatalf("expected config values with gens override: %q", out)
	}
	if strings.Count(out, "generation=") != 1 {
		t.Fatalf("expected one generation line: %q", out)
	}
}

func TestA2CCommandMemory(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{
			"a2c",
			"--store", "memory",
			"--ticks", "12",
			"--dt", "0.05",
			"--hidden", "8",
			"--episode-seconds", "0.2",
		})
	})
	if err != nil {
		t.Fatalf("a2c: %v", err)
	}
	if !strings.Contains(out, "run completed run_id=") || !strings.Contains(out, "mean_episode_reward=") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestA2CCommandRejectsBadHidden(t *testing.T) {
	err := run(context.Background(), []string{"a2c", "--store", "memory", "--hidden", "8,x"})
	if err == nil || !strings.Contains(err.Error(), "invalid hidden layer width") {
		t.Fatalf("expected hidden width error, got %v", err)
	}
}

func TestRunsCommandValidation(t *testing.T) {
	if err := run(context.Background(), []string{"runs", "--store", "memory", "--limit", "0"}); err == nil {
		t.Fatal("expected limit validation error")
	}
	if err := run(context.Background(), []string{"runs", "--store", "memory", "--algorithm", "neat"}); err == nil {
		t.Fatal("expected algorithm validation error")
	}
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "memory"})
	})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "no runs found") {
		t.Fatalf("expected empty listing: %q", out)
	}
}

func TestHistoryCommandsValidation(t *testing.T) {
	err := run(context.Background(), []string{"generations", "--store", "memory", "--run-id", "x", "--latest"})
	if err == nil || !strings.Contains(err.Error(), "either run id or latest") {
		t.Fatalf("expected exclusive flag error, got %v", err)
	}
	err = run(context.Background(), []string{"episodes", "--store", "memory", "--latest"})
	if err == nil || !strings.Contains(err.Error(), "no runs available") {
		t.Fatalf("expected no runs error, got %v", err)
	}
}
