package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	estrainer "estrainer/pkg/estrainer"
)

// fileConfig is the YAML layout accepted by -config. Either section may be
// omitted; flags given on the command line win over file values.
type fileConfig struct {
	ES  *estrainer.RunRequest `yaml:"es"`
	A2C *estrainer.A2CRequest `yaml:"a2c"`
}

func readFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func loadOrDefaultRunRequest(path string, fallback estrainer.RunRequest) (estrainer.RunRequest, error) {
	if path == "" {
		return fallback, nil
	}
	cfg, err := readFileConfig(path)
	if err != nil {
		return estrainer.RunRequest{}, err
	}
	if cfg.ES == nil {
		return estrainer.RunRequest{}, fmt.Errorf("config %s has no es section", path)
	}
	return *cfg.ES, nil
}

func loadOrDefaultA2CRequest(path string, fallback estrainer.A2CRequest) (estrainer.A2CRequest, error) {
	if path == "" {
		return fallback, nil
	}
	cfg, err := readFileConfig(path)
	if err != nil {
		return estrainer.A2CRequest{}, err
	}
	if cfg.A2C == nil {
		return estrainer.A2CRequest{}, fmt.Errorf("config %s has no a2c section", path)
	}
	return *cfg.A2C, nil
}

func overrideRunRequest(req *estrainer.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "pop":
			req.Population = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "policy":
			req.Policy = v.(string)
		case "hidden":
			req.Hidden = v.(int)
		case "episode-seconds":
			req.EpisodeSeconds = v.(float64)
		case "dt":
			req.DT = v.(float64)
		case "sigma":
			req.Sigma = v.(float64)
		case "alpha":
			req.Alpha = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "workers":
			req.Workers = v.(int)
		case "goal-x":
			req.GoalX = v.(float64)
		case "goal-z":
			req.GoalZ = v.(float64)
		case "reward":
			req.Reward = v.(string)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

func overrideA2CRequest(req *estrainer.A2CRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "ticks":
			req.Ticks = v.(int)
		case "dt":
			req.DT = v.(float64)
		case "hidden":
			hidden, err := parseHidden(v.(string))
			if err != nil {
				return err
			}
			req.Hidden = hidden
		case "activation":
			req.Activation = v.(string)
		case "lr":
			req.LR = v.(float64)
		case "gamma":
			req.Gamma = v.(float64)
		case "entropy-beta":
			req.EntropyBeta = v.(float64)
		case "episode-seconds":
			req.EpisodeSeconds = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "goal-x":
			req.GoalX = v.(float64)
		case "goal-z":
			req.GoalZ = v.(float64)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

// parseHidden reads a comma separated list of layer widths such as "64,64".
func parseHidden(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid hidden layer width %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level: %s", name)
	}
	return level, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	if level == "" || level == "off" {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})), nil
	}
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
