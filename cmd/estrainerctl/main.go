package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"estrainer/internal/model"
	"estrainer/internal/monitor"
	"estrainer/internal/storage"
	estrainer "estrainer/pkg/estrainer"
)

const defaultDBPath = "estrainer.db"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "train":
		return runTrain(ctx, args[1:])
	case "a2c":
		return runA2C(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "generations":
		return runGenerations(ctx, args[1:])
	case "episodes":
		return runEpisodes(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: estrainerctl <init|train|a2c|runs|generations|episodes> [flags]", msg)
}

type storeFlags struct {
	kind   *string
	dbPath *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:   fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath: fs.String("db-path", defaultDBPath, "sqlite database path"),
	}
}

func (s storeFlags) open(ctx context.Context, opts estrainer.Options) (*estrainer.Client, error) {
	opts.StoreKind = *s.kind
	opts.DBPath = *s.dbPath
	client, err := estrainer.New(opts)
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.open(ctx, estrainer.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Printf("initialized store=%s\n", *store.kind)
	return nil
}

// monitorServer streams run events to websocket clients at /ws while a
// training command is running.
type monitorServer struct {
	hub    *monitor.Hub
	server *http.Server
	addr   string
}

func startMonitor(addr string, logger *slog.Logger) (*monitorServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("monitor listen: %w", err)
	}
	hub := monitor.NewHub(logger)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitor server stopped", "error", err)
		}
	}()
	logger.Info("monitor listening", "addr", ln.Addr().String())
	return &monitorServer{hub: hub, server: srv, addr: ln.Addr().String()}, nil
}

func (m *monitorServer) shutdown() {
	m.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.server.Shutdown(ctx)
}

func clientOptions(monitorAddr, logLevel string) (estrainer.Options, func(), error) {
	logger, err := newLogger(os.Stderr, logLevel)
	if err != nil {
		return estrainer.Options{}, nil, err
	}
	opts := estrainer.Options{Logger: logger}
	cleanup := func() {}
	if monitorAddr != "" {
		mon, err := startMonitor(monitorAddr, logger)
		if err != nil {
			return estrainer.Options{}, nil, err
		}
		opts.Publisher = mon.hub
		cleanup = mon.shutdown
	}
	return opts, cleanup, nil
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config path (es section)")
	population := fs.Int("pop", 16, "population size, rounded up to even")
	generations := fs.Int("gens", 50, "generation count")
	policyKind := fs.String("policy", "linear", "policy kind: linear|mlp")
	hidden := fs.Int("hidden", 0, "hidden width for the mlp policy (0 uses default)")
	episodeSeconds := fs.Float64("episode-seconds", 3, "episode time budget in seconds")
	dt := fs.Float64("dt", 0.02, "simulation step in seconds")
	sigma := fs.Float64("sigma", 0.1, "noise standard deviation")
	alpha := fs.Float64("alpha", 0.05, "learning rate")
	seed := fs.Int64("seed", 1, "rng seed")
	workers := fs.Int("workers", 1, "worker count for stepping runners")
	goalX := fs.Float64("goal-x", 0, "goal x coordinate")
	goalZ := fs.Float64("goal-z", 0, "goal z coordinate")
	reward := fs.String("reward", "distance", "reward: distance|shaped_goal|sphere_area")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	monitorAddr := fs.String("monitor-addr", "", "serve websocket run events on this address (empty disables)")
	logLevel := fs.String("log-level", "off", "log level: off|debug|info|warn|error")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath, estrainer.RunRequest{
		Population:     *population,
		Generations:    *generations,
		Policy:         *policyKind,
		Hidden:         *hidden,
		EpisodeSeconds: *episodeSeconds,
		DT:             *dt,
		Sigma:          *sigma,
		Alpha:          *alpha,
		Seed:           *seed,
		Workers:        *workers,
		GoalX:          *goalX,
		GoalZ:          *goalZ,
		Reward:         *reward,
	})
	if err != nil {
		return err
	}
	if *configPath != "" {
		err := overrideRunRequest(&req, setFlags, map[string]any{
			"pop":             *population,
			"gens":            *generations,
			"policy":          *policyKind,
			"hidden":          *hidden,
			"episode-seconds": *episodeSeconds,
			"dt":              *dt,
			"sigma":           *sigma,
			"alpha":           *alpha,
			"seed":            *seed,
			"workers":         *workers,
			"goal-x":          *goalX,
			"goal-z":          *goalZ,
			"reward":          *reward,
		})
		if err != nil {
			return err
		}
	}

	opts, cleanup, err := clientOptions(*monitorAddr, *logLevel)
	if err != nil {
		return err
	}
	defer cleanup()
	client, err := store.open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.TrainES(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Printf("run completed run_id=%s policy=%s pop=%d gens=%d seed=%d params=%d\n",
		summary.RunID, req.Policy, req.Population, req.Generations, req.Seed, summary.ParamCount)
	for i := range summary.BestByGeneration {
		fmt.Printf("generation=%d best=%.6f mean=%.6f\n", i, summary.BestByGeneration[i], summary.MeanByGeneration[i])
	}
	fmt.Printf("final_best_reward=%.6f\n", summary.FinalBestReward)
	return nil
}

func runA2C(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("a2c", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config path (a2c section)")
	ticks := fs.Int("ticks", 5000, "simulation ticks")
	dt := fs.Float64("dt", 0.02, "simulation step in seconds")
	hidden := fs.String("hidden", "64,64", "comma separated hidden layer widths")
	activation := fs.String("activation", "relu", "hidden activation: identity|relu|sigmoid|tanh")
	lr := fs.Float64("lr", 3e-4, "adam learning rate")
	gamma := fs.Float64("gamma", 0.99, "discount factor")
	entropyBeta := fs.Float64("entropy-beta", 0.01, "entropy bonus coefficient")
	episodeSeconds := fs.Float64("episode-seconds", 10, "episode time budget in seconds")
	seed := fs.Int64("seed", 1, "rng seed")
	goalX := fs.Float64("goal-x", 0, "goal x coordinate")
	goalZ := fs.Float64("goal-z", 0, "goal z coordinate")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	monitorAddr := fs.String("monitor-addr", "", "serve websocket run events on this address (empty disables)")
	logLevel := fs.String("log-level", "off", "log level: off|debug|info|warn|error")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	layers, err := parseHidden(*hidden)
	if err != nil {
		return err
	}
	req, err := loadOrDefaultA2CRequest(*configPath, estrainer.A2CRequest{
		Ticks:          *ticks,
		DT:             *dt,
		Hidden:         layers,
		Activation:     *activation,
		LR:             *lr,
		Gamma:          *gamma,
		EntropyBeta:    *entropyBeta,
		EpisodeSeconds: *episodeSeconds,
		Seed:           *seed,
		GoalX:          *goalX,
		GoalZ:          *goalZ,
	})
	if err != nil {
		return err
	}
	if *configPath != "" {
		err := overrideA2CRequest(&req, setFlags, map[string]any{
			"ticks":           *ticks,
			"dt":              *dt,
			"hidden":          *hidden,
			"activation":      *activation,
			"lr":              *lr,
			"gamma":           *gamma,
			"entropy-beta":    *entropyBeta,
			"episode-seconds": *episodeSeconds,
			"seed":            *seed,
			"goal-x":          *goalX,
			"goal-z":          *goalZ,
		})
		if err != nil {
			return err
		}
	}

	opts, cleanup, err := clientOptions(*monitorAddr, *logLevel)
	if err != nil {
		return err
	}
	defer cleanup()
	client, err := store.open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.TrainA2C(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Printf("run completed run_id=%s ticks=%d seed=%d episodes=%d updates=%d\n",
		summary.RunID, req.Ticks, req.Seed, summary.Episodes, summary.Updates)
	fmt.Printf("mean_episode_reward=%.6f best_episode_reward=%.6f\n", summary.MeanReward, summary.BestEpisodeSum)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	algorithm := fs.String("algorithm", "", "filter by algorithm: es|a2c")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	switch *algorithm {
	case "", model.AlgorithmES, model.AlgorithmA2C:
	default:
		return fmt.Errorf("unknown algorithm: %s", *algorithm)
	}

	client, err := store.open(ctx, estrainer.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, estrainer.RunsRequest{Limit: *limit, Algorithm: *algorithm})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s algorithm=%s status=%s created_at=%s seed=%d pop=%d gens=%d best_reward=%.6f\n",
			item.RunID, item.Algorithm, item.Status, item.CreatedAtUTC, item.Seed, item.Population, item.Generations, item.BestReward)
	}
	return nil
}

func parseHistoryFlags(name string, args []string) (estrainer.HistoryRequest, storeFlags, bool, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 0, "max records to show (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit records as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return estrainer.HistoryRequest{}, store, false, err
	}
	return estrainer.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit}, store, *jsonOut, nil
}

func runGenerations(ctx context.Context, args []string) error {
	req, store, jsonOut, err := parseHistoryFlags("generations", args)
	if err != nil {
		return err
	}
	client, err := store.open(ctx, estrainer.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, err := client.Generations(ctx, req)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(records)
	}
	for _, r := range records {
		fmt.Printf("generation=%d pop=%d best=%.6f mean=%.6f min=%.6f theta_norm=%.6f\n",
			r.Generation, r.Population, r.BestReward, r.MeanReward, r.MinReward, r.ThetaNorm)
	}
	return nil
}

func runEpisodes(ctx context.Context, args []string) error {
	req, store, jsonOut, err := parseHistoryFlags("episodes", args)
	if err != nil {
		return err
	}
	client, err := store.open(ctx, estrainer.Options{})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	records, err := client.Episodes(ctx, req)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(records)
	}
	for _, r := range records {
		fmt.Printf("episode=%d steps=%d reward=%.6f actor_loss=%.6f critic_loss=%.6f entropy=%.6f\n",
			r.Episode, r.Steps, r.Reward, r.ActorLoss, r.CriticLoss, r.Entropy)
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
