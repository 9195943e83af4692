package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	AlgorithmES  = "es"
	AlgorithmA2C = "a2c"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Run describes one training run. It records configuration and outcome for
// reporting only; parameters are never persisted.
type Run struct {
	VersionedRecord
	ID          string    `json:"id"`
	Algorithm   string    `json:"algorithm"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	PolicyKind  string    `json:"policy_kind,omitempty"`
	InputDim    int       `json:"input_dim"`
	OutputDim   int       `json:"output_dim"`
	ParamCount  int       `json:"param_count"`
	Population  int       `json:"population,omitempty"`
	Sigma       float64   `json:"sigma,omitempty"`
	Alpha       float64   `json:"alpha,omitempty"`
	Seed        int64     `json:"seed"`
	Generations int       `json:"generations"`
	BestReward  float64   `json:"best_reward"`
}

// GenerationRecord is the summary of one finished ES generation.
type GenerationRecord struct {
	VersionedRecord
	RunID      string  `json:"run_id"`
	Generation int     `json:"generation"`
	Population int     `json:"population"`
	BestReward float64 `json:"best_reward"`
	MeanReward float64 `json:"mean_reward"`
	MinReward  float64 `json:"min_reward"`
	ThetaNorm  float64 `json:"theta_norm"`
}

// EpisodeRecord is the summary of one finished A2C episode.
type EpisodeRecord struct {
	VersionedRecord
	RunID      string  `json:"run_id"`
	Episode    int     `json:"episode"`
	Reward     float64 `json:"reward"`
	Steps      int     `json:"steps"`
	ActorLoss  float64 `json:"actor_loss"`
	CriticLoss float64 `json:"critic_loss"`
	Entropy    float64 `json:"entropy"`
}
