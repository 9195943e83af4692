package storage

import (
	"context"

	"estrainer/internal/model"
)

// Store persists training run history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, bool, error)
	// ListRuns returns runs newest first; limit <= 0 returns all of them.
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	AppendGeneration(ctx context.Context, record model.GenerationRecord) error
	GetGenerations(ctx context.Context, runID string) ([]model.GenerationRecord, bool, error)
	AppendEpisode(ctx context.Context, record model.EpisodeRecord) error
	GetEpisodes(ctx context.Context, runID string) ([]model.EpisodeRecord, bool, error)
}
