// Package store persists pipeline runs, their phase audit trail, scored
// regions, and fitted models behind a driver-neutral interface.
package store

import (
	"context"
	"time"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one batch pipeline execution.
type Run struct {
	ID            string     `json:"id"`
	Status        RunStatus  `json:"status"`
	Contamination float64    `json:"contamination"`
	Regions       int        `json:"regions"`
	Critical      int        `json:"critical"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Phase is one step of a run's state machine (raw, featured, scored,
// explained).
type Phase struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Store defines the persistence interface for the audit pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, contamination float64) (*Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus, regions, critical int, errMsg string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context, status RunStatus) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Phases
	StartPhase(ctx context.Context, runID, name string) (*Phase, error)
	EndPhase(ctx context.Context, phaseID, status string) error

	// Scored regions
	SaveRegions(ctx context.Context, runID string, regions []audit.ScoredRegion) error
	GetRegions(ctx context.Context, runID string) ([]audit.ScoredRegion, error)

	// Fitted models, keyed by a stable identifier per pipeline version
	SaveModel(ctx context.Context, id string, data []byte) error
	GetModel(ctx context.Context, id string) ([]byte, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
