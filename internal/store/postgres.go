package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// Pool is the subset of pgxpool.Pool the store uses. Satisfied by both
// *pgxpool.Pool and pgxmock pools.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	contamination DOUBLE PRECISION NOT NULL,
	regions       INTEGER NOT NULL DEFAULT 0,
	critical      INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scored_regions (
	run_id              TEXT NOT NULL REFERENCES runs(id),
	pincode             TEXT NOT NULL,
	state               TEXT NOT NULL DEFAULT '',
	district            TEXT NOT NULL DEFAULT '',
	adult_spike_ratio   DOUBLE PRECISION NOT NULL,
	velocity_index      DOUBLE PRECISION NOT NULL,
	ghost_ratio         DOUBLE PRECISION NOT NULL,
	anomaly_label       TEXT NOT NULL,
	anomaly_score       DOUBLE PRECISION NOT NULL,
	primary_risk_factor TEXT NOT NULL,
	PRIMARY KEY (run_id, pincode)
);

CREATE TABLE IF NOT EXISTS models (
	id        TEXT PRIMARY KEY,
	data      BYTEA NOT NULL,
	fitted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_scored_regions_label ON scored_regions(run_id, anomaly_label);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, contamination float64) (*Run, error) {
	run := &Run{
		ID:            uuid.New().String(),
		Status:        RunStatusRunning,
		Contamination: contamination,
		StartedAt:     time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, contamination, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.Contamination, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status RunStatus, regions, critical int, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, regions = $2, critical = $3, error = $4, finished_at = $5 WHERE id = $6`,
		string(status), regions, critical, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, contamination, regions, critical, error, started_at, finished_at
		 FROM runs WHERE id = $1`, runID)
	return scanPGRun(row)
}

func (s *PostgresStore) LatestRun(ctx context.Context, status RunStatus) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, contamination, regions, critical, error, started_at, finished_at
		 FROM runs WHERE status = $1 ORDER BY started_at DESC LIMIT 1`, string(status))
	return scanPGRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, contamination, regions, critical, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) StartPhase(ctx context.Context, runID, name string) (*Phase, error) {
	p := &Phase{
		ID:        uuid.New().String(),
		RunID:     runID,
		Name:      name,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.RunID, p.Name, p.Status, p.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase %s", name)
	}
	return p, nil
}

func (s *PostgresStore) EndPhase(ctx context.Context, phaseID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_phases SET status = $1, ended_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: end phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: phase %s not found", phaseID)
	}
	return nil
}

func (s *PostgresStore) SaveRegions(ctx context.Context, runID string, regions []audit.ScoredRegion) error {
	rows := make([][]any, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, []any{
			runID, r.Pincode, r.State, r.District,
			r.AdultSpikeRatio, r.VelocityIndex, r.GhostRatio,
			string(r.AnomalyLabel), r.AnomalyScore, r.PrimaryRiskFactor,
		})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"scored_regions"},
		[]string{"run_id", "pincode", "state", "district", "adult_spike_ratio", "velocity_index",
			"ghost_ratio", "anomaly_label", "anomaly_score", "primary_risk_factor"},
		pgx.CopyFromRows(rows),
	)
	return eris.Wrap(err, "postgres: copy regions")
}

func (s *PostgresStore) GetRegions(ctx context.Context, runID string) ([]audit.ScoredRegion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pincode, state, district, adult_spike_ratio, velocity_index, ghost_ratio,
		        anomaly_label, anomaly_score, primary_risk_factor
		 FROM scored_regions WHERE run_id = $1 ORDER BY pincode`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get regions")
	}
	defer rows.Close()

	var regions []audit.ScoredRegion
	for rows.Next() {
		var r audit.ScoredRegion
		var label string
		if err := rows.Scan(
			&r.Pincode, &r.State, &r.District,
			&r.AdultSpikeRatio, &r.VelocityIndex, &r.GhostRatio,
			&label, &r.AnomalyScore, &r.PrimaryRiskFactor,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		r.AnomalyLabel = audit.Label(label)
		regions = append(regions, r)
	}
	return regions, eris.Wrap(rows.Err(), "postgres: get regions")
}

func (s *PostgresStore) SaveModel(ctx context.Context, id string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO models (id, data, fitted_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, fitted_at = EXCLUDED.fitted_at`,
		id, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save model %s", id)
}

func (s *PostgresStore) GetModel(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM models WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: model %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get model %s", id)
	}
	return data, nil
}

// pgScanner covers pgx.Row and pgx.Rows.
type pgScanner interface {
	Scan(dest ...any) error
}

func scanPGRun(row pgScanner) (*Run, error) {
	var r Run
	var status string
	var finished *time.Time
	err := row.Scan(&r.ID, &status, &r.Contamination, &r.Regions, &r.Critical, &r.Error, &r.StartedAt, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("store: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}
	r.Status = RunStatus(status)
	r.FinishedAt = finished
	return &r, nil
}
