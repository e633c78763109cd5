package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	contamination REAL NOT NULL,
	regions       INTEGER NOT NULL DEFAULT 0,
	critical      INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	started_at DATETIME NOT NULL,
	ended_at   DATETIME
);

CREATE TABLE IF NOT EXISTS scored_regions (
	run_id              TEXT NOT NULL REFERENCES runs(id),
	pincode             TEXT NOT NULL,
	state               TEXT NOT NULL DEFAULT '',
	district            TEXT NOT NULL DEFAULT '',
	adult_spike_ratio   REAL NOT NULL,
	velocity_index      REAL NOT NULL,
	ghost_ratio         REAL NOT NULL,
	anomaly_label       TEXT NOT NULL,
	anomaly_score       REAL NOT NULL,
	primary_risk_factor TEXT NOT NULL,
	PRIMARY KEY (run_id, pincode)
);

CREATE TABLE IF NOT EXISTS models (
	id        TEXT PRIMARY KEY,
	data      BLOB NOT NULL,
	fitted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_scored_regions_label ON scored_regions(run_id, anomaly_label);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, contamination float64) (*Run, error) {
	run := &Run{
		ID:            uuid.New().String(),
		Status:        RunStatusRunning,
		Contamination: contamination,
		StartedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, contamination, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Contamination, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, regions, critical int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, regions = ?, critical = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), regions, critical, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, contamination, regions, critical, error, started_at, finished_at
		 FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) LatestRun(ctx context.Context, status RunStatus) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, contamination, regions, critical, error, started_at, finished_at
		 FROM runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`, string(status))
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, contamination, regions, critical, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) StartPhase(ctx context.Context, runID, name string) (*Phase, error) {
	p := &Phase{
		ID:        uuid.New().String(),
		RunID:     runID,
		Name:      name,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.RunID, p.Name, p.Status, p.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase %s", name)
	}
	return p, nil
}

func (s *SQLiteStore) EndPhase(ctx context.Context, phaseID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_phases SET status = ?, ended_at = ? WHERE id = ?`,
		status, time.Now().UTC(), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: end phase %s", phaseID)
	}
	return checkRowsAffected(res, "phase", phaseID)
}

func (s *SQLiteStore) SaveRegions(ctx context.Context, runID string, regions []audit.ScoredRegion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save regions")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scored_regions
		 (run_id, pincode, state, district, adult_spike_ratio, velocity_index, ghost_ratio,
		  anomaly_label, anomaly_score, primary_risk_factor)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save regions")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range regions {
		if _, err := stmt.ExecContext(ctx,
			runID, r.Pincode, r.State, r.District,
			r.AdultSpikeRatio, r.VelocityIndex, r.GhostRatio,
			string(r.AnomalyLabel), r.AnomalyScore, r.PrimaryRiskFactor,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert region %s", r.Pincode)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save regions")
}

func (s *SQLiteStore) GetRegions(ctx context.Context, runID string) ([]audit.ScoredRegion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pincode, state, district, adult_spike_ratio, velocity_index, ghost_ratio,
		        anomaly_label, anomaly_score, primary_risk_factor
		 FROM scored_regions WHERE run_id = ? ORDER BY pincode`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get regions")
	}
	defer rows.Close() //nolint:errcheck

	var regions []audit.ScoredRegion
	for rows.Next() {
		var r audit.ScoredRegion
		var label string
		if err := rows.Scan(
			&r.Pincode, &r.State, &r.District,
			&r.AdultSpikeRatio, &r.VelocityIndex, &r.GhostRatio,
			&label, &r.AnomalyScore, &r.PrimaryRiskFactor,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		r.AnomalyLabel = audit.Label(label)
		regions = append(regions, r)
	}
	return regions, eris.Wrap(rows.Err(), "sqlite: get regions")
}

func (s *SQLiteStore) SaveModel(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO models (id, data, fitted_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, fitted_at = excluded.fitted_at`,
		id, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save model %s", id)
}

func (s *SQLiteStore) GetModel(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM models WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: model %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get model %s", id)
	}
	return data, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var status string
	var finished sql.NullTime
	err := row.Scan(&r.ID, &status, &r.Contamination, &r.Regions, &r.Critical, &r.Error, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.New("store: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}
	r.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "store: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("store: %s %s not found", kind, id)
	}
	return nil
}
