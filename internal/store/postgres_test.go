package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), string(RunStatusRunning), 0.05, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), 0.05)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Equal(t, 0.05, run.Contamination)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs(string(RunStatusComplete), 12, 3, "", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishRun(context.Background(), "run-1", RunStatusComplete, 12, 3, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs(string(RunStatusFailed), 0, 0, "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing", RunStatusFailed, 0, 0, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Now().UTC()
	finished := started.Add(time.Minute)
	mock.ExpectQuery(`SELECT id, status, contamination, regions, critical, error, started_at, finished_at\s+FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "contamination", "regions", "critical", "error", "started_at", "finished_at",
		}).AddRow("run-1", string(RunStatusComplete), 0.01, 40, 2, "", started, &finished))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, RunStatusComplete, run.Status)
	assert.Equal(t, 40, run.Regions)
	assert.Equal(t, 2, run.Critical)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finished, *run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, contamination`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE status = \$1 ORDER BY started_at DESC LIMIT 1`).
		WithArgs(string(RunStatusComplete)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LatestRun(context.Background(), RunStatusComplete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRegions_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"scored_regions"}, []string{
		"run_id", "pincode", "state", "district", "adult_spike_ratio", "velocity_index",
		"ghost_ratio", "anomaly_label", "anomaly_score", "primary_risk_factor",
	}).WillReturnResult(2)

	regions := []audit.ScoredRegion{
		{
			FeatureVector: audit.FeatureVector{Pincode: "110001", AdultSpikeRatio: 0.5, VelocityIndex: 120, GhostRatio: 2.9},
			AnomalyLabel:  audit.LabelCritical, AnomalyScore: -0.12,
			PrimaryRiskFactor: audit.FeatureGhostRatio,
		},
		{
			FeatureVector: audit.FeatureVector{Pincode: "400001", AdultSpikeRatio: 0.2, VelocityIndex: 14, GhostRatio: 0.4},
			AnomalyLabel:  audit.LabelNormal, AnomalyScore: 0.08,
			PrimaryRiskFactor: audit.FeatureAdultSpikeRatio,
		},
	}
	err := s.SaveRegions(context.Background(), "run-1", regions)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRegions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM scored_regions WHERE run_id = \$1 ORDER BY pincode`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"pincode", "state", "district", "adult_spike_ratio", "velocity_index",
			"ghost_ratio", "anomaly_label", "anomaly_score", "primary_risk_factor",
		}).AddRow("110001", "Delhi", "New Delhi", 0.59, 120.0, 2.9,
			string(audit.LabelCritical), -0.12, audit.FeatureGhostRatio))

	regions, err := s.GetRegions(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "110001", regions[0].Pincode)
	assert.Equal(t, audit.LabelCritical, regions[0].AnomalyLabel)
	assert.Equal(t, audit.FeatureGhostRatio, regions[0].PrimaryRiskFactor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveModel_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("isolation-forest-v1", []byte("blob"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveModel(context.Background(), "isolation-forest-v1", []byte("blob"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetModel(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM models WHERE id = \$1`).
		WithArgs("isolation-forest-v1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte("blob")))

	data, err := s.GetModel(context.Background(), "isolation-forest-v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetModel_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM models WHERE id = \$1`).
		WithArgs("missing-model").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetModel(context.Background(), "missing-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EndPhase_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE run_phases SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "missing-phase").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.EndPhase(context.Background(), "missing-phase", "failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
