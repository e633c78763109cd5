package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/drishti-labs/drishti-cli/internal/forest"
	"github.com/drishti-labs/drishti-cli/internal/store"
)

// initStore opens the configured store backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// forestConfig builds the detector config from configuration, with an
// optional contamination override from a command flag.
func forestConfig(contaminationFlag float64) forest.Config {
	fc := forest.Config{
		Trees:         cfg.Score.Estimators,
		Subsample:     cfg.Score.Subsample,
		Contamination: cfg.Score.Contamination,
		Seed:          cfg.Score.Seed,
	}
	if contaminationFlag > 0 {
		fc.Contamination = contaminationFlag
	}
	return fc
}
