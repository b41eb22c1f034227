package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/config"
	"github.com/quantleap/quantd/internal/database"
)

// InitializeDatabases opens and migrates the three databases under the
// data directory. On any failure the already-opened handles are closed.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.Profile
		target  **database.DB
	}{
		{"market", database.ProfileStandard, &container.MarketDB},
		{"jobs", database.ProfileLedger, &container.JobsDB},
		{"cache", database.ProfileCache, &container.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath(spec.name),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to open %s database: %w", spec.name, err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}
		*spec.target = db

		log.Info().
			Str("database", spec.name).
			Str("profile", string(spec.profile)).
			Str("path", cfg.DatabasePath(spec.name)).
			Msg("Database ready")
	}

	return container, nil
}
