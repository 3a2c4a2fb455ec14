package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quietfold/retain/internal/config"
	"github.com/quietfold/retain/internal/store"
)

// loadConfig resolves the config path (flag, then ~/.retain/retain.yaml) and
// loads it. Load never fails; it falls back to defaults with a warning.
func loadConfig() config.Config {
	path := configPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".retain", "retain.yaml")
		}
	}
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// openDB opens the configured database, falling back to the default path.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
