package store

import (
	"fmt"

	"github.com/besafe/digital-sister/internal/config"
	"github.com/besafe/digital-sister/internal/domain"
)

// Open returns the store selected by cfg.StorageBackend.
func Open(cfg config.Config) (domain.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.DatabaseURL)
	case config.StorageFile:
		return NewFileStore(cfg.ReportsFile)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
