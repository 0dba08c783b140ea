package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"dyewash.ai/internal/persistence/indexdb"
	"dyewash.ai/internal/sim/catalogs"
	"dyewash.ai/internal/sim/tuning"
	"dyewash.ai/internal/sim/world"
)

// IndexFile is the index path inside a run directory. Ticks restart at 0 every run,
// so each run gets its own index.
const IndexFile = "index.sqlite"

// openIndex opens the read-model index. It never affects simulation determinism.
func openIndex(runDir, backend string, logger zerolog.Logger) (*indexdb.SQLiteIndex, error) {
	switch backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(runDir, IndexFile), logger)
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}

func upsertCatalog(idx *indexdb.SQLiteIndex, profile catalogs.Profile, cat *catalogs.MaterialCatalog, tune tuning.Tuning, logger zerolog.Logger) {
	if idx == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.UpsertCatalog(ctx, profile, cat, tune); err != nil {
		logger.Warn().Err(err).Msg("index: upsert catalog")
	}
}

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var first error
	for _, l := range m {
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var first error
	for _, l := range m {
		if err := l.WriteAudit(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
