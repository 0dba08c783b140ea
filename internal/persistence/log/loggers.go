package log

import (
	"github.com/rs/zerolog"

	"dyewash.ai/internal/sim/bleach"
	"dyewash.ai/internal/sim/world"
)

// TickLogger records one entry per world tick; replay reads it back.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(runDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(runDir, TickStream)}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(runDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(runDir, AuditStream)}
}

func (l *AuditLogger) WriteAudit(v world.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }

// TransformLogger keeps a dedicated stream of fired transformations. It is a
// bleach.Recorder, so write errors are logged instead of returned.
type TransformLogger struct {
	w   *JSONLZstdWriter
	log zerolog.Logger
}

func NewTransformLogger(runDir string, logger zerolog.Logger) *TransformLogger {
	return &TransformLogger{w: NewJSONLZstdWriter(runDir, TransformStream), log: logger}
}

func (l *TransformLogger) RecordTransform(t bleach.Transform) {
	if err := l.w.Write(t); err != nil {
		l.log.Warn().Err(err).Str("item", t.ItemID).Msg("transform log write failed")
	}
}

func (l *TransformLogger) Close() error { return l.w.Close() }
