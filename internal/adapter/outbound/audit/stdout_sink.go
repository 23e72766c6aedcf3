package audit

import (
	"context"
	"log/slog"

	domainaudit "github.com/grahame/gubinge/internal/domain/audit"
	"github.com/grahame/gubinge/internal/port/outbound"
)

// StdoutSink records every audit event as a structured log line through
// an *slog.Logger, the simplest of the three sinks and the default when
// no audit output is configured.
type StdoutSink struct {
	logger *slog.Logger
}

// NewStdoutSink constructs a StdoutSink that logs through logger.
func NewStdoutSink(logger *slog.Logger) *StdoutSink {
	return &StdoutSink{logger: logger}
}

// Record implements outbound.AuditSink.
func (s *StdoutSink) Record(_ context.Context, rec domainaudit.Record) error {
	s.logger.Info("audit",
		"boot_id", rec.BootID,
		"conn_id", rec.ConnID,
		"seq", rec.Seq,
		"direction", rec.Direction,
		"opcode", rec.Opcode,
		"action", rec.Action,
		"timestamp", rec.Timestamp,
	)
	return nil
}

// Close implements outbound.AuditSink. There is nothing to release.
func (s *StdoutSink) Close() error {
	return nil
}

var _ outbound.AuditSink = (*StdoutSink)(nil)
