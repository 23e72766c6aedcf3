package audit

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/grahame/gubinge/internal/port/outbound"
)

// NewSinkFromOutput builds the outbound.AuditSink named by output, one of
// "stdout", "file://<absolute-path>", or "sqlite://<absolute-path>".
// retentionDays and maxFileSizeMB only apply to the file:// sink, which
// writes its rotating files into the directory of the given path.
func NewSinkFromOutput(output string, retentionDays, maxFileSizeMB int, logger *slog.Logger) (outbound.AuditSink, error) {
	switch {
	case output == "stdout":
		return NewStdoutSink(logger), nil

	case strings.HasPrefix(output, "file://"):
		path := strings.TrimPrefix(output, "file://")
		if path == "" {
			return nil, fmt.Errorf("invalid audit file URI: %s", output)
		}
		return NewFileSink(FileConfig{
			Dir:           filepath.Dir(path),
			RetentionDays: retentionDays,
			MaxFileSizeMB: maxFileSizeMB,
		}, logger)

	case strings.HasPrefix(output, "sqlite://"):
		path := strings.TrimPrefix(output, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("invalid audit sqlite URI: %s", output)
		}
		return NewSQLiteSink(path)

	default:
		return nil, fmt.Errorf("invalid audit output: %s (must be 'stdout', 'file://path', or 'sqlite://path')", output)
	}
}
