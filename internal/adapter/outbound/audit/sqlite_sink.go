package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	domainaudit "github.com/grahame/gubinge/internal/domain/audit"
	"github.com/grahame/gubinge/internal/port/outbound"
)

// SQLiteSink implements outbound.AuditSink by inserting one row per
// audit.Record into a local sqlite database, for operators who want
// queryable audit history without standing up a separate store.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if necessary) the sqlite database at
// dbPath and ensures its audit_events table exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create audit database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	const query = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		boot_id TEXT NOT NULL,
		conn_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		direction TEXT NOT NULL,
		opcode TEXT NOT NULL,
		action TEXT NOT NULL,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_events_conn ON audit_events(boot_id, conn_id, seq);
	`
	_, err := s.db.Exec(query)
	return err
}

// Record implements outbound.AuditSink.
func (s *SQLiteSink) Record(ctx context.Context, rec domainaudit.Record) error {
	const query = `
	INSERT INTO audit_events (boot_id, conn_id, seq, direction, opcode, action, ts)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.BootID, rec.ConnID, rec.Seq, rec.Direction, rec.Opcode, rec.Action,
		rec.Timestamp.UTC().UnixNano()/int64(time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Close implements outbound.AuditSink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ outbound.AuditSink = (*SQLiteSink)(nil)
