// Package audit keeps an append-only SQLite log of completed
// exchanges. It is observability only: failures are logged and
// swallowed so a broken audit database never blocks replies.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry records one completed exchange.
type Entry struct {
	Channel            string
	UserMessageID      string
	AssistantMessageID string
	Platform           string
	LatencyMs          int64
	// ReceivedAt is when the triggering message arrived; zero means
	// "now".
	ReceivedAt time.Time
}

// Log is a SQLite-backed exchange journal.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Log, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create audit directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open audit database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Log{db: db, logger: logger}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit migration failed: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		channel              TEXT NOT NULL,
		user_message_id      TEXT NOT NULL,
		assistant_message_id TEXT NOT NULL,
		platform             TEXT NOT NULL,
		latency_ms           INTEGER DEFAULT 0,
		created_at           DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_time ON exchanges(created_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record appends one exchange. Errors are logged, not returned.
func (l *Log) Record(ctx context.Context, e Entry) {
	if l == nil {
		return
	}
	createdAt := e.ReceivedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO exchanges (channel, user_message_id, assistant_message_id, platform, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Channel, e.UserMessageID, e.AssistantMessageID, e.Platform, e.LatencyMs, createdAt,
	)
	if err != nil {
		l.logger.Warn("audit record failed", "err", err)
	}
}

// Count returns the number of recorded exchanges. Used by the status
// command.
func (l *Log) Count(ctx context.Context) (int64, error) {
	if l == nil {
		return 0, nil
	}
	var n int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n)
	return n, err
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
