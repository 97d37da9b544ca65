// Package ledger keeps a queryable record of every exchange in a run.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"chatprobe/internal/chat"
)

// Entry is one recorded exchange.
type Entry struct {
	RunID     string
	Worker    string
	Question  string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   string
	Answer    string
	Error     string
}

// Store writes exchanges to a SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
	runID  string
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open creates or opens the ledger at dbPath. Every entry written through
// the store is tagged with runID.
func Open(dbPath, runID string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Workers write concurrently; one connection serializes them.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath, runID: runID, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) initSchema() error {
	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		worker TEXT NOT NULL,
		question TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		answer TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_run ON exchanges(run_id);
	CREATE INDEX IF NOT EXISTS idx_exchanges_outcome ON exchanges(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts an entry. Writes after Close are dropped.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (run_id, worker, question, started_at, duration_ms, outcome, answer, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Worker, e.Question, e.StartedAt.UTC(), e.Duration.Milliseconds(), e.Outcome, e.Answer, e.Error,
	)
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

// ExchangeFinished records a finished exchange for this run.
func (s *Store) ExchangeFinished(worker string, ex *chat.Exchange, err error) {
	e := Entry{
		RunID:   s.runID,
		Worker:  worker,
		Outcome: chat.Outcome(err),
	}
	if ex != nil {
		e.Question = ex.Question
		e.StartedAt = ex.Started
		e.Duration = ex.Duration()
		e.Answer = ex.Answer
	}
	if err != nil {
		e.Error = err.Error()
	}
	if rerr := s.Record(context.Background(), e); rerr != nil {
		s.log.Warn("ledger write failed", zap.String("worker", worker), zap.Error(rerr))
	}
}

// Summary counts the run's exchanges by outcome.
func (s *Store) Summary(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM exchanges WHERE run_id = ? GROUP BY outcome`, s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// Entries returns the run's entries in insertion order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, worker, question, started_at, duration_ms, outcome, COALESCE(answer, ''), COALESCE(error, '')
		FROM exchanges WHERE run_id = ? ORDER BY id`, s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.RunID, &e.Worker, &e.Question, &e.StartedAt, &ms, &e.Outcome, &e.Answer, &e.Error); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
