package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"boxonomics/pkg/logx"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// ToolCallRow is one entry of a run's tool-call trace.
type ToolCallRow struct {
	ToolName     string  `json:"tool_name"`
	ProviderName string  `json:"provider_name"`
	Outcome      string  `json:"outcome"`
	DurationMs   float64 `json:"duration_ms"`
}

// RunRecord is an archived orchestration run.
type RunRecord struct {
	CreatedAt  time.Time     `json:"created_at"`
	ID         string        `json:"id"`
	Query      string        `json:"query"`
	Answer     string        `json:"answer,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Model      string        `json:"model,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	ToolCalls  []ToolCallRow `json:"tool_calls"`
	Iterations int           `json:"iterations"`
	ElapsedMs  int64         `json:"elapsed_ms"`
}

// HistoryStore reads and writes the runs and run_tool_calls tables.
type HistoryStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewHistoryStore returns a store over an initialized history schema.
func NewHistoryStore(db *sql.DB, d Dialect) *HistoryStore {
	return &HistoryStore{db: db, dialect: d}
}

// OpenHistory opens a SQLite history database at path and initializes its schema.
func OpenHistory(ctx context.Context, path string) (*HistoryStore, error) {
	db, err := Open(ctx, DialectSQLite, SQLiteDSN(path, false))
	if err != nil {
		return nil, err
	}
	if err := InitializeHistorySchema(ctx, db, DialectSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewHistoryStore(db, DialectSQLite), nil
}

// Close closes the underlying database.
func (s *HistoryStore) Close() error {
	return s.db.Close() //nolint:wrapcheck // passthrough
}

// SaveRun inserts a run and its trace. A missing ID or timestamp is filled in.
func (s *HistoryStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO runs (id, query, answer, error, error_kind, iterations, elapsed_ms, model, transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Query, nullString(rec.Answer), nullString(rec.Error), nullString(rec.ErrorKind),
		rec.Iterations, rec.ElapsedMs, nullString(rec.Model), nullString(rec.Transcript), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.ID, err)
	}

	insertCall := s.dialect.Rebind(`
		INSERT INTO run_tool_calls (run_id, seq, tool_name, provider_name, outcome, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i := range rec.ToolCalls {
		c := &rec.ToolCalls[i]
		if _, err := tx.ExecContext(ctx, insertCall,
			rec.ID, i, c.ToolName, nullString(c.ProviderName), c.Outcome, c.DurationMs); err != nil {
			return fmt.Errorf("failed to insert tool call %d for run %s: %w", i, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", rec.ID, err)
	}
	return nil
}

const runColumns = "id, query, answer, error, error_kind, iterations, elapsed_ms, model, created_at"

func scanRun(row interface{ Scan(...any) error }) (*RunRecord, error) {
	var rec RunRecord
	var answer, errText, errKind, model sql.NullString
	if err := row.Scan(&rec.ID, &rec.Query, &answer, &errText, &errKind,
		&rec.Iterations, &rec.ElapsedMs, &model, &rec.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}
	rec.Answer = answer.String
	rec.Error = errText.String
	rec.ErrorKind = errKind.String
	rec.Model = model.String
	return &rec, nil
}

// RecentRuns returns up to limit runs, newest first, with their traces.
// Transcripts are omitted; use GetRun for the full record.
func (s *HistoryStore) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		s.dialect.Rebind("SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	var runs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	_ = rows.Close()

	for _, rec := range runs {
		if rec.ToolCalls, err = s.toolCalls(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// GetRun returns one run including its transcript.
func (s *HistoryStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.Rebind("SELECT "+runColumns+", transcript FROM runs WHERE id = ?"), id)
	var rec RunRecord
	var answer, errText, errKind, model, transcript sql.NullString
	err := row.Scan(&rec.ID, &rec.Query, &answer, &errText, &errKind,
		&rec.Iterations, &rec.ElapsedMs, &model, &rec.CreatedAt, &transcript)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	rec.Answer = answer.String
	rec.Error = errText.String
	rec.ErrorKind = errKind.String
	rec.Model = model.String
	rec.Transcript = transcript.String
	if rec.ToolCalls, err = s.toolCalls(ctx, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *HistoryStore) toolCalls(ctx context.Context, runID string) ([]ToolCallRow, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT tool_name, provider_name, outcome, duration_ms
		FROM run_tool_calls WHERE run_id = ? ORDER BY seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls for %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	calls := []ToolCallRow{}
	for rows.Next() {
		var (
			c        ToolCallRow
			provider sql.NullString
		)
		if err := rows.Scan(&c.ToolName, &provider, &c.Outcome, &c.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		c.ProviderName = provider.String
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool calls: %w", err)
	}
	return calls, nil
}

// Archiver writes runs on a background worker so callers never wait on the database.
type Archiver struct {
	store  *HistoryStore
	logger *logx.Logger
	queue  chan *RunRecord
	done   chan struct{}
	once   sync.Once
}

// NewArchiver starts the archive worker. Stop drains queued runs before returning.
func NewArchiver(store *HistoryStore, buffer int) *Archiver {
	if buffer <= 0 {
		buffer = 100
	}
	a := &Archiver{
		store:  store,
		logger: logx.NewLogger("archiver"),
		queue:  make(chan *RunRecord, buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Archiver) run() {
	defer close(a.done)
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.store.SaveRun(ctx, rec); err != nil {
			a.logger.Error("Failed to archive run %s: %v", rec.ID, err)
		} else {
			a.logger.Debug("Archived run %s (%d tool calls)", rec.ID, len(rec.ToolCalls))
		}
		cancel()
	}
}

// Archive queues a run. It is fire-and-forget: when the queue is full the run is dropped and logged.
func (a *Archiver) Archive(rec *RunRecord) {
	if a == nil || rec == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	defer func() {
		if recover() != nil {
			a.logger.Warn("Archiver stopped, dropping run %s", rec.ID)
		}
	}()
	select {
	case a.queue <- rec:
	default:
		a.logger.Warn("Archive queue full, dropping run %s", rec.ID)
	}
}

// Stop closes the queue and waits for pending writes.
func (a *Archiver) Stop() {
	if a == nil {
		return
	}
	a.once.Do(func() { close(a.queue) })
	<-a.done
}
