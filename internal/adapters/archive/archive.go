// Package archive persists completed simulation runs to SQLite so aggregates
// and per-trial outcomes can be inspected after the process exits.
package archive

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/okian/dipole/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    state       TEXT NOT NULL,
    n_trials    INTEGER NOT NULL,
    included    INTEGER NOT NULL,
    failed      TEXT NOT NULL,          -- JSON array of trial indices
    step_ms     REAL NOT NULL,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trials (
    run_id     TEXT NOT NULL REFERENCES runs(id),
    trial_idx  INTEGER NOT NULL,
    status     TEXT NOT NULL,
    elapsed_ms REAL NOT NULL,
    err        TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, trial_idx)
);

CREATE TABLE IF NOT EXISTS aggregates (
    run_id   TEXT PRIMARY KEY REFERENCES runs(id),
    mean     BLOB NOT NULL,             -- little-endian float64 samples
    variance BLOB NOT NULL
);
`

// TrialRow is one per-trial outcome in a run record.
type TrialRow struct {
	TrialIdx  int
	Status    model.Status
	ElapsedMS float64
	Err       string
}

// RunRecord is everything the archive stores about one completed run.
type RunRecord struct {
	ID         string
	Name       string
	State      string
	NTrials    int
	Included   int
	Failed     []int
	StepMS     float64
	StartedAt  time.Time
	FinishedAt time.Time
	Mean       []float64
	Variance   []float64
	Trials     []TrialRow
}

// Archive is a SQLite-backed run store. Safe for concurrent use; writes are
// serialized on a single connection.
type Archive struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the archive database at path.
func Open(ctx context.Context, path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with a single writer

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the underlying database.
func (a *Archive) Close() error { return a.db.Close() }

// SaveRun persists one run record in a single transaction.
func (a *Archive) SaveRun(ctx context.Context, rec RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	failed, err := json.Marshal(rec.Failed)
	if err != nil {
		return fmt.Errorf("encode failed set: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, state, n_trials, included, failed, step_ms, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.State, rec.NTrials, rec.Included, string(failed), rec.StepMS,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range rec.Trials {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trials (run_id, trial_idx, status, elapsed_ms, err) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, t.TrialIdx, string(t.Status), t.ElapsedMS, t.Err,
		); err != nil {
			return fmt.Errorf("insert trial %d: %w", t.TrialIdx, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO aggregates (run_id, mean, variance) VALUES (?, ?, ?)`,
		rec.ID, encodeSeries(rec.Mean), encodeSeries(rec.Variance),
	); err != nil {
		return fmt.Errorf("insert aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// ListRuns returns all archived runs, newest first, without series data.
func (a *Archive) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, name, state, n_trials, included, failed, step_ms, started_at, finished_at
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun returns one archived run with its aggregate series and trial rows.
// Fails with ErrRunNotFound for an unknown id.
func (a *Archive) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id, name, state, n_trials, included, failed, step_ms, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, err
	}

	var mean, variance []byte
	err = a.db.QueryRowContext(ctx,
		`SELECT mean, variance FROM aggregates WHERE run_id = ?`, id).Scan(&mean, &variance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("load aggregate: %w", err)
	}
	rec.Mean = decodeSeries(mean)
	rec.Variance = decodeSeries(variance)

	rows, err := a.db.QueryContext(ctx,
		`SELECT trial_idx, status, elapsed_ms, err FROM trials WHERE run_id = ? ORDER BY trial_idx`, id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("load trials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t TrialRow
		var status string
		if err := rows.Scan(&t.TrialIdx, &status, &t.ElapsedMS, &t.Err); err != nil {
			return RunRecord{}, fmt.Errorf("scan trial: %w", err)
		}
		t.Status = model.Status(status)
		rec.Trials = append(rec.Trials, t)
	}
	return rec, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var failed, started, finished string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.State, &rec.NTrials, &rec.Included,
		&failed, &rec.StepMS, &started, &finished); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(failed), &rec.Failed); err != nil {
		return RunRecord{}, fmt.Errorf("decode failed set: %w", err)
	}
	var err error
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return RunRecord{}, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return RunRecord{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return rec, nil
}

func encodeSeries(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeSeries(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}
