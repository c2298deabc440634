// Package trace stores simulated cycles in a SQLite database so that a run
// can be inspected after the fact.
package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/structs"
	"github.com/hashicorp/go-hclog"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/pipeviz/timing/core"
	"github.com/sarchlab/pipeviz/timing/driver"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

// Table names.
const (
	CyclesTable       = "cycles"
	StageEntriesTable = "stage_entries"
	StallsTable       = "stalls"
)

// ErrClosed is returned when recording into a closed recorder.
var ErrClosed = errors.New("recorder is closed")

// CycleRow is one simulated cycle.
type CycleRow struct {
	RunID        string
	Cycle        uint64
	Instructions int
	Stalls       int
	Replenished  bool
	Narrative    string
}

// StageEntryRow records an instruction entering a stage.
type StageEntryRow struct {
	RunID         string
	Cycle         uint64
	InstructionID uint64
	Name          string
	Stage         string
}

// StallRow records an instruction held in its stage by a hazard.
type StallRow struct {
	RunID         string
	Cycle         uint64
	InstructionID uint64
	Stage         string
	Hazard        string
}

// Option is a functional option for configuring the Recorder.
type Option func(*Recorder)

// WithBatchSize sets how many rows are buffered before they are written.
func WithBatchSize(n int) Option {
	return func(r *Recorder) {
		r.batchSize = n
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Recorder) {
		r.runID = id
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder buffers cycle reports and writes them to SQLite in batches. It
// can be attached to a driver as a hook.
type Recorder struct {
	*sql.DB

	mu        sync.Mutex
	dbName    string
	runID     string
	batchSize int
	logger    hclog.Logger
	closed    bool
	err       error

	cycles  []CycleRow
	entries []StageEntryRow
	stalls  []StallRow
}

// New creates a recorder writing to path + ".sqlite3". An empty path picks
// a unique name. The file must not exist yet.
func New(path string, opts ...Option) (*Recorder, error) {
	if path == "" {
		path = "pipeviz_trace_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	r, err := NewWithDB(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	r.dbName = filename
	r.logger.Info("trace database created", "file", filename, "run", r.runID)

	return r, nil
}

// NewWithDB creates a recorder on an open database.
func NewWithDB(db *sql.DB, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		DB:        db,
		runID:     xid.New().String(),
		batchSize: 1000,
		logger:    hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.createTables(); err != nil {
		return nil, err
	}

	atexit.Register(func() {
		if err := r.Flush(); err != nil && !errors.Is(err, ErrClosed) {
			r.logger.Error("failed to flush trace", "error", err)
		}
	})

	return r, nil
}

func (r *Recorder) createTables() error {
	tables := []struct {
		name   string
		sample any
	}{
		{CyclesTable, CycleRow{}},
		{StageEntriesTable, StageEntryRow{}},
		{StallsTable, StallRow{}},
	}

	for _, t := range tables {
		fields := strings.Join(structs.Names(t.sample), ", \n\t")
		query := `CREATE TABLE IF NOT EXISTS ` + t.name +
			` (` + "\n\t" + fields + "\n" + `);`

		if _, err := r.Exec(query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}

	return nil
}

// RunID identifies the rows written by this recorder.
func (r *Recorder) RunID() string {
	return r.runID
}

// Filename returns the database file, or an empty string for a recorder
// created on an existing connection.
func (r *Recorder) Filename() string {
	return r.dbName
}

// Func implements sim.Hook. Write errors are kept and returned by the next
// Flush or Close.
func (r *Recorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != driver.HookPosCycleEnd {
		return
	}

	report, ok := ctx.Item.(core.Report)
	if !ok {
		return
	}

	if err := r.Record(report); err != nil {
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// Record buffers the rows describing one cycle.
func (r *Recorder) Record(report core.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	stalls := 0
	for _, inst := range report.State.Instructions {
		for _, s := range pipeline.Stages() {
			record := inst.Stages[s]
			if record.Occupied && record.CycleEntered == report.Cycle {
				r.entries = append(r.entries, StageEntryRow{
					RunID:         r.runID,
					Cycle:         report.Cycle,
					InstructionID: inst.ID,
					Name:          inst.Name,
					Stage:         s.String(),
				})
			}
		}

		// The stall flag is cleared whenever an instruction advances, so a
		// flag seen after the cycle was set during it.
		current := inst.CurrentStage()
		if current != pipeline.StageNone && inst.Stages[current].Stalled {
			stalls++
			r.stalls = append(r.stalls, StallRow{
				RunID:         r.runID,
				Cycle:         report.Cycle,
				InstructionID: inst.ID,
				Stage:         current.String(),
				Hazard:        inst.Stages[current].Hazard.String(),
			})
		}
	}

	r.cycles = append(r.cycles, CycleRow{
		RunID:        r.runID,
		Cycle:        report.Cycle,
		Instructions: len(report.State.Instructions),
		Stalls:       stalls,
		Replenished:  report.Replenished,
		Narrative:    report.Narrative,
	})

	if r.pending() >= r.batchSize {
		return r.flush()
	}

	return nil
}

func (r *Recorder) pending() int {
	return len(r.cycles) + len(r.entries) + len(r.stalls)
}

// Flush writes all buffered rows in one transaction.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	if err := r.flush(); err != nil {
		return err
	}

	err := r.err
	r.err = nil
	return err
}

func (r *Recorder) flush() error {
	if r.pending() == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := insertRows(tx, CyclesTable, r.cycles); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertRows(tx, StageEntriesTable, r.entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertRows(tx, StallsTable, r.stalls); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace: %w", err)
	}

	r.logger.Debug("trace flushed",
		"cycles", len(r.cycles),
		"stage_entries", len(r.entries),
		"stalls", len(r.stalls))

	r.cycles = nil
	r.entries = nil
	r.stalls = nil

	return nil
}

func insertRows[T any](tx *sql.Tx, table string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	n := structs.Names(rows[0])
	for i := range n {
		n[i] = "?"
	}
	query := "INSERT INTO " + table + " VALUES (" + strings.Join(n, ", ") + ")"

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(structs.Values(row)...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	return nil
}

// Close flushes the buffered rows and closes the database.
func (r *Recorder) Close() error {
	flushErr := r.Flush()
	if errors.Is(flushErr, ErrClosed) {
		return nil
	}

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("failed to close trace database: %w", err)
	}

	return flushErr
}
