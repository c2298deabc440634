package trace

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// Reader queries a trace database written by a Recorder.
type Reader struct {
	*sql.DB
}

// Open opens an existing trace database file.
func Open(filename string) (*Reader, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("failed to open trace %s: %w", filename, err)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace %s: %w", filename, err)
	}

	return &Reader{DB: db}, nil
}

// Runs lists the run ids in the order they were first recorded.
func (r *Reader) Runs(ctx context.Context) ([]string, error) {
	rows, err := r.QueryContext(ctx,
		"SELECT RunID FROM "+CyclesTable+" GROUP BY RunID ORDER BY MIN(rowid)")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		runs = append(runs, id)
	}

	return runs, rows.Err()
}

// Cycles returns the cycles of a run, or of every run when runID is empty.
func (r *Reader) Cycles(runID string) ([]CycleRow, error) {
	query := "SELECT RunID, Cycle, Instructions, Stalls, Replenished, Narrative FROM " +
		CyclesTable
	rows, err := r.queryRun(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CycleRow
	for rows.Next() {
		var c CycleRow
		if err := rows.Scan(&c.RunID, &c.Cycle, &c.Instructions,
			&c.Stalls, &c.Replenished, &c.Narrative); err != nil {
			return nil, fmt.Errorf("failed to read cycles: %w", err)
		}
		result = append(result, c)
	}

	return result, rows.Err()
}

// Stalls returns the stalls of a run, or of every run when runID is empty.
func (r *Reader) Stalls(runID string) ([]StallRow, error) {
	query := "SELECT RunID, Cycle, InstructionID, Stage, Hazard FROM " + StallsTable
	rows, err := r.queryRun(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StallRow
	for rows.Next() {
		var s StallRow
		if err := rows.Scan(&s.RunID, &s.Cycle, &s.InstructionID,
			&s.Stage, &s.Hazard); err != nil {
			return nil, fmt.Errorf("failed to read stalls: %w", err)
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

// HazardCounts sums the stalls of a run per hazard name.
func (r *Reader) HazardCounts(runID string) (map[string]int, error) {
	stalls, err := r.Stalls(runID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, s := range stalls {
		counts[s.Hazard]++
	}

	return counts, nil
}

func (r *Reader) queryRun(query, runID string) (*sql.Rows, error) {
	args := []any{}
	if runID != "" {
		query += " WHERE RunID = ?"
		args = append(args, runID)
	}
	query += " ORDER BY rowid"

	rows, err := r.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace: %w", err)
	}

	return rows, nil
}
