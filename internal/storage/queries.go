package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zheng/sprocmap/internal/graph"
)

// RunKind tells which command produced a saved run
type RunKind string

const (
	RunKindMap       RunKind = "map"
	RunKindFunctions RunKind = "functions"
)

// Run is one saved analysis
type Run struct {
	ID           int64     `json:"id"`
	Kind         RunKind   `json:"kind"`
	Root         string    `json:"root"`
	FunctionsDir string    `json:"functions_dir,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Nodes        int       `json:"nodes"`
	Functions    int       `json:"functions"`
}

// ErrRunNotFound is returned when a run ID does not exist
var ErrRunNotFound = errors.New("run not found")

// SaveTree stores a call tree as a new run and returns the run ID
func (db *DB) SaveTree(kind RunKind, functionsDir string, root *graph.Node) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO runs (kind, root, functions_dir, created_at) VALUES (?, ?, ?, ?)`,
		kind, root.FilePath, functionsDir, db.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertNode(tx, runID, sql.NullInt64{}, 0, root); err != nil {
		return 0, err
	}

	return runID, tx.Commit()
}

// insertNode writes n and its subtree in pre-order, so ids follow tree order
func insertNode(tx *sql.Tx, runID int64, parentID sql.NullInt64, position int, n *graph.Node) error {
	result, err := tx.Exec(
		`INSERT INTO nodes (run_id, parent_id, position, file, name, target, depth, cycle)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, parentID, position, n.FilePath, n.Name(), n.Target(), n.Depth(), n.CycleClosure,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node %s: %w", n.FilePath, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	for i, child := range n.Children {
		if err := insertNode(tx, runID, sql.NullInt64{Int64: id, Valid: true}, i, child); err != nil {
			return err
		}
	}
	return nil
}

// SaveFunctions stores the inventory result of a run
func (db *DB) SaveFunctions(runID int64, names []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range names {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO functions (run_id, name) VALUES (?, ?)`,
			runID, name,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const runColumns = `r.id, r.kind, r.root, r.functions_dir, r.created_at,
	(SELECT COUNT(*) FROM nodes n WHERE n.run_id = r.id),
	(SELECT COUNT(*) FROM functions f WHERE f.run_id = r.id)`

// ListRuns returns all saved runs, newest first
func (db *DB) ListRuns() ([]*Run, error) {
	rows, err := db.conn.Query(`SELECT ` + runColumns + ` FROM runs r ORDER BY r.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID
func (db *DB) GetRun(runID int64) (*Run, error) {
	row := db.conn.QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return run, err
}

// DeleteRun removes a run with its nodes and functions
func (db *DB) DeleteRun(runID int64) error {
	result, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

// LoadTree rebuilds the call tree saved for a run
func (db *DB) LoadTree(runID int64) (*graph.Node, error) {
	rows, err := db.conn.Query(
		`SELECT id, parent_id, file, target, cycle FROM nodes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var root *graph.Node
	byID := make(map[int64]*graph.Node)
	for rows.Next() {
		var id int64
		var parentID sql.NullInt64
		var target string
		var n graph.Node
		if err := rows.Scan(&id, &parentID, &n.FilePath, &target, &n.CycleClosure); err != nil {
			return nil, err
		}
		if n.CycleClosure {
			n.ClosesTo = target
		}
		node := &n
		byID[id] = node

		if !parentID.Valid {
			root = node
			continue
		}
		parent, ok := byID[parentID.Int64]
		if !ok {
			return nil, fmt.Errorf("node %d references unknown parent %d", id, parentID.Int64)
		}
		parent.AddChild(node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return root, nil
}

// GetFunctions returns the saved inventory of a run, sorted
func (db *DB) GetFunctions(runID int64) ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT name FROM functions WHERE run_id = ? ORDER BY name`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetCallPaths returns, for every occurrence of a procedure in a run, the
// chain of file names from the root down to it. A cycle closure counts as an
// occurrence of the ancestor it closes to.
// The procedure may be given with or without the .sql suffix.
func (db *DB) GetCallPaths(runID int64, procedure string) ([][]string, error) {
	rows, err := db.conn.Query(`
		WITH RECURSIVE chain(start_id, id, parent_id, name, depth) AS (
			SELECT id, id, parent_id, target, depth
			FROM nodes
			WHERE run_id = ? AND (lower(target) = lower(?) OR lower(target) = lower(?) || '.sql')
			UNION ALL
			SELECT c.start_id, n.id, n.parent_id, n.target, n.depth
			FROM nodes n
			JOIN chain c ON n.id = c.parent_id
		)
		SELECT start_id, name FROM chain ORDER BY start_id, depth`,
		runID, procedure, procedure,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths [][]string
	current := int64(-1)
	for rows.Next() {
		var startID int64
		var name string
		if err := rows.Scan(&startID, &name); err != nil {
			return nil, err
		}
		if startID != current {
			paths = append(paths, nil)
			current = startID
		}
		paths[len(paths)-1] = append(paths[len(paths)-1], name)
	}
	return paths, rows.Err()
}

// GetStats returns database statistics
func (db *DB) GetStats() (runCount, nodeCount int64, err error) {
	err = db.conn.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runCount)
	if err != nil {
		return
	}
	err = db.conn.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&nodeCount)
	return
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var createdAt string
	if err := row.Scan(&r.ID, &r.Kind, &r.Root, &r.FunctionsDir, &createdAt, &r.Nodes, &r.Functions); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	r.CreatedAt = t
	return &r, nil
}
