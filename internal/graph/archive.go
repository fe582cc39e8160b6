package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matijazezelj/terramap/pkg/models"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    provider       TEXT NOT NULL,
    source         TEXT,
    created_at     DATETIME NOT NULL,
    node_count     INTEGER NOT NULL DEFAULT 0,
    edge_count     INTEGER NOT NULL DEFAULT 0,
    graph          TEXT NOT NULL,
    meta           TEXT NOT NULL,
    original_graph TEXT,
    original_meta  TEXT,
    warnings       TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_provider ON runs(provider);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Run is one archived transformation result.
type Run struct {
	ID        int64     `json:"id"`
	Provider  string    `json:"provider"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
}

// Archive persists completed runs to SQLite so they can be listed,
// re-exported, and mirrored to Memgraph later.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (creating if needed) the archive database at dbPath.
func OpenArchive(dbPath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &Archive{db: db}, nil
}

// Init creates the archive schema if it doesn't exist.
func (a *Archive) Init(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, archiveSchema)
	return err
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveRun archives one export document and returns the new run's ID.
// source names the input file the run was produced from.
func (a *Archive) SaveRun(ctx context.Context, doc *Document, source string) (int64, error) {
	graphJSON, err := json.Marshal(doc.Graph)
	if err != nil {
		return 0, fmt.Errorf("marshaling graph: %w", err)
	}
	metaJSON, err := json.Marshal(doc.Meta)
	if err != nil {
		return 0, fmt.Errorf("marshaling metadata: %w", err)
	}

	var origGraph, origMeta *string
	if doc.OriginalGraph != nil {
		b, err := json.Marshal(doc.OriginalGraph)
		if err != nil {
			return 0, fmt.Errorf("marshaling original graph: %w", err)
		}
		s := string(b)
		origGraph = &s
	}
	if doc.OriginalMeta != nil {
		b, err := json.Marshal(doc.OriginalMeta)
		if err != nil {
			return 0, fmt.Errorf("marshaling original metadata: %w", err)
		}
		s := string(b)
		origMeta = &s
	}

	var warnJSON *string
	if len(doc.Warnings) > 0 {
		b, err := json.Marshal(doc.Warnings)
		if err != nil {
			return 0, fmt.Errorf("marshaling warnings: %w", err)
		}
		s := string(b)
		warnJSON = &s
	}

	edges := 0
	for _, deps := range doc.Graph {
		edges += len(deps)
	}

	res, err := a.db.ExecContext(ctx, `
		INSERT INTO runs (provider, source, created_at, node_count, edge_count, graph, meta, original_graph, original_meta, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.Provider, source, time.Now().UTC().Format(time.RFC3339),
		len(doc.Graph), edges, string(graphJSON), string(metaJSON),
		origGraph, origMeta, warnJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRun loads one archived run as an export document. Returns nil when
// no run with the given ID exists.
func (a *Archive) GetRun(ctx context.Context, id int64) (*Document, *Run, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, provider, source, created_at, node_count, edge_count, graph, meta, original_graph, original_meta, warnings
		FROM runs WHERE id = ?
	`, id)

	var run Run
	var source, origGraph, origMeta, warnings sql.NullString
	var createdAt, graphJSON, metaJSON string

	err := row.Scan(&run.ID, &run.Provider, &source, &createdAt,
		&run.NodeCount, &run.EdgeCount, &graphJSON, &metaJSON,
		&origGraph, &origMeta, &warnings)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	run.Source = source.String
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	doc := &Document{Provider: run.Provider}
	if err := json.Unmarshal([]byte(graphJSON), &doc.Graph); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling graph for run %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &doc.Meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for run %d: %w", id, err)
	}
	if origGraph.Valid {
		_ = json.Unmarshal([]byte(origGraph.String), &doc.OriginalGraph)
	}
	if origMeta.Valid {
		_ = json.Unmarshal([]byte(origMeta.String), &doc.OriginalMeta)
	}
	if warnings.Valid {
		var w models.Warnings
		_ = json.Unmarshal([]byte(warnings.String), &w)
		doc.Warnings = w
	}

	return doc, &run, nil
}

// ListRuns returns the most recent runs, newest first, up to limit.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, provider, source, created_at, node_count, edge_count
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // best-effort cleanup

	var runs []Run
	for rows.Next() {
		var run Run
		var source sql.NullString
		var createdAt string
		if err := rows.Scan(&run.ID, &run.Provider, &source, &createdAt, &run.NodeCount, &run.EdgeCount); err != nil {
			return nil, err
		}
		run.Source = source.String
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes an archived run. Deleting a missing ID is not an error.
func (a *Archive) DeleteRun(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	return err
}

// RunCount returns the total number of archived runs.
func (a *Archive) RunCount(ctx context.Context) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}
