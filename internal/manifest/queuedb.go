package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	_ "modernc.org/sqlite"

	"github.com/gridsome/gridsome/internal/queue"
)

const queueSchema = `
CREATE TABLE entries (
	seq         INTEGER PRIMARY KEY,
	path        TEXT NOT NULL UNIQUE,
	route       TEXT NOT NULL,
	component   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	html_output TEXT NOT NULL,
	data_output TEXT,
	variables   JSON,
	data        JSON,
	error       TEXT
);
CREATE INDEX idx_entries_component ON entries(component);
`

// WriteQueueDB writes the render queue to a fresh SQLite database at path,
// one row per entry in render order. The file is built next to path and
// swapped in once complete.
func WriteQueueDB(ctx context.Context, path string, entries []queue.Entry) error {
	tmp := path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := writeQueueDB(ctx, tmp, entries); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := atomic.ReplaceFile(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func writeQueueDB(ctx context.Context, path string, entries []queue.Entry) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = MEMORY"); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, queueSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (seq, path, route, component, kind, page, html_output, data_output, variables, data, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range entries {
		vars, err := jsonColumn(e.Variables)
		if err != nil {
			return fmt.Errorf("%s: variables: %w", e.Path, err)
		}
		data, err := jsonColumn(e.Data)
		if err != nil {
			return fmt.Errorf("%s: data: %w", e.Path, err)
		}
		var msg, dataOut sql.NullString
		if e.Err != nil {
			msg = sql.NullString{String: e.Err.Error(), Valid: true}
		}
		if e.DataOutput != "" {
			dataOut = sql.NullString{String: e.DataOutput, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, i, e.Path, e.Route, e.Component, e.Kind.String(),
			e.Page, e.HTMLOutput, dataOut, vars, data, msg); err != nil {
			return fmt.Errorf("insert %s: %w", e.Path, err)
		}
	}
	return tx.Commit()
}

func jsonColumn(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// QueueRow is one row of the queue database as a render worker sees it.
type QueueRow struct {
	Path       string
	Route      string
	Component  string
	Kind       string
	Page       int
	HTMLOutput string
	DataOutput string
	Variables  map[string]any
	Data       map[string]any
	Error      string
}

// ReadQueueDB reads the rows of a queue database in render order.
func ReadQueueDB(ctx context.Context, path string) ([]QueueRow, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `
		SELECT path, route, component, kind, page, html_output, data_output, variables, data, error
		FROM entries ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []QueueRow
	for rows.Next() {
		var (
			r                        QueueRow
			dataOut, vars, data, msg sql.NullString
		)
		if err := rows.Scan(&r.Path, &r.Route, &r.Component, &r.Kind, &r.Page, &r.HTMLOutput,
			&dataOut, &vars, &data, &msg); err != nil {
			return nil, err
		}
		r.DataOutput, r.Error = dataOut.String, msg.String
		if vars.Valid {
			if err := json.Unmarshal([]byte(vars.String), &r.Variables); err != nil {
				return nil, fmt.Errorf("%s: variables: %w", r.Path, err)
			}
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &r.Data); err != nil {
				return nil, fmt.Errorf("%s: data: %w", r.Path, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
