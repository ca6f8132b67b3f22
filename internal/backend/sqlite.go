package backend

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"

	"report_agent/internal/common"
	"report_agent/internal/dialect"
)

var identRe = regexp.MustCompile(`^\w+$`)

// SQLite is a Backend over a local SQLite file. It supports server-side
// aggregation for the dialect subset, so ErrAggregationUnsupported never
// fires here; thinner backends rely on the runner's client-side fallback.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB exposes the underlying handle for callers that seed test data.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *SQLite) Sample(ctx context.Context, table string, limit int) ([]common.Row, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, table, limit))
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *SQLite) Execute(ctx context.Context, d *dialect.Description) ([]common.Row, error) {
	rows, err := s.db.QueryContext(ctx, d.BuildSQL())
	if err != nil {
		return nil, fmt.Errorf("execute %s query on %s: %w", d.Kind, d.Table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *SQLite) Stats(ctx context.Context, table string) (TableStats, error) {
	if !identRe.MatchString(table) {
		return TableStats{}, fmt.Errorf("invalid table name %q", table)
	}
	var st TableStats
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&st.RowCount)
	if err != nil {
		return TableStats{}, fmt.Errorf("stats %s: %w", table, err)
	}
	return st, nil
}

// EnsureData checks that at least one user table exists. Ingestion
// itself happens out of band; this is the hook the coordinator calls
// when a run requests it.
func (s *SQLite) EnsureData(ctx context.Context) error {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("no tables present in backend")
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]common.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []common.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(common.Row, len(cols))
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[c] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
