package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const historyTable = "portal_schema_history"

// Manager applies the session store schema from SQL files on disk.
// Applied files are recorded by name; reapplying is a no-op.
type Manager struct {
	db  *sql.DB
	dir string
}

// NewManager constructs a Manager over the migrations directory.
func NewManager(db *sql.DB, dir string) *Manager {
	return &Manager{db: db, dir: dir}
}

// Up applies every pending .up.sql file in name order.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, "migration")
	if err != nil {
		return err
	}
	files, err := listSQL(m.dir, ".up.sql")
	if err != nil {
		return err
	}
	for _, name := range files {
		if applied[name] {
			continue
		}
		if err := m.runFile(ctx, filepath.Join(m.dir, name)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if err := m.record(ctx, "migration", name); err != nil {
			return err
		}
	}
	return nil
}

// Down reverts the most recently applied migration using its .down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	history, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if _, err := os.Stat(filepath.Join(m.dir, down)); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.runFile(ctx, filepath.Join(m.dir, down)); err != nil {
		return fmt.Errorf("revert %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		`delete from `+historyTable+` where kind='migration' and name=$1`, last)
	return err
}

// Status returns applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		`select name from `+historyTable+` where kind='migration' order by applied_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Seed applies .seed.sql files idempotently, tracked separately from
// schema migrations.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx, "seed")
	if err != nil {
		return err
	}
	files, err := listSQL(m.dir, ".seed.sql")
	if err != nil {
		return err
	}
	for _, name := range files {
		if applied[name] {
			continue
		}
		if err := m.runFile(ctx, filepath.Join(m.dir, name)); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		if err := m.record(ctx, "seed", name); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensureHistory(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		create table if not exists `+historyTable+` (
			kind text not null,
			name text not null,
			applied_at timestamptz not null default now(),
			primary key (kind, name)
		)`)
	return err
}

func (m *Manager) applied(ctx context.Context, kind string) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx,
		`select name from `+historyTable+` where kind=$1`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (m *Manager) record(ctx context.Context, kind, name string) error {
	_, err := m.db.ExecContext(ctx,
		`insert into `+historyTable+`(kind, name, applied_at) values ($1, $2, $3)`,
		kind, name, time.Now().UTC())
	return err
}

// runFile executes one SQL file inside a transaction, statement by
// statement.
func (m *Manager) runFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(data)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func listSQL(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	inString := false
	for _, r := range sql {
		cur.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, cur.String())
				cur.Reset()
			}
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}
