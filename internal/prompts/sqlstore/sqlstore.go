// Package sqlstore keeps prompt documents in a SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/jackzampolin/hookline/internal/prompts"
)

const schema = `
CREATE TABLE IF NOT EXISTS versions (
    scope        TEXT NOT NULL CHECK (scope IN ('global', 'client', 'campaign', 'blueprint')),
    client       TEXT NOT NULL DEFAULT '',
    campaign     TEXT NOT NULL DEFAULT '',
    name         TEXT NOT NULL DEFAULT '',
    number       INTEGER NOT NULL,
    created_at   TEXT NOT NULL,
    front_matter TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (scope, client, campaign, name, number)
);

CREATE TABLE IF NOT EXISTS active (
    scope    TEXT NOT NULL,
    client   TEXT NOT NULL DEFAULT '',
    campaign TEXT NOT NULL DEFAULT '',
    name     TEXT NOT NULL DEFAULT '',
    number   INTEGER NOT NULL,
    PRIMARY KEY (scope, client, campaign, name)
);

CREATE INDEX IF NOT EXISTS idx_versions_client ON versions(client);
`

// Backend implements prompts.Backend on SQLite.
type Backend struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return &Backend{db: db}, nil
}

// key returns the (scope, client, campaign, name) column values.
func key(scope prompts.Scope, id prompts.Identity) []any {
	return []any{string(scope), id.Client, id.Campaign, id.Name}
}

const whereKey = `scope = ? AND client = ? AND campaign = ? AND name = ?`

func encodeFrontMatter(fm prompts.FrontMatter) (string, error) {
	if fm.IsZero() {
		return "", nil
	}
	data, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}
	return string(data), nil
}

func decodeFrontMatter(text string) (prompts.FrontMatter, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return prompts.FrontMatter{}, fmt.Errorf("decoding front matter: %w", err)
	}
	return prompts.FromMap(raw)
}

func scanSnapshot(row interface{ Scan(...any) error }) (prompts.Snapshot, error) {
	var (
		snap      prompts.Snapshot
		createdAt string
		fm        string
	)
	if err := row.Scan(&snap.Number, &createdAt, &fm, &snap.Body); err != nil {
		return prompts.Snapshot{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return prompts.Snapshot{}, fmt.Errorf("parsing created_at: %w", err)
	}
	snap.CreatedAt = t
	if snap.FrontMatter, err = decodeFrontMatter(fm); err != nil {
		return prompts.Snapshot{}, err
	}
	return snap, nil
}

func (b *Backend) Snapshots(ctx context.Context, scope prompts.Scope, id prompts.Identity) ([]prompts.Snapshot, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT number, created_at, front_matter, body FROM versions WHERE `+whereKey+` ORDER BY number`,
		key(scope, id)...)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	out := []prompts.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (b *Backend) Snapshot(ctx context.Context, scope prompts.Scope, id prompts.Identity, number int) (prompts.Snapshot, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT number, created_at, front_matter, body FROM versions WHERE `+whereKey+` AND number = ?`,
		append(key(scope, id), number)...)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return prompts.Snapshot{}, &prompts.NotFoundError{
			Resource: "version",
			ID:       fmt.Sprintf("%s@v%d", id.Key(scope), number),
		}
	}
	return snap, err
}

func (b *Backend) Active(ctx context.Context, scope prompts.Scope, id prompts.Identity) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT number FROM active WHERE `+whereKey, key(scope, id)...).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying active version: %w", err)
	}
	return n, nil
}

const upsertActive = `
INSERT INTO active (scope, client, campaign, name, number) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (scope, client, campaign, name) DO UPDATE SET number = excluded.number`

// Put inserts the version and moves the active pointer in one transaction.
func (b *Backend) Put(ctx context.Context, scope prompts.Scope, id prompts.Identity, s prompts.Snapshot) error {
	fm, err := encodeFrontMatter(s.FrontMatter)
	if err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	args := append(key(scope, id), s.Number, s.CreatedAt.UTC().Format(time.RFC3339Nano), fm, s.Body)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO versions (scope, client, campaign, name, number, created_at, front_matter, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertActive, append(key(scope, id), s.Number)...); err != nil {
		return fmt.Errorf("updating active version: %w", err)
	}
	return tx.Commit()
}

func (b *Backend) SetActive(ctx context.Context, scope prompts.Scope, id prompts.Identity, number int) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM versions WHERE `+whereKey+` AND number = ?)`,
		append(key(scope, id), number)...).Scan(&exists); err != nil {
		return fmt.Errorf("checking version: %w", err)
	}
	if !exists {
		return &prompts.NotFoundError{Resource: "version", ID: fmt.Sprintf("%s@v%d", id.Key(scope), number)}
	}
	if _, err := tx.ExecContext(ctx, upsertActive, append(key(scope, id), number)...); err != nil {
		return fmt.Errorf("updating active version: %w", err)
	}
	return tx.Commit()
}

func (b *Backend) Exists(ctx context.Context, scope prompts.Scope, id prompts.Identity) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM versions WHERE ` + whereKey + `)`
	args := key(scope, id)
	if scope == prompts.ScopeClient {
		q = `SELECT EXISTS (SELECT 1 FROM versions WHERE scope IN ('client', 'campaign') AND client = ?)`
		args = []any{id.Client}
	}
	var exists bool
	if err := b.db.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking document: %w", err)
	}
	return exists, nil
}

func (b *Backend) List(ctx context.Context, scope prompts.Scope, client string) ([]prompts.Identity, error) {
	var (
		q    string
		args []any
	)
	switch {
	case scope == prompts.ScopeClient:
		q = `SELECT DISTINCT client, '', '' FROM versions WHERE scope IN ('client', 'campaign') ORDER BY client`
	case scope == prompts.ScopeCampaign && client != "":
		q = `SELECT DISTINCT client, campaign, name FROM versions WHERE scope = ? AND client = ? ORDER BY client, campaign`
		args = []any{string(scope), client}
	default:
		q = `SELECT DISTINCT client, campaign, name FROM versions WHERE scope = ? ORDER BY client, campaign, name`
		args = []any{string(scope)}
	}
	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []prompts.Identity
	for rows.Next() {
		var id prompts.Identity
		if err := rows.Scan(&id.Client, &id.Campaign, &id.Name); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Rename updates the identity columns of both tables in one transaction.
// Renaming a client also rewrites its campaigns.
func (b *Backend) Rename(ctx context.Context, scope prompts.Scope, from, to prompts.Identity) error {
	var (
		set   string
		where string
		args  []any
	)
	switch scope {
	case prompts.ScopeClient:
		set, where = `client = ?`, `scope IN ('client', 'campaign') AND client = ?`
		args = []any{to.Client, from.Client}
	case prompts.ScopeCampaign:
		set, where = `campaign = ?`, `scope = 'campaign' AND client = ? AND campaign = ?`
		args = []any{to.Campaign, from.Client, from.Campaign}
	case prompts.ScopeBlueprint:
		set, where = `name = ?`, `scope = 'blueprint' AND name = ?`
		args = []any{to.Name, from.Name}
	default:
		return prompts.Invalidf("cannot rename %s documents", scope)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"versions", "active"} {
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET `+set+` WHERE `+where, args...); err != nil {
			return fmt.Errorf("renaming in %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Delete removes both tables' rows for the identity. Deleting a client also
// removes its campaigns.
func (b *Backend) Delete(ctx context.Context, scope prompts.Scope, id prompts.Identity) error {
	where, args := whereKey, key(scope, id)
	if scope == prompts.ScopeClient {
		where, args = `scope IN ('client', 'campaign') AND client = ?`, []any{id.Client}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"versions", "active"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+where, args...); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (b *Backend) Close() error {
	return b.db.Close()
}
