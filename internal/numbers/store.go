// Package numbers stores the caller identities (phone numbers) the
// softphone can place calls from.
package numbers

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a number is not in the store.
var ErrNotFound = errors.New("phone number not found")

// Number is one caller identity.
type Number struct {
	Number       string    `json:"number"`
	Nickname     string    `json:"nickname,omitempty"`
	FriendlyName string    `json:"friendly_name,omitempty"`
	SID          string    `json:"sid,omitempty"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName returns the nickname, or the number when none is set.
func (n Number) DisplayName() string {
	if n.Nickname != "" {
		return n.Nickname
	}
	return n.Number
}

// FormattedDisplay returns "Nickname (Number)", or the number alone.
func (n Number) FormattedDisplay() string {
	if n.Nickname != "" {
		return n.Nickname + " (" + n.Number + ")"
	}
	return n.Number
}

// Store is a SQLite-backed number store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: every statement is serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("[Numbers] Store opened", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		slog.Debug("[Numbers] Migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT number, nickname, friendly_name, sid, is_default, created_at FROM phone_numbers`

type scanner interface {
	Scan(dest ...any) error
}

func scanNumber(row scanner) (Number, error) {
	var (
		n       Number
		def     int
		created int64
	)
	if err := row.Scan(&n.Number, &n.Nickname, &n.FriendlyName, &n.SID, &def, &created); err != nil {
		return Number{}, err
	}
	n.IsDefault = def == 1
	n.CreatedAt = time.Unix(created, 0).UTC()
	return n, nil
}

// List returns every number, the default first, then by nickname and number.
func (s *Store) List(ctx context.Context) ([]Number, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY is_default DESC, nickname ASC, number ASC`)
	if err != nil {
		return nil, fmt.Errorf("list numbers: %w", err)
	}
	defer rows.Close()

	var out []Number
	for rows.Next() {
		n, err := scanNumber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan number: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Get returns one number.
func (s *Store) Get(ctx context.Context, number string) (Number, error) {
	n, err := scanNumber(s.db.QueryRowContext(ctx, selectColumns+` WHERE number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return Number{}, ErrNotFound
	}
	if err != nil {
		return Number{}, fmt.Errorf("get number: %w", err)
	}
	return n, nil
}

// Default returns the default number, or ErrNotFound when none is set.
func (s *Store) Default(ctx context.Context) (Number, error) {
	n, err := scanNumber(s.db.QueryRowContext(ctx, selectColumns+` WHERE is_default = 1 LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Number{}, ErrNotFound
	}
	if err != nil {
		return Number{}, fmt.Errorf("get default number: %w", err)
	}
	return n, nil
}

// Count returns the number of stored numbers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM phone_numbers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count numbers: %w", err)
	}
	return n, nil
}

// Upsert inserts a number or replaces its nickname and provider fields.
// The default flag is only changed through SetDefault.
func (s *Store) Upsert(ctx context.Context, n Number) error {
	if n.Number == "" {
		return errors.New("number is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phone_numbers (number, nickname, friendly_name, sid, is_default, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(number) DO UPDATE SET
			nickname = excluded.nickname,
			friendly_name = excluded.friendly_name,
			sid = excluded.sid`,
		n.Number, n.Nickname, n.FriendlyName, n.SID, s.now().Unix())
	if err != nil {
		return fmt.Errorf("upsert number: %w", err)
	}
	return nil
}

// SetNickname updates the user label of a number.
func (s *Store) SetNickname(ctx context.Context, number, nickname string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE phone_numbers SET nickname = ? WHERE number = ?`, nickname, number)
	if err != nil {
		return fmt.Errorf("set nickname: %w", err)
	}
	return mustAffect(res)
}

// Delete removes a number.
func (s *Store) Delete(ctx context.Context, number string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM phone_numbers WHERE number = ?`, number)
	if err != nil {
		return fmt.Errorf("delete number: %w", err)
	}
	return mustAffect(res)
}

// SetDefault makes number the only default, in one transaction.
func (s *Store) SetDefault(ctx context.Context, number string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return setDefault(ctx, tx, number)
	})
}

func setDefault(ctx context.Context, tx *sql.Tx, number string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE phone_numbers SET is_default = 0 WHERE is_default = 1`); err != nil {
		return fmt.Errorf("clear default: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE phone_numbers SET is_default = 1 WHERE number = ?`, number)
	if err != nil {
		return fmt.Errorf("set default: %w", err)
	}
	return mustAffect(res)
}

// Sync imports numbers reported by the provider account. Provider fields
// are refreshed, nicknames and the default flag are kept, and the first
// imported number becomes the default when none is set.
func (s *Store) Sync(ctx context.Context, provided []Number) (int, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, n := range provided {
			if n.Number == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO phone_numbers (number, friendly_name, sid, created_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(number) DO UPDATE SET
					friendly_name = excluded.friendly_name,
					sid = excluded.sid`,
				n.Number, n.FriendlyName, n.SID, s.now().Unix()); err != nil {
				return fmt.Errorf("sync %s: %w", n.Number, err)
			}
		}

		var defaults int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM phone_numbers WHERE is_default = 1`).Scan(&defaults); err != nil {
			return err
		}
		if defaults == 0 && len(provided) > 0 && provided[0].Number != "" {
			return setDefault(ctx, tx, provided[0].Number)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(provided), nil
}

// Resolve returns the display name for number, or number itself when it
// is not stored.
func (s *Store) Resolve(ctx context.Context, number string) string {
	n, err := s.Get(ctx, number)
	if err != nil {
		return number
	}
	return n.DisplayName()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
