// Package store provides SQLite persistence for the per-group user directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

var ErrLegacyGroupRequired = errors.New("store: legacy users table found, LEGACY_GROUP_ID is required to migrate it")

type Store struct {
	sqldb *sql.DB
	db    *bun.DB
}

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             int64            `bun:"id,pk,autoincrement"`
	UserID         int64            `bun:"user_id,notnull"`
	GroupID        int64            `bun:"group_id,notnull"`
	Username       sql.Null[string] `bun:"username,nullzero"`
	CustomName     sql.Null[string] `bun:"custom_name,nullzero"`
	NotifyWatching bool             `bun:"notify_watching,notnull"`

	CreatedAt string `bun:"created_at,notnull"`
	UpdatedAt string `bun:"updated_at,notnull"`
}

// DisplayName is the custom name, else the username, else the numeric id.
func (u User) DisplayName() string {
	if u.CustomName.Valid && u.CustomName.V != "" {
		return u.CustomName.V
	}
	return u.Handle()
}

// Handle is the Telegram username, or the numeric id when there is none.
func (u User) Handle() string {
	if u.Username.Valid && u.Username.V != "" {
		return u.Username.V
	}
	return strconv.FormatInt(u.UserID, 10)
}

type ListFilter struct {
	GroupID      int64
	ExcludeUser  int64
	WatchingOnly bool
}

// Open opens (creating if needed) the database at dbPath. A users table left
// by the single-chat version of the bot is moved into legacyGroupID.
func Open(dbPath string, legacyGroupID int64) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("DB_PATH is required")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	sqldb, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Single writer; handlers run concurrently.
	sqldb.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := sqldb.PingContext(ctx); err != nil {
		if cerr := sqldb.Close(); cerr != nil {
			return nil, fmt.Errorf("ping db: %w; close failed: %w", err, cerr)
		}
		return nil, err
	}

	if err := initSchema(ctx, sqldb, legacyGroupID); err != nil {
		if cerr := sqldb.Close(); cerr != nil {
			return nil, fmt.Errorf("init schema: %w; close failed: %w", err, cerr)
		}
		return nil, err
	}

	bdb := bun.NewDB(sqldb, sqlitedialect.New())
	return &Store{sqldb: sqldb, db: bdb}, nil
}

func (s *Store) Close() error { return s.sqldb.Close() }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.sqldb.PingContext(ctx) }

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	group_id INTEGER NOT NULL,
	username TEXT,
	custom_name TEXT,
	notify_watching INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(user_id, group_id)
);
CREATE INDEX IF NOT EXISTS idx_users_group ON users(group_id);
`

func initSchema(ctx context.Context, db *sql.DB, legacyGroupID int64) error {
	exists, err := hasTable(ctx, db, "users")
	if err != nil {
		return err
	}
	if exists {
		has, err := hasColumn(ctx, db, "users", "group_id")
		if err != nil {
			return err
		}
		if !has {
			if legacyGroupID == 0 {
				return ErrLegacyGroupRequired
			}
			return migrateLegacy(ctx, db, legacyGroupID)
		}
	}
	_, err = db.ExecContext(ctx, usersSchema)
	return err
}

// migrateLegacy rebuilds a users table keyed by user_id alone into the
// (user_id, group_id) layout, assigning every row to groupID.
func migrateLegacy(ctx context.Context, db *sql.DB, groupID int64) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339)
	steps := []struct {
		query string
		args  []any
	}{
		{query: "ALTER TABLE users RENAME TO users_legacy"},
		{query: usersSchema},
		{
			query: `INSERT INTO users (user_id, group_id, username, custom_name, notify_watching, created_at, updated_at)
SELECT user_id, ?, username, custom_name, COALESCE(notify_watching, 0), ?, ? FROM users_legacy`,
			args: []any{groupID, now, now},
		},
		{query: "DROP TABLE users_legacy"},
	}
	for _, step := range steps {
		if _, err = tx.ExecContext(ctx, step.query, step.args...); err != nil {
			return fmt.Errorf("migrate legacy users: %w", err)
		}
	}
	return tx.Commit()
}

func hasTable(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	//nolint:gosec // table is controlled in this package.
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notnull int
		var dflt sql.Null[string]
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			if cerr := rows.Close(); cerr != nil {
				return false, cerr
			}
			return false, err
		}
		if name == column {
			return true, rows.Close()
		}
	}
	if err := rows.Err(); err != nil {
		if cerr := rows.Close(); cerr != nil {
			return false, cerr
		}
		return false, err
	}
	return false, rows.Close()
}

// AddUserIfAbsent registers the user in the group. It reports whether a new
// row was created; an existing row is left untouched.
func (s *Store) AddUserIfAbsent(ctx context.Context, userID, groupID int64, username string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	u := User{
		UserID:    userID,
		GroupID:   groupID,
		Username:  sql.Null[string]{V: username, Valid: username != ""},
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := s.db.NewInsert().
		Model(&u).
		Column("user_id", "group_id", "username", "notify_watching", "created_at", "updated_at").
		On("CONFLICT (user_id, group_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetUser(ctx context.Context, userID, groupID int64) (User, error) {
	var u User
	err := s.db.NewSelect().
		Model(&u).
		Where("user_id = ?", userID).
		Where("group_id = ?", groupID).
		Limit(1).
		Scan(ctx)
	return u, err
}

// DisplayName returns the user's display name, falling back to the numeric
// id for users the directory does not know.
func (s *Store) DisplayName(ctx context.Context, userID, groupID int64) (string, error) {
	u, err := s.GetUser(ctx, userID, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return strconv.FormatInt(userID, 10), nil
	}
	if err != nil {
		return "", err
	}
	return u.DisplayName(), nil
}

// ListUsers returns the group's users in registration order.
func (s *Store) ListUsers(ctx context.Context, f ListFilter) (out []User, err error) {
	out = []User{}
	q := s.db.NewSelect().
		Model(&out).
		Where("group_id = ?", f.GroupID)
	if f.ExcludeUser != 0 {
		q = q.Where("user_id != ?", f.ExcludeUser)
	}
	if f.WatchingOnly {
		q = q.Where("notify_watching = 1")
	}
	err = q.OrderExpr("id ASC").Scan(ctx)
	return out, err
}

// SetWatching toggles the watching notifications flag. It returns
// sql.ErrNoRows when the user is not registered in the group.
func (s *Store) SetWatching(ctx context.Context, userID, groupID int64, watching bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.NewUpdate().
		Table("users").
		Set("notify_watching = ?", watching).
		Set("updated_at = ?", now).
		Where("user_id = ?", userID).
		Where("group_id = ?", groupID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRowsAffected(res)
}

// SetCustomName stores name, or clears it when name is nil.
func (s *Store) SetCustomName(ctx context.Context, userID, groupID int64, name *string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var value sql.Null[string]
	if name != nil {
		value = sql.Null[string]{V: *name, Valid: true}
	}

	res, err := s.db.NewUpdate().
		Table("users").
		Set("custom_name = ?", value).
		Set("updated_at = ?", now).
		Where("user_id = ?", userID).
		Where("group_id = ?", groupID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRowsAffected(res)
}

// CustomName returns the custom name, or "" when none is set.
func (s *Store) CustomName(ctx context.Context, userID, groupID int64) (string, error) {
	u, err := s.GetUser(ctx, userID, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !u.CustomName.Valid {
		return "", nil
	}
	return u.CustomName.V, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID, groupID int64) error {
	res, err := s.db.NewDelete().
		Table("users").
		Where("user_id = ?", userID).
		Where("group_id = ?", groupID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRowsAffected(res)
}

func expectRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
