package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding mailbox snapshots and feed cursors
type Store struct {
	db *sql.DB
}

// Open opens (and creates/migrates) the cache database at the given path
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("empty cache path")
	}
	cleanPath := filepath.Clean(dbPath)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid cache path: contains directory traversal")
	}
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if _, err := os.Stat(cleanPath); os.IsNotExist(err) {
		f, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create cache db: %w", err)
		}
		_ = f.Close()
	}
	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout=5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrations are applied in order; user_version records how many ran
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS snapshots (
  account_email TEXT NOT NULL,
  folder        TEXT NOT NULL,
  messages      TEXT NOT NULL,
  updated_at    INTEGER NOT NULL,
  PRIMARY KEY (account_email, folder)
);`,
	`
CREATE TABLE IF NOT EXISTS feed_cursors (
  account_email TEXT PRIMARY KEY,
  history_id    INTEGER NOT NULL,
  updated_at    INTEGER NOT NULL
);`,
}

func (s *Store) migrate(ctx context.Context) error {
	var ver int
	_ = s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)
	for ; ver < len(migrations); ver++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, migrations[ver])
		if err == nil {
			_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", ver+1))
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v%d: %w", ver+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Version returns the schema version
func (s *Store) Version(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("cache store not initialized")
	}
	var ver int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)
	return ver, err
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot upserts the message list for (account, folder)
func (s *Store) SaveSnapshot(ctx context.Context, accountEmail string, folder mailbox.Folder, msgs []mailbox.Message, updatedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cache store not initialized")
	}
	if strings.TrimSpace(accountEmail) == "" || folder == "" {
		return fmt.Errorf("invalid snapshot inputs")
	}
	data, err := json.Marshal(toRecords(msgs))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO snapshots(account_email, folder, messages, updated_at)
VALUES(?,?,?,?)
ON CONFLICT(account_email, folder) DO UPDATE SET messages=excluded.messages, updated_at=excluded.updated_at;
`, accountEmail, string(folder), string(data), updatedAt.Unix())
	return err
}

// LoadSnapshot returns the cached list for (account, folder) if present
func (s *Store) LoadSnapshot(ctx context.Context, accountEmail string, folder mailbox.Folder) ([]mailbox.Message, time.Time, bool, error) {
	if s == nil || s.db == nil {
		return nil, time.Time{}, false, fmt.Errorf("cache store not initialized")
	}
	var data string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT messages, updated_at FROM snapshots WHERE account_email=? AND folder=?`,
		accountEmail, string(folder)).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	var recs []record
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return fromRecords(recs), time.Unix(updatedAt, 0), true, nil
}

// DeleteSnapshots removes every snapshot of an account
func (s *Store) DeleteSnapshots(ctx context.Context, accountEmail string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cache store not initialized")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE account_email=?`, accountEmail)
	return err
}

// SaveCursor upserts the change feed cursor of an account
func (s *Store) SaveCursor(ctx context.Context, accountEmail string, historyID uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cache store not initialized")
	}
	if strings.TrimSpace(accountEmail) == "" {
		return fmt.Errorf("invalid cursor inputs")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO feed_cursors(account_email, history_id, updated_at)
VALUES(?,?,?)
ON CONFLICT(account_email) DO UPDATE SET history_id=excluded.history_id, updated_at=excluded.updated_at;
`, accountEmail, int64(historyID), time.Now().Unix())
	return err
}

// LoadCursor returns the change feed cursor of an account if present
func (s *Store) LoadCursor(ctx context.Context, accountEmail string) (uint64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, fmt.Errorf("cache store not initialized")
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT history_id FROM feed_cursors WHERE account_email=?`, accountEmail).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(id), true, nil
}
