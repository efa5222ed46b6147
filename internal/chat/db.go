package chat

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLiteDBOption tunes the connection string of the chat database.
type SQLiteDBOption struct {
	// Mode can be ro | rw | rwc | memory.
	Mode string
	// JournalMode can be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF.
	JournalMode string
}

// SQLiteDB couples the chat database handle with its migration source so the
// caller can open and migrate in one place.
type SQLiteDB struct {
	*sql.DB
	migrationDir string
}

func NewSQLiteDB(file, migrationDir string, opt *SQLiteDBOption) (*SQLiteDB, error) {
	dsn := "file:" + file
	if opt != nil {
		params := url.Values{}
		if opt.Mode != "" {
			params.Set("mode", opt.Mode)
		}
		if opt.JournalMode != "" {
			params.Set("_journal_mode", opt.JournalMode)
		}
		if len(params) > 0 {
			dsn += "?" + params.Encode()
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	return &SQLiteDB{DB: db, migrationDir: migrationDir}, nil
}

// Migrate applies all pending migrations from the migration directory.
func (db *SQLiteDB) Migrate() error {
	goose.SetBaseFS(os.DirFS(db.migrationDir))

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("SetDialect: %w", err)
	}
	if err := goose.Up(db.DB, "."); err != nil {
		return fmt.Errorf("Up: %w", err)
	}
	return nil
}
