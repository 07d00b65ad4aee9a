package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"certline/internal/migrate"
)

const (
	// Dir is the per-workspace state directory.
	Dir    = ".certline"
	dbName = "certline.db"
)

// Config locates the workspace holding the database.
type Config struct {
	Workspace string
	// Memory opens a private in-memory database instead of the workspace file.
	Memory bool
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, Dir)
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return filepath.Join(workspaceDir(workspace), dbName)
}

// EnsureWorkspace creates the state directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	dir := workspaceDir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Open opens the SQLite database with foreign keys on and applies pending
// migrations.
func Open(cfg Config) (*sql.DB, error) {
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if !cfg.Memory {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", Path(cfg.Workspace))
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Memory {
		// every connection to :memory: is a separate database
		conn.SetMaxOpenConns(1)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
