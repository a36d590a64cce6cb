// Package replhistory persists REPL input lines to a small sqlite
// database, so a session's history survives the process exiting.
package replhistory

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	line TEXT NOT NULL,
	recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

// History wraps a sqlite-backed append-only log of REPL input lines.
type History struct {
	db *sql.DB
}

// Open creates (if needed) and opens the sqlite database at path.
func Open(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("replhistory: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("replhistory: migrate %s: %w", path, err)
	}
	return &History{db: db}, nil
}

// Append records one submitted REPL line.
func (h *History) Append(line string) error {
	_, err := h.db.Exec(`INSERT INTO history (line) VALUES (?)`, line)
	if err != nil {
		return fmt.Errorf("replhistory: append: %w", err)
	}
	return nil
}

// Recent returns up to limit of the most recently recorded lines,
// oldest first.
func (h *History) Recent(limit int) ([]string, error) {
	rows, err := h.db.Query(`SELECT line FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("replhistory: query: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("replhistory: scan: %w", err)
		}
		lines = append(lines, line)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, rows.Err()
}

// Close releases the underlying database handle.
func (h *History) Close() error { return h.db.Close() }
