package sessionstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteArchiver writes terminated sessions to a local sqlite database
// for audit. It is never consulted by the live orchestration path.
type SQLiteArchiver struct {
	db *sql.DB
}

// NewSQLiteArchiver opens (and migrates) the archive database
func NewSQLiteArchiver(path string) (*SQLiteArchiver, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		final_agent   TEXT NOT NULL,
		final_state   TEXT NOT NULL,
		turns         INTEGER NOT NULL,
		shared_memory TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL,
		archived_at   TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transcript (
		session_id TEXT NOT NULL,
		turn_id    TEXT NOT NULL,
		role       TEXT NOT NULL,
		text       TEXT NOT NULL,
		final      INTEGER NOT NULL,
		at         TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, turn_id)
	);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate archive schema: %w", err)
	}

	return &SQLiteArchiver{db: db}, nil
}

// Archive persists one terminated session
func (a *SQLiteArchiver) Archive(s *Session) error {
	memory, err := json.Marshal(s.Memory.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal shared memory: %w", err)
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO sessions (id, final_agent, final_state, turns, shared_memory, created_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ActiveAgentID, string(s.State), s.Transcript.Len(), string(memory), s.CreatedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive session row: %w", err)
	}

	for _, rec := range s.Transcript.Records() {
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO transcript (session_id, turn_id, role, text, final, at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, rec.TurnID, rec.Role, rec.Text, rec.Final, rec.At,
		)
		if err != nil {
			return fmt.Errorf("failed to archive transcript row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}

	log.Debug().Str("session_id", s.ID).Int("turns", s.Transcript.Len()).Msg("Session archived")
	return nil
}

// Close closes the archive database
func (a *SQLiteArchiver) Close() error {
	return a.db.Close()
}
