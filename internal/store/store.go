package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aviklund/questline/internal/engine"
)

// ErrNoAdventure is returned when a user has no adventure on record.
var ErrNoAdventure = errors.New("no adventure for user")

const schema = `
CREATE TABLE IF NOT EXISTS adventures (
	user_id      INTEGER PRIMARY KEY,
	adventure_id TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	adventure_id TEXT NOT NULL,
	user_id      INTEGER NOT NULL,
	narration    TEXT NOT NULL,
	choices      TEXT NOT NULL DEFAULT '[]',
	choice       TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_adventure ON turns(adventure_id, id);
`

// Store is SQLite-backed persistence for adventure transcripts. It keeps
// one row per adventure per user and one row per turn, so transcripts
// survive restarts and the engine can always be replayed its history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at the given path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartAdventure mints a fresh adventure for the user, replacing any
// prior one and dropping its turns. Returns the new adventure ID.
func (s *Store) StartAdventure(ctx context.Context, userID int64) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM turns WHERE user_id = ?`, userID); err != nil {
		return "", fmt.Errorf("drop old turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO adventures (user_id, adventure_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET adventure_id = excluded.adventure_id, created_at = excluded.created_at`,
		userID, id, toMillis(time.Now())); err != nil {
		return "", fmt.Errorf("insert adventure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// AdventureFor returns the user's current adventure ID.
func (s *Store) AdventureFor(ctx context.Context, userID int64) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT adventure_id FROM adventures WHERE user_id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoAdventure
	}
	if err != nil {
		return "", fmt.Errorf("query adventure: %w", err)
	}
	return id, nil
}

// EndAdventure removes the user's adventure and its transcript.
// Missing adventures are a no-op.
func (s *Store) EndAdventure(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM turns WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM adventures WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete adventure: %w", err)
	}

	return tx.Commit()
}

// AppendScene records a newly generated scene as a turn awaiting a
// choice, keeping the offered choice list so button presses can be
// resolved back to their text.
func (s *Store) AppendScene(ctx context.Context, adventureID string, userID int64, narration string, choices []string) error {
	encoded, err := encodeChoices(choices)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (adventure_id, user_id, narration, choices, choice, created_at) VALUES (?, ?, ?, ?, '', ?)`,
		adventureID, userID, narration, encoded, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// PendingChoices returns the choice list offered by the adventure's
// newest turn still awaiting a pick.
func (s *Store) PendingChoices(ctx context.Context, adventureID string) ([]string, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT choices FROM turns
		 WHERE id = (SELECT MAX(id) FROM turns WHERE adventure_id = ? AND choice = '')`,
		adventureID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pending choices: %w", err)
	}
	return decodeChoices(encoded)
}

// RecordChoice fills in the choice on the adventure's newest pending
// turn.
func (s *Store) RecordChoice(ctx context.Context, adventureID, choice string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE turns SET choice = ?
		 WHERE id = (SELECT MAX(id) FROM turns WHERE adventure_id = ? AND choice = '')`,
		choice, adventureID)
	if err != nil {
		return fmt.Errorf("record choice: %w", err)
	}
	return nil
}

// History returns the adventure's transcript in play order. The final
// turn has an empty Choice while a scene is awaiting a pick.
func (s *Store) History(ctx context.Context, adventureID string) ([]engine.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT narration, choice FROM turns WHERE adventure_id = ? ORDER BY id`, adventureID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var history []engine.Turn
	for rows.Next() {
		var t engine.Turn
		if err := rows.Scan(&t.Narration, &t.Choice); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return history, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func encodeChoices(choices []string) (string, error) {
	if len(choices) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(choices)
	if err != nil {
		return "", fmt.Errorf("marshal choices: %w", err)
	}
	return string(encoded), nil
}

func decodeChoices(value string) ([]string, error) {
	if value == "" {
		return nil, nil
	}
	var choices []string
	if err := json.Unmarshal([]byte(value), &choices); err != nil {
		return nil, fmt.Errorf("unmarshal choices: %w", err)
	}
	return choices, nil
}
