package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skywave/skywave/internal/logging"
	_ "modernc.org/sqlite"
)

// NoVolume marks a session that has never saved a volume. It is distinct
// from 0, which is a real (muted) setting worth restoring.
const NoVolume = -1

// Session is the slice of UI state that survives restarts: which stream was
// tuned in, at what volume, and where the history view was scrolled to.
type Session struct {
	StreamName    string
	StreamURL     string
	Volume        int
	HistoryScroll int
}

// Store persists the session to SQLite.
type Store struct {
	db *sql.DB
}

// Open creates a session store at the given path. If dbPath is empty, the
// default location under the state directory is used.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		var err error
		dbPath, err = defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve session db path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func defaultDBPath() (string, error) {
	dir, err := logging.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.db"), nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			stream_name TEXT NOT NULL DEFAULT '',
			stream_url TEXT NOT NULL DEFAULT '',
			volume INTEGER NOT NULL DEFAULT -1,
			history_scroll INTEGER NOT NULL DEFAULT 0
		);`,
		// Ensure there's always exactly one session row
		`INSERT OR IGNORE INTO session (id, stream_name, stream_url, volume, history_scroll)
		 VALUES (1, '', '', -1, 0);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate session schema: %w", err)
		}
	}
	return nil
}

// Save persists the session state.
func (s *Store) Save(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session SET stream_name = ?, stream_url = ?, volume = ?, history_scroll = ? WHERE id = 1`,
		sess.StreamName, sess.StreamURL, sess.Volume, sess.HistoryScroll)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load reads the persisted session state.
func (s *Store) Load(ctx context.Context) (Session, error) {
	sess := Session{Volume: NoVolume}
	err := s.db.QueryRowContext(ctx,
		`SELECT stream_name, stream_url, volume, history_scroll FROM session WHERE id = 1`).
		Scan(&sess.StreamName, &sess.StreamURL, &sess.Volume, &sess.HistoryScroll)
	if err != nil && err != sql.ErrNoRows {
		return sess, fmt.Errorf("load session: %w", err)
	}
	if sess.Volume < 0 {
		sess.Volume = NoVolume
	}
	if sess.Volume > 100 {
		sess.Volume = 100
	}
	return sess, nil
}

// Clear resets the persisted session to defaults.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE session SET stream_name = '', stream_url = '', volume = -1, history_scroll = 0 WHERE id = 1`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
