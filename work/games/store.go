package games

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when a game or recording does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyScheduled is returned when a recording already exists for a game.
var ErrAlreadyScheduled = errors.New("recording already scheduled")

// Store persists games and recordings in SQLite. All timestamps are stored
// as RFC 3339 UTC strings so lexical ordering matches chronological ordering.
type Store struct {
	db *sql.DB
}

// Open creates a database connection with WAL mode and runs pending migrations.
func Open(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all migration files in lexical order, tracking applied
// versions in a schema_migrations table.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		// Extract version from filename (e.g., "001_initial_schema.sql" -> 1)
		var version int
		fmt.Sscanf(entry.Name(), "%d_", &version)

		var exists bool
		if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			continue
		}

		content, err := migrations.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", entry.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

const gameColumns = "id, league, home_team, away_team, game_time, state, channel"

func scanGame(row interface{ Scan(...any) error }) (Game, error) {
	var g Game
	var gameTime string
	if err := row.Scan(&g.ID, &g.League, &g.HomeTeam, &g.AwayTeam, &gameTime, &g.State, &g.Channel); err != nil {
		return Game{}, err
	}
	t, err := time.Parse(time.RFC3339, gameTime)
	if err != nil {
		return Game{}, fmt.Errorf("bad game_time for game %d: %w", g.ID, err)
	}
	g.GameTime = t.UTC()
	return g, nil
}

// UpsertGame inserts a game or, when the same matchup already exists,
// refreshes its state from the schedule feed.
func (s *Store) UpsertGame(g Game) error {
	_, err := s.db.Exec(`
		INSERT INTO games (league, home_team, away_team, game_time, state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (league, home_team, away_team, game_time)
		DO UPDATE SET state = excluded.state`,
		g.League, g.HomeTeam, g.AwayTeam, g.GameTime.UTC().Format(time.RFC3339), g.State)
	if err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}
	return nil
}

// GetGame fetches a single game by id.
func (s *Store) GetGame(id int64) (Game, error) {
	row := s.db.QueryRow("SELECT "+gameColumns+" FROM games WHERE id = ?", id)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, ErrNotFound
	}
	return g, err
}

// ListGames returns a league's games inside a time window, plus any game
// still in progress that started within the last eight hours, ordered by
// start time.
func (s *Store) ListGames(league string, start, end time.Time) ([]Game, error) {
	rows, err := s.db.Query(`
		SELECT `+gameColumns+` FROM games
		WHERE league = ?
		  AND ((game_time >= ? AND game_time <= ?)
		       OR (state = ? AND game_time > ?))
		ORDER BY game_time`,
		league,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
		StateInProgress, time.Now().Add(-8*time.Hour).UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGames(rows)
}

// SearchGames returns upcoming or in-progress games whose league or team
// names contain the search term, capped at limit rows.
func (s *Store) SearchGames(search string, limit int) ([]Game, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	pattern := "%" + strings.ToLower(search) + "%"
	rows, err := s.db.Query(`
		SELECT `+gameColumns+` FROM games
		WHERE (game_time >= ? OR state = ?)
		  AND (lower(league) LIKE ? OR lower(home_team) LIKE ? OR lower(away_team) LIKE ?)
		ORDER BY game_time
		LIMIT ?`,
		today.Format(time.RFC3339), StateInProgress,
		pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGames(rows)
}

// GamesInWindow returns every game starting inside [from, to), ordered by
// start time. Used by the channel allocator pass.
func (s *Store) GamesInWindow(from, to time.Time) ([]Game, error) {
	rows, err := s.db.Query(`
		SELECT `+gameColumns+` FROM games
		WHERE game_time >= ? AND game_time < ?
		ORDER BY game_time`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGames(rows)
}

// SetChannel persists a channel assignment produced by the allocator.
func (s *Store) SetChannel(gameID int64, channel string) error {
	_, err := s.db.Exec("UPDATE games SET channel = ? WHERE id = ?", channel, gameID)
	return err
}

// CurrentGameByChannel finds the in-progress game assigned to a channel.
func (s *Store) CurrentGameByChannel(channel string) (Game, error) {
	row := s.db.QueryRow(
		"SELECT "+gameColumns+" FROM games WHERE channel = ? AND state = ? ORDER BY game_time LIMIT 1",
		channel, StateInProgress)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, ErrNotFound
	}
	return g, err
}

func collectGames(rows *sql.Rows) ([]Game, error) {
	var out []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ScheduleRecording creates the DVR entry for a game. A game can hold at
// most one recording; scheduling twice is an error.
func (s *Store) ScheduleRecording(gameID int64) (Recording, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO recordings (game_id, state, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (game_id) DO NOTHING`,
		gameID, RecordingScheduled, now.Format(time.RFC3339))
	if err != nil {
		return Recording{}, fmt.Errorf("schedule recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Recording{}, err
	}
	if affected == 0 {
		return Recording{}, ErrAlreadyScheduled
	}
	return s.GetRecording(gameID)
}

// CancelRecording removes a game's DVR entry. The supervisor, if already
// running, notices the missing row on its next state read and stops.
func (s *Store) CancelRecording(gameID int64) error {
	res, err := s.db.Exec("DELETE FROM recordings WHERE game_id = ?", gameID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecording fetches the recording for a game.
func (s *Store) GetRecording(gameID int64) (Recording, error) {
	row := s.db.QueryRow(
		"SELECT id, game_id, state, created_at, started_at, completed_at FROM recordings WHERE game_id = ?",
		gameID)

	var r Recording
	var created string
	var started, completed sql.NullString
	if err := row.Scan(&r.ID, &r.GameID, &r.State, &created, &started, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recording{}, ErrNotFound
		}
		return Recording{}, err
	}

	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return Recording{}, fmt.Errorf("bad created_at for recording %d: %w", r.ID, err)
	}
	r.CreatedAt = t.UTC()
	if started.Valid {
		if t, err := time.Parse(time.RFC3339, started.String); err == nil {
			u := t.UTC()
			r.StartedAt = &u
		}
	}
	if completed.Valid {
		if t, err := time.Parse(time.RFC3339, completed.String); err == nil {
			u := t.UTC()
			r.CompletedAt = &u
		}
	}
	return r, nil
}

// ListRecordings returns all DVR entries joined with their games.
func (s *Store) ListRecordings() ([]Game, error) {
	rows, err := s.db.Query(`
		SELECT ` + gameColumns + ` FROM games
		WHERE id IN (SELECT game_id FROM recordings)
		ORDER BY game_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGames(rows)
}

// DueRecordings returns games whose recording is still scheduled and whose
// start time has passed: the set the scheduler should promote.
func (s *Store) DueRecordings(now time.Time) ([]Game, error) {
	rows, err := s.db.Query(`
		SELECT `+gameColumns+` FROM games
		WHERE id IN (SELECT game_id FROM recordings WHERE state = ?)
		  AND game_time <= ?
		ORDER BY game_time`,
		RecordingScheduled, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGames(rows)
}

// StartRecording atomically promotes a recording from scheduled to started.
// Returns false when the recording was missing or already past scheduled,
// which is how concurrent scheduler ticks avoid double-starting a game.
func (s *Store) StartRecording(gameID int64) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE recordings SET state = ?, started_at = ?
		WHERE game_id = ? AND state = ?`,
		RecordingStarted, time.Now().UTC().Format(time.RFC3339),
		gameID, RecordingScheduled)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CompleteRecording marks a started recording completed. Completing an
// unstarted or missing recording is a no-op; the row may legitimately be
// gone when the user cancelled mid-capture.
func (s *Store) CompleteRecording(gameID int64) error {
	_, err := s.db.Exec(`
		UPDATE recordings SET state = ?, completed_at = ?
		WHERE game_id = ? AND state = ?`,
		RecordingCompleted, time.Now().UTC().Format(time.RFC3339),
		gameID, RecordingStarted)
	return err
}
