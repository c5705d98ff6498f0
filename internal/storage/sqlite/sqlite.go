// Package sqlite is the SQLite storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"banebot/internal/karma"
	st "banebot/internal/storagetypes"
)

type Store struct {
	db *sql.DB
}

var _ st.Backend = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite: empty db path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const karmaTable = `
CREATE TABLE IF NOT EXISTS karma (
	guild_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	karma INTEGER NOT NULL DEFAULT 0,
	ignored INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (guild_id, user_id)
);`

	if _, err := db.Exec(karmaTable); err != nil {
		return fmt.Errorf("sqlite: migrate karma: %w", err)
	}

	const reactionsTable = `
CREATE TABLE IF NOT EXISTS reactions (
	guild_id TEXT PRIMARY KEY,
	upvote TEXT NOT NULL DEFAULT '',
	downvote TEXT NOT NULL DEFAULT ''
);`

	if _, err := db.Exec(reactionsTable); err != nil {
		return fmt.Errorf("sqlite: migrate reactions: %w", err)
	}

	const historyTable = `
CREATE TABLE IF NOT EXISTS command_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	username TEXT,
	command TEXT NOT NULL,
	args TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_history_guild ON command_history(guild_id, id);`

	if _, err := db.Exec(historyTable); err != nil {
		return fmt.Errorf("sqlite: migrate command_history: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Karma(ctx context.Context, guildID, userID string) (int, error) {
	var k int
	err := s.db.QueryRowContext(ctx,
		`SELECT karma FROM karma WHERE guild_id = ? AND user_id = ?`, guildID, userID,
	).Scan(&k)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: karma: %w", err)
	}
	return k, nil
}

func (s *Store) AddKarma(ctx context.Context, guildID, userID string, delta int) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
INSERT INTO karma (guild_id, user_id, karma) VALUES (?, ?, ?)
ON CONFLICT (guild_id, user_id) DO UPDATE SET karma = karma + excluded.karma
RETURNING karma`, guildID, userID, delta).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: add karma: %w", err)
	}
	return total, nil
}

func (s *Store) IsIgnored(ctx context.Context, guildID, userID string) (bool, error) {
	var ignored bool
	err := s.db.QueryRowContext(ctx,
		`SELECT ignored FROM karma WHERE guild_id = ? AND user_id = ?`, guildID, userID,
	).Scan(&ignored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: is ignored: %w", err)
	}
	return ignored, nil
}

func (s *Store) ToggleIgnore(ctx context.Context, guildID, userID string) (bool, error) {
	var ignored bool
	err := s.db.QueryRowContext(ctx, `
INSERT INTO karma (guild_id, user_id, ignored) VALUES (?, ?, 1)
ON CONFLICT (guild_id, user_id) DO UPDATE SET ignored = 1 - ignored
RETURNING ignored`, guildID, userID).Scan(&ignored)
	if err != nil {
		return false, fmt.Errorf("sqlite: toggle ignore: %w", err)
	}
	return ignored, nil
}

func (s *Store) Leaderboard(ctx context.Context, guildID string, limit int) ([]karma.Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, karma, ignored FROM karma
WHERE guild_id = ?
ORDER BY karma DESC, user_id ASC
LIMIT ?`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []karma.Entry
	for rows.Next() {
		var e karma.Entry
		if err := rows.Scan(&e.UserID, &e.Karma, &e.Ignored); err != nil {
			return nil, fmt.Errorf("sqlite: leaderboard scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Reactions(ctx context.Context, guildID string) (karma.Reactions, error) {
	var r karma.Reactions
	err := s.db.QueryRowContext(ctx,
		`SELECT upvote, downvote FROM reactions WHERE guild_id = ?`, guildID,
	).Scan(&r.Upvote, &r.Downvote)
	if errors.Is(err, sql.ErrNoRows) {
		return karma.Reactions{}, nil
	}
	if err != nil {
		return karma.Reactions{}, fmt.Errorf("sqlite: reactions: %w", err)
	}
	return r, nil
}

func (s *Store) SetReaction(ctx context.Context, guildID string, vote karma.Vote, emojiKey string) error {
	var query string
	switch vote {
	case karma.Up:
		query = `INSERT INTO reactions (guild_id, upvote) VALUES (?, ?)
ON CONFLICT (guild_id) DO UPDATE SET upvote = excluded.upvote`
	case karma.Down:
		query = `INSERT INTO reactions (guild_id, downvote) VALUES (?, ?)
ON CONFLICT (guild_id) DO UPDATE SET downvote = excluded.downvote`
	default:
		return karma.ErrInvalidVote
	}
	if _, err := s.db.ExecContext(ctx, query, guildID, emojiKey); err != nil {
		return fmt.Errorf("sqlite: set reaction: %w", err)
	}
	return nil
}

func (s *Store) AppendCommand(ctx context.Context, guildID string, rec st.CommandRecord) error {
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("sqlite: encode args: %w", err)
	}
	if rec.Datetime.IsZero() {
		rec.Datetime = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO command_history (guild_id, channel_id, user_id, username, command, args, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		guildID, rec.ChannelID, rec.UserID, rec.Username, rec.Command, string(args), rec.Datetime.UTC(),
	); err != nil {
		return fmt.Errorf("sqlite: insert history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM command_history
WHERE guild_id = ? AND id NOT IN (
	SELECT id FROM command_history WHERE guild_id = ? ORDER BY id DESC LIMIT ?
)`, guildID, guildID, st.HistoryLimit); err != nil {
		return fmt.Errorf("sqlite: prune history: %w", err)
	}

	return tx.Commit()
}

func (s *Store) CommandHistory(ctx context.Context, guildID string) ([]st.CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT channel_id, user_id, COALESCE(username, ''), command, COALESCE(args, ''), created_at
FROM command_history
WHERE guild_id = ?
ORDER BY id ASC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w", err)
	}
	defer rows.Close()

	var out []st.CommandRecord
	for rows.Next() {
		var (
			rec  st.CommandRecord
			args string
		)
		if err := rows.Scan(&rec.ChannelID, &rec.UserID, &rec.Username, &rec.Command, &args, &rec.Datetime); err != nil {
			return nil, fmt.Errorf("sqlite: history scan: %w", err)
		}
		if args != "" && args != "null" {
			if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
				return nil, fmt.Errorf("sqlite: decode args: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
