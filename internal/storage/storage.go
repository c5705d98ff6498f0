// /internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"banebot/datastore"
	"banebot/internal/karma"
	"banebot/internal/storage/sqlite"
	st "banebot/internal/storagetypes"
)

// Member is one user's karma state inside a guild record.
type Member struct {
	Karma   int  `json:"karma"`
	Ignored bool `json:"ignored,omitempty"`
}

// Record is everything stored for one guild, keyed by guild ID.
type Record struct {
	Members             map[string]Member  `json:"members"`
	Upvote              string             `json:"upvote,omitempty"`
	Downvote            string             `json:"downvote,omitempty"`
	CommandsHistoryList []st.CommandRecord `json:"cmd_history"`
}

// Storage is the JSON-file backend.
type Storage struct {
	ds *datastore.DataStore
}

var _ st.Backend = (*Storage)(nil)

// Open returns the backend selected by driver.
func Open(driver, path string, logger *zerolog.Logger) (st.Backend, error) {
	switch driver {
	case "", "json":
		s, err := New(path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// New opens or creates the JSON datastore at filePath.
func New(filePath string, logger *zerolog.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.Logger = logger
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func (s *Storage) guildRecord(guildID string) (*Record, error) {
	var rec Record
	if _, err := s.ds.Get(guildID, &rec); err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	return &rec, nil
}

// updateGuild runs fn on the guild's record under the datastore write lock.
func (s *Storage) updateGuild(guildID string, fn func(*Record) error) error {
	var rec Record
	return s.ds.Update(guildID, &rec, func(bool) error {
		if rec.Members == nil {
			rec.Members = make(map[string]Member)
		}
		return fn(&rec)
	})
}

func (s *Storage) Karma(_ context.Context, guildID, userID string) (int, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return 0, err
	}
	return rec.Members[userID].Karma, nil
}

func (s *Storage) AddKarma(_ context.Context, guildID, userID string, delta int) (int, error) {
	var total int
	err := s.updateGuild(guildID, func(rec *Record) error {
		m := rec.Members[userID]
		m.Karma += delta
		rec.Members[userID] = m
		total = m.Karma
		return nil
	})
	return total, err
}

func (s *Storage) IsIgnored(_ context.Context, guildID, userID string) (bool, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return false, err
	}
	return rec.Members[userID].Ignored, nil
}

func (s *Storage) ToggleIgnore(_ context.Context, guildID, userID string) (bool, error) {
	var ignored bool
	err := s.updateGuild(guildID, func(rec *Record) error {
		m := rec.Members[userID]
		m.Ignored = !m.Ignored
		rec.Members[userID] = m
		ignored = m.Ignored
		return nil
	})
	return ignored, err
}

func (s *Storage) Leaderboard(_ context.Context, guildID string, limit int) ([]karma.Entry, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}

	entries := make([]karma.Entry, 0, len(rec.Members))
	for id, m := range rec.Members {
		entries = append(entries, karma.Entry{UserID: id, Karma: m.Karma, Ignored: m.Ignored})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Karma != entries[j].Karma {
			return entries[i].Karma > entries[j].Karma
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Storage) Reactions(_ context.Context, guildID string) (karma.Reactions, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return karma.Reactions{}, err
	}
	return karma.Reactions{Upvote: rec.Upvote, Downvote: rec.Downvote}, nil
}

func (s *Storage) SetReaction(_ context.Context, guildID string, vote karma.Vote, emojiKey string) error {
	if vote != karma.Up && vote != karma.Down {
		return karma.ErrInvalidVote
	}
	return s.updateGuild(guildID, func(rec *Record) error {
		if vote == karma.Up {
			rec.Upvote = emojiKey
		} else {
			rec.Downvote = emojiKey
		}
		return nil
	})
}

// AppendCommand appends a command history record for a guild
func (s *Storage) AppendCommand(_ context.Context, guildID string, cmd st.CommandRecord) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		rec.CommandsHistoryList = append(rec.CommandsHistoryList, cmd)
		if n := len(rec.CommandsHistoryList); n > st.HistoryLimit {
			rec.CommandsHistoryList = rec.CommandsHistoryList[n-st.HistoryLimit:]
		}
		return nil
	})
}

func (s *Storage) CommandHistory(_ context.Context, guildID string) ([]st.CommandRecord, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return rec.CommandsHistoryList, nil
}
