// Package karma implements reaction voting: members add the guild's upvote or
// downvote reaction to a recent message and its author's karma moves by one.
package karma

import (
	"context"
	"errors"
	"time"
)

// Vote is the direction of a karma reaction.
type Vote int

const (
	None Vote = 0
	Up   Vote = 1
	Down Vote = -1
)

func (v Vote) String() string {
	switch v {
	case Up:
		return "upvote"
	case Down:
		return "downvote"
	default:
		return "none"
	}
}

// ParseVote accepts "up"/"upvote" and "down"/"downvote".
func ParseVote(s string) (Vote, error) {
	switch s {
	case "up", "upvote":
		return Up, nil
	case "down", "downvote":
		return Down, nil
	}
	return None, ErrInvalidVote
}

var (
	ErrInvalidVote   = errors.New("vote must be upvote or downvote")
	ErrSameReaction  = errors.New("upvote and downvote must use different reactions")
	ErrEmptyReaction = errors.New("reaction must not be empty")
)

// Entry is one member's karma in a guild.
type Entry struct {
	UserID  string
	Karma   int
	Ignored bool
}

// Reactions holds the emoji keys a guild votes with. A key is a custom emoji
// ID or the unicode text of a standard emoji.
type Reactions struct {
	Upvote   string
	Downvote string
}

// Match returns the vote a reaction key stands for.
func (r Reactions) Match(key string) Vote {
	switch {
	case key == "":
		return None
	case key == r.Upvote:
		return Up
	case key == r.Downvote:
		return Down
	}
	return None
}

// Store persists karma per guild. Implementations must be safe for concurrent
// use and AddKarma must be atomic.
type Store interface {
	Karma(ctx context.Context, guildID, userID string) (int, error)
	AddKarma(ctx context.Context, guildID, userID string, delta int) (int, error)
	IsIgnored(ctx context.Context, guildID, userID string) (bool, error)
	ToggleIgnore(ctx context.Context, guildID, userID string) (bool, error)
	Leaderboard(ctx context.Context, guildID string, limit int) ([]Entry, error)
	Reactions(ctx context.Context, guildID string) (Reactions, error)
	SetReaction(ctx context.Context, guildID string, vote Vote, emojiKey string) error
}

// MessageInfo is what voting needs to know about the reacted message.
type MessageInfo struct {
	AuthorID  string
	CreatedAt time.Time
}

// MessageLookup resolves a message to its author and creation time.
type MessageLookup interface {
	LookupMessage(ctx context.Context, channelID, messageID string) (MessageInfo, error)
}

// Reaction is a reaction add or remove event.
type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	EmojiKey  string
	Removed   bool
}
