package karma

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const DefaultWindow = 24 * time.Hour

// Options configure a Service.
type Options struct {
	// Window is how old a message may be and still collect votes.
	Window time.Duration
	Logger *zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service applies the voting rules on top of a Store.
type Service struct {
	store  Store
	lookup MessageLookup
	window time.Duration
	now    func() time.Time
	log    zerolog.Logger
	selfID atomic.Pointer[string]
}

func NewService(store Store, lookup MessageLookup, opts Options) *Service {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "karma").Logger()
	}
	return &Service{
		store:  store,
		lookup: lookup,
		window: opts.Window,
		now:    opts.Now,
		log:    logger,
	}
}

// SetSelfID marks the bot's own user; its messages cannot be voted on.
func (s *Service) SetSelfID(id string) {
	s.selfID.Store(&id)
}

// HandleReaction applies a vote and returns the karma delta given to the
// message author. A zero delta means the reaction did not count.
func (s *Service) HandleReaction(ctx context.Context, r Reaction) (int, error) {
	if r.GuildID == "" {
		return 0, nil
	}

	reactions, err := s.store.Reactions(ctx, r.GuildID)
	if err != nil {
		return 0, fmt.Errorf("load reactions: %w", err)
	}
	vote := reactions.Match(r.EmojiKey)
	if vote == None {
		return 0, nil
	}

	ignored, err := s.store.IsIgnored(ctx, r.GuildID, r.UserID)
	if err != nil {
		return 0, fmt.Errorf("check ignore list: %w", err)
	}
	if ignored {
		return 0, nil
	}

	msg, err := s.lookup.LookupMessage(ctx, r.ChannelID, r.MessageID)
	if err != nil {
		return 0, fmt.Errorf("lookup message %s: %w", r.MessageID, err)
	}

	if !msg.CreatedAt.After(s.now().Add(-s.window)) {
		return 0, nil
	}
	if self := s.selfID.Load(); self != nil && msg.AuthorID == *self {
		return 0, nil
	}
	if r.UserID == msg.AuthorID {
		return 0, nil
	}

	delta := int(vote)
	action := vote.String()
	if r.Removed {
		delta = -delta
		action = "remove " + action
	}

	total, err := s.store.AddKarma(ctx, r.GuildID, msg.AuthorID, delta)
	if err != nil {
		return 0, fmt.Errorf("update karma: %w", err)
	}

	s.log.Info().
		Str("guild", r.GuildID).
		Str("user", r.UserID).
		Str("author", msg.AuthorID).
		Str("vote", action).
		Int("karma", total).
		Msg("Karma vote")
	return delta, nil
}

// Karma returns a member's karma; members never voted on have zero.
func (s *Service) Karma(ctx context.Context, guildID, userID string) (int, error) {
	return s.store.Karma(ctx, guildID, userID)
}

// Leaderboard returns up to limit entries, highest karma first.
func (s *Service) Leaderboard(ctx context.Context, guildID string, limit int) ([]Entry, error) {
	return s.store.Leaderboard(ctx, guildID, limit)
}

// ToggleIgnore flips whether a member's reactions count and returns the new state.
func (s *Service) ToggleIgnore(ctx context.Context, guildID, userID string) (bool, error) {
	ignored, err := s.store.ToggleIgnore(ctx, guildID, userID)
	if err != nil {
		return false, err
	}
	s.log.Info().Str("guild", guildID).Str("user", userID).Bool("ignored", ignored).Msg("Toggled karma ignore")
	return ignored, nil
}

// Reactions returns the guild's configured vote reactions.
func (s *Service) Reactions(ctx context.Context, guildID string) (Reactions, error) {
	return s.store.Reactions(ctx, guildID)
}

// SetReaction assigns the emoji key used for one vote direction.
func (s *Service) SetReaction(ctx context.Context, guildID string, vote Vote, emojiKey string) error {
	if vote != Up && vote != Down {
		return ErrInvalidVote
	}
	if emojiKey == "" {
		return ErrEmptyReaction
	}
	current, err := s.store.Reactions(ctx, guildID)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	if (vote == Up && current.Downvote == emojiKey) || (vote == Down && current.Upvote == emojiKey) {
		return ErrSameReaction
	}
	if err := s.store.SetReaction(ctx, guildID, vote, emojiKey); err != nil {
		return err
	}
	s.log.Info().Str("guild", guildID).Str("vote", vote.String()).Str("emoji", emojiKey).Msg("Set karma reaction")
	return nil
}
