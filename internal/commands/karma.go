package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"banebot/internal/karma"
	"banebot/pkg/cmd"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 25
)

type KarmaCommand struct {
	Karma *karma.Service
}

func (c *KarmaCommand) Name() string        { return "karma" }
func (c *KarmaCommand) Description() string { return "Show a member's karma" }
func (c *KarmaCommand) Aliases() []string   { return []string{} }
func (c *KarmaCommand) Usage() string       { return "[@member]" }

func (c *KarmaCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	userID := inv.AuthorID
	if len(inv.Args) > 0 {
		id, ok := parseUser(inv.Args[0])
		if !ok {
			return cmd.NewUserError("Mention a member or give their user ID.")
		}
		userID = id
	}

	k, err := c.Karma.Karma(ctx, inv.GuildID, userID)
	if err != nil {
		return fmt.Errorf("get karma: %w", err)
	}
	return inv.Reply(ctx, fmt.Sprintf("%s has %d karma.", mention(userID), k))
}

type LeaderboardCommand struct {
	Karma *karma.Service
}

func (c *LeaderboardCommand) Name() string        { return "leaderboard" }
func (c *LeaderboardCommand) Description() string { return "Show the members with the most karma" }
func (c *LeaderboardCommand) Aliases() []string   { return []string{"lb", "top"} }
func (c *LeaderboardCommand) Usage() string       { return "[size]" }

func (c *LeaderboardCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	size := defaultLeaderboardSize
	if len(inv.Args) > 0 {
		n, err := strconv.Atoi(inv.Args[0])
		if err != nil || n < 1 {
			return cmd.NewUserError("Leaderboard size must be a positive number.")
		}
		size = min(n, maxLeaderboardSize)
	}

	entries, err := c.Karma.Leaderboard(ctx, inv.GuildID, size)
	if err != nil {
		return fmt.Errorf("get leaderboard: %w", err)
	}
	if len(entries) == 0 {
		return inv.Reply(ctx, "Nobody has any karma yet.")
	}

	var sb strings.Builder
	sb.WriteString("**Karma leaderboard**\n")
	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%d. %s: %d\n", i+1, mention(e.UserID), e.Karma))
	}
	return inv.Reply(ctx, sb.String())
}

type IgnoreCommand struct {
	Karma *karma.Service
}

func (c *IgnoreCommand) Name() string        { return "karmaignore" }
func (c *IgnoreCommand) Description() string { return "Toggle whether a member's votes count" }
func (c *IgnoreCommand) Aliases() []string   { return []string{"ignore"} }
func (c *IgnoreCommand) Usage() string       { return "<@member>" }
func (c *IgnoreCommand) RequiredPermission() int64 {
	return discordgo.PermissionManageGuild
}

func (c *IgnoreCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	if len(inv.Args) == 0 {
		return cmd.NewUserError("Mention the member to ignore.")
	}
	userID, ok := parseUser(inv.Args[0])
	if !ok {
		return cmd.NewUserError("Mention a member or give their user ID.")
	}

	ignored, err := c.Karma.ToggleIgnore(ctx, inv.GuildID, userID)
	if err != nil {
		return fmt.Errorf("toggle ignore: %w", err)
	}
	if ignored {
		return inv.Reply(ctx, fmt.Sprintf("Votes from %s are now ignored.", mention(userID)))
	}
	return inv.Reply(ctx, fmt.Sprintf("Votes from %s count again.", mention(userID)))
}

// ReactionCommand sets the emoji for one vote direction. It registers as
// setupvote or setdownvote depending on Vote.
type ReactionCommand struct {
	Karma *karma.Service
	Vote  karma.Vote
}

func (c *ReactionCommand) Name() string {
	if c.Vote == karma.Down {
		return "setdownvote"
	}
	return "setupvote"
}

func (c *ReactionCommand) Description() string {
	return fmt.Sprintf("Set the reaction that counts as a %s", c.Vote)
}

func (c *ReactionCommand) Aliases() []string { return []string{} }
func (c *ReactionCommand) Usage() string     { return "<emoji>" }
func (c *ReactionCommand) RequiredPermission() int64 {
	return discordgo.PermissionManageGuild
}

func (c *ReactionCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	if len(inv.Args) == 0 {
		current, err := c.Karma.Reactions(ctx, inv.GuildID)
		if err != nil {
			return fmt.Errorf("get reactions: %w", err)
		}
		key := current.Upvote
		if c.Vote == karma.Down {
			key = current.Downvote
		}
		return inv.Reply(ctx, fmt.Sprintf("Current %s reaction: %s", c.Vote, formatEmojiKey(key)))
	}

	key := parseEmojiKey(inv.Args[0])
	err := c.Karma.SetReaction(ctx, inv.GuildID, c.Vote, key)
	switch {
	case errors.Is(err, karma.ErrSameReaction), errors.Is(err, karma.ErrEmptyReaction):
		return &cmd.UserError{Msg: capitalize(err.Error()) + ".", Err: err}
	case err != nil:
		return fmt.Errorf("set reaction: %w", err)
	}
	return inv.Reply(ctx, fmt.Sprintf("Set %s reaction to %s", c.Vote, formatEmojiKey(key)))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
