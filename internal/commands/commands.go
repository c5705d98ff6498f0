// Package commands is the bot's built-in command set.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"banebot/internal/karma"
	"banebot/internal/middleware"
	st "banebot/internal/storagetypes"
	"banebot/pkg/cmd"
)

const discordMaxMessageLength = 2000

// HistoryReader returns a guild's recent command records, oldest first.
type HistoryReader interface {
	CommandHistory(ctx context.Context, guildID string) ([]st.CommandRecord, error)
}

// Deps are the collaborators the command set needs. Commands whose
// collaborator is missing are not registered.
type Deps struct {
	Prefix  string
	Karma   *karma.Service
	History HistoryReader

	// Latency reports gateway heartbeat latency for ping. Nil prints no figure.
	Latency func() time.Duration

	Permissions middleware.PermissionChecker
	Recorder    middleware.CommandRecorder
	Logger      *zerolog.Logger
}

// Register adds the built-in commands to reg with their middleware applied.
func Register(reg *cmd.Registry, deps Deps) error {
	if deps.Prefix == "" {
		deps.Prefix = "!"
	}

	logged := middleware.WithCommandLog(deps.Recorder, deps.Logger)
	guild := middleware.WithGuildOnly()
	admin := middleware.WithPermission(deps.Permissions)

	list := []cmd.Command{
		cmd.Apply(&PingCommand{Latency: deps.Latency}, logged),
		cmd.Apply(&EchoCommand{}, logged),
		cmd.Apply(&HelpCommand{Registry: reg, Prefix: deps.Prefix}, logged),
	}

	if deps.Karma != nil {
		list = append(list,
			cmd.Apply(&KarmaCommand{Karma: deps.Karma}, guild, logged),
			cmd.Apply(&LeaderboardCommand{Karma: deps.Karma}, guild, logged),
			cmd.Apply(&IgnoreCommand{Karma: deps.Karma}, guild, admin, logged),
			cmd.Apply(&ReactionCommand{Karma: deps.Karma, Vote: karma.Up}, guild, admin, logged),
			cmd.Apply(&ReactionCommand{Karma: deps.Karma, Vote: karma.Down}, guild, admin, logged),
		)
	}

	if deps.History != nil {
		list = append(list, cmd.Apply(&HistoryCommand{History: deps.History}, guild, admin, logged))
	}

	for _, c := range list {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.Name(), err)
		}
	}
	return nil
}
