package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	st "banebot/internal/storagetypes"
	"banebot/pkg/cmd"
)

// CommandRecorder persists command history.
type CommandRecorder interface {
	AppendCommand(ctx context.Context, guildID string, rec st.CommandRecord) error
}

// WithCommandLog records every guild invocation after it runs, whether or not
// it failed. Recording errors are logged and never change the command result.
func WithCommandLog(recorder CommandRecorder, logger *zerolog.Logger) cmd.Middleware {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "command-log").Logger()
	}

	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			err := c.Run(ctx, inv)

			log.Info().
				Str("invocation", inv.ID).
				Str("guild", inv.GuildID).
				Str("channel", inv.ChannelID).
				Str("user", inv.AuthorID).
				Str("username", inv.AuthorName).
				Str("command", c.Name()).
				Strs("args", inv.Args).
				Bool("ok", err == nil).
				Msg("Command executed")

			if recorder == nil || !inv.InGuild() {
				return err
			}

			at := inv.Timestamp
			if at.IsZero() {
				at = time.Now()
			}
			rec := st.CommandRecord{
				ChannelID: inv.ChannelID,
				UserID:    inv.AuthorID,
				Username:  inv.AuthorName,
				Command:   c.Name(),
				Args:      inv.Args,
				Datetime:  at,
			}
			// Record even if ctx already expired.
			recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if rerr := recorder.AppendCommand(recCtx, inv.GuildID, rec); rerr != nil {
				log.Warn().Err(rerr).Str("guild", inv.GuildID).Str("command", c.Name()).Msg("Failed to record command")
			}
			return err
		})
	}
}
