package middleware

import (
	"context"

	"banebot/pkg/cmd"
)

// ErrGuildOnly is shown when a guild command is used in a direct message.
var ErrGuildOnly = cmd.NewUserError("This command only works in a server.")

// WithGuildOnly rejects invocations that did not come from a guild channel.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if !inv.InGuild() {
				return ErrGuildOnly
			}
			return c.Run(ctx, inv)
		})
	}
}
