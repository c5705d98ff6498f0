package middleware

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"banebot/pkg/cmd"
)

// PermissionChecker resolves a member's effective permissions in a channel.
type PermissionChecker interface {
	MemberPermissions(ctx context.Context, guildID, channelID, userID string) (int64, error)
}

// WithPermission enforces cmd.PermissionRequirer. Commands that do not declare
// a requirement run unchecked. Administrator satisfies every requirement.
func WithPermission(checker PermissionChecker) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		req, ok := cmd.Root(c).(cmd.PermissionRequirer)
		if !ok || checker == nil {
			return c
		}
		required := req.RequiredPermission()
		if required == 0 {
			return c
		}

		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if !inv.InGuild() {
				return ErrGuildOnly
			}

			perms, err := checker.MemberPermissions(ctx, inv.GuildID, inv.ChannelID, inv.AuthorID)
			if err != nil {
				return fmt.Errorf("failed to get user permissions: %w", err)
			}
			if perms&discordgo.PermissionAdministrator != 0 || perms&required == required {
				return c.Run(ctx, inv)
			}

			return cmd.NewUserError(fmt.Sprintf(
				"You need the `%s` permission to run this command.", PermissionLabel(required&^perms),
			))
		})
	}
}
