// Package cmd provides a transport-agnostic command core: a command is something
// with a name, aliases, a description, and Run(ctx, invocation). How messages
// reach it (Discord gateway, local console) is decided by adapters that build
// the Invocation.
package cmd

import (
	"context"
	"time"
)

// Replier sends text back to wherever the invocation came from.
// It is borrowed from the adapter for the duration of one invocation.
type Replier interface {
	Reply(ctx context.Context, content string) error
}

// Invocation carries everything a command needs for a single run. Adapters set
// Data to their transport payload (e.g. *discordgo.MessageCreate).
type Invocation struct {
	ID         string
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Text       string
	Args       []string
	Timestamp  time.Time

	Replier Replier
	Data    any
}

// Reply is shorthand for inv.Replier.Reply. A nil Replier drops the content.
func (inv *Invocation) Reply(ctx context.Context, content string) error {
	if inv.Replier == nil {
		return nil
	}
	return inv.Replier.Reply(ctx, content)
}

// InGuild reports whether the invocation came from a guild channel.
func (inv *Invocation) InGuild() bool {
	return inv.GuildID != ""
}

// Command is the universal contract: identity plus execution. Permissions and
// transport-specific behaviour live in optional provider interfaces.
type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// PermissionRequirer is implemented by commands that need the invoking member to
// hold a minimum set of permission bits.
type PermissionRequirer interface {
	RequiredPermission() int64
}

// Usager is implemented by commands that print a usage line in help output.
type Usager interface {
	Usage() string
}
