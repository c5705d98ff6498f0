package commands

import (
	"context"
	"strings"

	"banebot/pkg/cmd"
)

type EchoCommand struct{}

func (c *EchoCommand) Name() string        { return "echo" }
func (c *EchoCommand) Description() string { return "Repeat the given text" }
func (c *EchoCommand) Aliases() []string   { return []string{"say"} }
func (c *EchoCommand) Usage() string       { return "<text>" }

func (c *EchoCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	if len(inv.Args) == 0 {
		return cmd.NewUserError("Nothing to echo.")
	}
	return inv.Reply(ctx, strings.Join(inv.Args, " "))
}
