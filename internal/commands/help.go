package commands

import (
	"context"
	"fmt"
	"strings"

	"banebot/pkg/cmd"
)

type HelpCommand struct {
	Registry *cmd.Registry
	Prefix   string
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List commands or describe one" }
func (c *HelpCommand) Aliases() []string   { return []string{"commands"} }
func (c *HelpCommand) Usage() string       { return "[command]" }

func (c *HelpCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	if len(inv.Args) > 0 {
		target, ok := c.Registry.Resolve(inv.Args[0])
		if !ok {
			return cmd.NewUserError(fmt.Sprintf("No command called `%s`.", inv.Args[0]))
		}
		return inv.Reply(ctx, c.describe(target))
	}

	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, command := range c.Registry.All() {
		sb.WriteString(fmt.Sprintf("`%s%s` - %s\n", c.Prefix, command.Name(), command.Description()))
	}
	sb.WriteString(fmt.Sprintf("\nUse `%shelp <command>` for details.", c.Prefix))
	return inv.Reply(ctx, sb.String())
}

func (c *HelpCommand) describe(command cmd.Command) string {
	var sb strings.Builder

	usage := c.Prefix + command.Name()
	if u, ok := cmd.Root(command).(cmd.Usager); ok && u.Usage() != "" {
		usage += " " + u.Usage()
	}
	sb.WriteString(fmt.Sprintf("`%s`\n%s", usage, command.Description()))

	if aliases := command.Aliases(); len(aliases) > 0 {
		sb.WriteString(fmt.Sprintf("\nAliases: `%s`", strings.Join(aliases, "`, `")))
	}
	return sb.String()
}
