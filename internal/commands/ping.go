package commands

import (
	"context"
	"fmt"
	"time"

	"banebot/pkg/cmd"
)

type PingCommand struct {
	Latency func() time.Duration
}

func (c *PingCommand) Name() string        { return "ping" }
func (c *PingCommand) Description() string { return "Check bot latency" }
func (c *PingCommand) Aliases() []string   { return []string{} }

func (c *PingCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	if c.Latency == nil {
		return inv.Reply(ctx, "🏓 Pong!")
	}
	return inv.Reply(ctx, fmt.Sprintf("🏓 Pong! Latency: `%dms`", c.Latency().Milliseconds()))
}
