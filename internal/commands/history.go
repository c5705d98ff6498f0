package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"banebot/pkg/cmd"
)

const (
	codeLeftBlockWrapper  = "```md\n"
	codeRightBlockWrapper = "```"
)

var maxContentLength = discordMaxMessageLength - len(codeLeftBlockWrapper) - len(codeRightBlockWrapper)

type HistoryCommand struct {
	History HistoryReader
}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Description() string { return "Review recent commands" }
func (c *HistoryCommand) Aliases() []string   { return []string{"cmdlog"} }
func (c *HistoryCommand) RequiredPermission() int64 {
	return discordgo.PermissionManageGuild
}

func (c *HistoryCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	records, err := c.History.CommandHistory(ctx, inv.GuildID)
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}
	if len(records) == 0 {
		return inv.Reply(ctx, "No commands recorded yet.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%-19s\t%-15s\t%s\n", "# Datetime", "# Username", "# Command"))

	// Latest first.
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		line := fmt.Sprintf("%-19s\t%-15s\t%s\n",
			r.Datetime.Format("2006-01-02 15:04:05"),
			r.Username,
			strings.TrimSpace(r.Command+" "+strings.Join(r.Args, " ")),
		)
		if builder.Len()+len(line) > maxContentLength {
			break
		}
		builder.WriteString(line)
	}

	return inv.Reply(ctx, codeLeftBlockWrapper+builder.String()+codeRightBlockWrapper)
}
