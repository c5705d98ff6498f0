package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/peterh/liner"

	"banebot/internal/dispatch"
)

const consoleChannel = "console"

type console struct {
	d       *dispatch.Dispatcher
	out     io.Writer
	guildID string
	userID  string
}

func (c *console) loop(ctx context.Context) {
	line := liner.NewLiner()
	defer func() {
		_ = line.Close()
	}()

	line.SetCtrlCAborts(true)
	fmt.Fprintf(c.out, "Type commands with the %q prefix, `quit` or Ctrl+C to exit.\n", c.d.Prefix())

	for ctx.Err() == nil {
		input, err := line.Prompt("bane> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out, "Aborted")
			} else {
				fmt.Fprintln(c.out, "Error reading line: ", err)
			}
			return
		}
		if input == "quit" || input == "exit" {
			return
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)
		c.exec(ctx, input)
	}
}

func (c *console) exec(ctx context.Context, input string) dispatch.Result {
	res := c.d.OnMessage(ctx, dispatch.Message{
		ID:         fmt.Sprintf("%d", time.Now().UnixNano()),
		GuildID:    c.guildID,
		ChannelID:  consoleChannel,
		AuthorID:   c.userID,
		AuthorName: userName(),
		Text:       input,
		Timestamp:  time.Now(),
	})
	if res.Outcome == dispatch.NotACommand {
		fmt.Fprintf(c.out, "(not a command, start with %q)\n", c.d.Prefix())
	}
	return res
}

// writerSender prints replies instead of sending them to a channel.
type writerSender struct {
	w io.Writer
}

func (s writerSender) SendMessage(_ context.Context, _ string, content string) error {
	_, err := fmt.Fprintln(s.w, content)
	return err
}

// administrator grants every permission to the local user.
type administrator struct{}

func (administrator) MemberPermissions(context.Context, string, string, string) (int64, error) {
	return discordgo.PermissionAdministrator, nil
}

func userName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "console"
}
