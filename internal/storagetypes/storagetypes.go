package storagetypes

import (
	"context"
	"time"

	"banebot/internal/karma"
)

// HistoryLimit is how many command records each guild keeps.
const HistoryLimit = 20

type CommandRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Datetime  time.Time `json:"datetime"`
}

// Backend is everything the bot persists.
type Backend interface {
	karma.Store

	// AppendCommand records a command run, keeping the newest HistoryLimit.
	AppendCommand(ctx context.Context, guildID string, rec CommandRecord) error
	// CommandHistory returns records oldest first.
	CommandHistory(ctx context.Context, guildID string) ([]CommandRecord, error)

	Close() error
}
