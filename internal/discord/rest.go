package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"banebot/internal/karma"
	"banebot/pkg/retrylimit"
)

// restClient is the slice of *discordgo.Session the adapters call.
type restClient interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelPermissions(userID, channelID string, options ...discordgo.RequestOption) (int64, error)
}

// stateCache is the slice of *discordgo.State used before falling back to REST.
type stateCache interface {
	Message(channelID, messageID string) (*discordgo.Message, error)
}

var (
	_ restClient = (*discordgo.Session)(nil)
	_ stateCache = (*discordgo.State)(nil)
)

// noMentions renders mentions in replies without notifying anyone.
func noMentions() *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
}

// restError exposes the status code of a discordgo.RESTError to retrylimit.
type restError struct {
	*discordgo.RESTError
}

func (e restError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

func (e restError) Unwrap() error { return e.RESTError }

// classify prepares a REST failure for the retry loop: 429 and 5xx stay
// retryable, other HTTP statuses become fatal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return err
	}
	wrapped := restError{RESTError: re}
	code := wrapped.StatusCode()
	if code == http.StatusTooManyRequests || code >= 500 {
		return wrapped
	}
	return retrylimit.Fatal(wrapped)
}

// Sender sends channel messages through the REST API with adaptive rate
// limiting and retries.
type Sender struct {
	rest  restClient
	lim   *retrylimit.AdaptiveLimiter
	retry retrylimit.RetryConfig
}

func NewSender(rest restClient, logger *zerolog.Logger) *Sender {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.Logger = logger
	return &Sender{
		rest:  rest,
		lim:   retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		retry: cfg,
	}
}

// SendMessage implements dispatch.Sender.
func (s *Sender) SendMessage(ctx context.Context, channelID, content string) error {
	err := retrylimit.WithRetryConfig(ctx, func() error {
		_, err := s.rest.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:         content,
			AllowedMentions: noMentions(),
		}, discordgo.WithContext(ctx))
		return classify(err)
	}, s.lim, s.retry)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return nil
}

// Permissions resolves member permissions for middleware.WithPermission.
type Permissions struct {
	rest restClient
}

func NewPermissions(rest restClient) *Permissions {
	return &Permissions{rest: rest}
}

func (p *Permissions) MemberPermissions(ctx context.Context, _, channelID, userID string) (int64, error) {
	return p.rest.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
}

// Messages implements karma.MessageLookup from the state cache, falling back to REST.
type Messages struct {
	rest  restClient
	state stateCache
}

func NewMessages(rest restClient, state stateCache) *Messages {
	return &Messages{rest: rest, state: state}
}

func (m *Messages) LookupMessage(ctx context.Context, channelID, messageID string) (karma.MessageInfo, error) {
	var msg *discordgo.Message
	if m.state != nil {
		msg, _ = m.state.Message(channelID, messageID)
	}
	if msg == nil {
		var err error
		msg, err = m.rest.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
		if err != nil {
			return karma.MessageInfo{}, err
		}
	}
	if msg.Author == nil {
		return karma.MessageInfo{}, fmt.Errorf("message %s has no author", messageID)
	}
	return karma.MessageInfo{AuthorID: msg.Author.ID, CreatedAt: msg.Timestamp}, nil
}
