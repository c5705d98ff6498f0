// Package discord connects the dispatcher and karma service to the Discord
// gateway.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"banebot/internal/dispatch"
	"banebot/internal/karma"
)

// Intents requested on identify.
const Intents = discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// MessageDispatcher is what the bot feeds inbound messages to.
type MessageDispatcher interface {
	OnMessage(ctx context.Context, msg dispatch.Message) dispatch.Result
	SetSelfID(id string)
	Shutdown(ctx context.Context) error
}

// ReactionHandler is what the bot feeds reaction events to.
type ReactionHandler interface {
	HandleReaction(ctx context.Context, r karma.Reaction) (int, error)
	SetSelfID(id string)
}

type Options struct {
	StatusActivity string
	ShutdownGrace  time.Duration
	Logger         *zerolog.Logger
}

// Bot owns the gateway session.
type Bot struct {
	dg         *discordgo.Session
	dispatcher MessageDispatcher
	reactions  ReactionHandler
	opts       Options
	log        zerolog.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu         sync.Mutex
	closing    bool
	reactionWG sync.WaitGroup
}

// New creates a session for token. Nothing connects until Run.
func New(token string, opts Options) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = Intents

	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "discord").Logger()
	}

	return &Bot{dg: dg, opts: opts, log: logger, ctx: context.Background(), stop: func() {}}, nil
}

// Session exposes the underlying session for wiring REST adapters.
func (b *Bot) Session() *discordgo.Session { return b.dg }

// Sender returns a rate-limited message sender on this session.
func (b *Bot) Sender() *Sender { return NewSender(b.dg, &b.log) }

// Permissions returns a member permission resolver on this session.
func (b *Bot) Permissions() *Permissions { return NewPermissions(b.dg) }

// Messages returns a message lookup backed by the state cache.
func (b *Bot) Messages() *Messages { return NewMessages(b.dg, b.dg.State) }

// Latency reports the gateway heartbeat latency.
func (b *Bot) Latency() time.Duration { return b.dg.HeartbeatLatency() }

// Attach sets the consumers of gateway events. Call before Run.
func (b *Bot) Attach(d MessageDispatcher, r ReactionHandler) {
	b.dispatcher = d
	b.reactions = r
}

// Run connects, blocks until ctx is done, drains running commands for at most
// the shutdown grace period, and closes the session.
func (b *Bot) Run(ctx context.Context) error {
	if b.dispatcher == nil {
		return fmt.Errorf("discord: no dispatcher attached")
	}
	// Handlers outlive the signal until the dispatcher's grace period ends.
	b.ctx, b.stop = context.WithCancel(context.WithoutCancel(ctx))
	defer b.stop()

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onMessageReactionAdd)
	b.dg.AddHandler(b.onMessageReactionRemove)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	<-ctx.Done()
	b.log.Info().Msg("❎ Shutdown signal received. Cleaning up...")

	graceCtx, cancel := context.WithTimeout(context.Background(), b.opts.ShutdownGrace)
	defer cancel()
	if err := b.drain(graceCtx); err != nil {
		b.log.Warn().Err(err).Msg("Handlers still running at shutdown")
	}

	if err := b.dg.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}
	return nil
}

// drain stops new reaction handlers, then waits for running commands and
// reactions until ctx ends.
func (b *Bot) drain(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	dispatchErr := b.dispatcher.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		b.reactionWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return dispatchErr
	case <-ctx.Done():
		select {
		case <-done:
			return dispatchErr
		default:
		}
		b.stop()
		return fmt.Errorf("reaction handlers still running: %w", ctx.Err())
	}
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.dispatcher.SetSelfID(r.User.ID)
	if b.reactions != nil {
		b.reactions.SetSelfID(r.User.ID)
	}

	if b.opts.StatusActivity != "" {
		err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
			Status: "online",
			Activities: []*discordgo.Activity{{
				Name: b.opts.StatusActivity,
				Type: discordgo.ActivityTypeWatching,
			}},
		})
		if err != nil {
			b.log.Warn().Err(err).Msg("Failed to set presence")
		}
	}

	b.log.Info().
		Str("user", r.User.ID).
		Str("username", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("✅ Discord bot is running")
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := toMessage(m)
	if !ok {
		return
	}
	b.dispatcher.OnMessage(b.ctx, msg)
}

func (b *Bot) onMessageReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil {
		return
	}
	b.handleReaction(toReaction(r.MessageReaction, false))
}

func (b *Bot) onMessageReactionRemove(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
	if r.MessageReaction == nil {
		return
	}
	b.handleReaction(toReaction(r.MessageReaction, true))
}

func (b *Bot) handleReaction(r karma.Reaction) {
	if b.reactions == nil || r.GuildID == "" {
		return
	}

	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return
	}
	b.reactionWG.Add(1)
	b.mu.Unlock()
	defer b.reactionWG.Done()

	if _, err := b.reactions.HandleReaction(b.ctx, r); err != nil {
		b.log.Error().
			Err(err).
			Str("guild", r.GuildID).
			Str("channel", r.ChannelID).
			Str("user", r.UserID).
			Msg("Failed to handle karma reaction")
	}
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil {
		return
	}
	b.log.Debug().
		Str("guild", v.GuildID).
		Str("channel", v.ChannelID).
		Str("user", v.UserID).
		Msg("Voice state update")
}

func toMessage(m *discordgo.MessageCreate) (dispatch.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return dispatch.Message{}, false
	}
	return dispatch.Message{
		ID:         m.ID,
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		AuthorBot:  m.Author.Bot,
		Text:       m.Content,
		Timestamp:  m.Timestamp,
		Data:       m,
	}, true
}

// emojiKey is the custom emoji ID, or the unicode name for standard emoji.
func emojiKey(e discordgo.Emoji) string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

func toReaction(r *discordgo.MessageReaction, removed bool) karma.Reaction {
	return karma.Reaction{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		EmojiKey:  emojiKey(r.Emoji),
		Removed:   removed,
	}
}
