// Package dispatch turns inbound chat messages into command invocations.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"banebot/pkg/cmd"
)

const (
	defaultTimeout = 5 * time.Second
	defaultWorkers = 16

	unknownReply = "Unknown command. Try `%shelp`."
	errorReply   = "Something went wrong running that command."
	timeoutReply = "That command took too long and was cancelled."
)

// Message is the transport-neutral view of an inbound chat message.
type Message struct {
	ID         string
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	AuthorBot  bool
	Text       string
	Timestamp  time.Time

	// Data is handed to commands untouched (e.g. *discordgo.MessageCreate).
	Data any
}

// Sender delivers text to a channel.
type Sender interface {
	SendMessage(ctx context.Context, channelID, content string) error
}

// Options configure a Dispatcher. Prefix is required.
type Options struct {
	Prefix  string
	Timeout time.Duration
	Workers int

	ReplyUnknown bool
	ReplyErrors  bool
	AllowDM      bool
	IgnoreBots   bool

	Logger *zerolog.Logger
}

// Dispatcher matches messages against a Registry and runs the resolved
// command on a bounded set of workers. It is safe for concurrent use.
type Dispatcher struct {
	reg  *cmd.Registry
	out  Sender
	opts Options
	log  zerolog.Logger

	selfID atomic.Pointer[string]
	sem    chan struct{}

	mu       sync.Mutex
	closing  bool
	wg       sync.WaitGroup
	inflight atomic.Int64

	base   context.Context
	cancel context.CancelFunc
}

// New builds a Dispatcher. The registry must be fully populated; it is read
// without locks from then on.
func New(reg *cmd.Registry, out Sender, opts Options) (*Dispatcher, error) {
	if reg == nil {
		return nil, errors.New("dispatch: nil registry")
	}
	if opts.Prefix == "" {
		return nil, errors.New("dispatch: empty prefix")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "dispatch").Logger()
	}

	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		reg:    reg,
		out:    out,
		opts:   opts,
		log:    logger,
		sem:    make(chan struct{}, opts.Workers),
		base:   base,
		cancel: cancel,
	}, nil
}

// SetSelfID tells the dispatcher which author ID belongs to the bot so its own
// messages are never treated as commands.
func (d *Dispatcher) SetSelfID(id string) {
	d.selfID.Store(&id)
}

// Prefix returns the configured command prefix.
func (d *Dispatcher) Prefix() string {
	return d.opts.Prefix
}

// InFlight returns the number of handlers currently running.
func (d *Dispatcher) InFlight() int {
	return int(d.inflight.Load())
}

// OnMessage dispatches one message. Handler failures are reported in the
// Result and never returned or re-panicked.
func (d *Dispatcher) OnMessage(ctx context.Context, msg Message) Result {
	if !d.eligible(msg) {
		return Result{Outcome: NotACommand}
	}

	name, args, ok := Parse(d.opts.Prefix, msg.Text)
	if !ok {
		return Result{Outcome: NotACommand}
	}

	c, found := d.reg.Resolve(name)
	if !found {
		d.log.Debug().
			Str("guild", msg.GuildID).
			Str("channel", msg.ChannelID).
			Str("user", msg.AuthorID).
			Str("command", name).
			Msg("Unknown command")
		if d.opts.ReplyUnknown {
			d.reply(ctx, msg.ChannelID, fmt.Sprintf(unknownReply, d.opts.Prefix))
		}
		return Result{Outcome: UnknownCommand, Command: name}
	}

	inv := &cmd.Invocation{
		ID:         uuid.NewString(),
		GuildID:    msg.GuildID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Text:       msg.Text,
		Args:       args,
		Timestamp:  msg.Timestamp,
		Replier:    channelReplier{out: d.out, channelID: msg.ChannelID},
		Data:       msg.Data,
	}

	start := time.Now()
	err := d.execute(ctx, c, inv)
	if err != nil {
		d.log.Error().
			Err(err).
			Str("invocation", inv.ID).
			Str("guild", inv.GuildID).
			Str("channel", inv.ChannelID).
			Str("user", inv.AuthorID).
			Str("username", inv.AuthorName).
			Str("command", c.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Command failed")
		if d.opts.ReplyErrors && !errors.Is(err, ErrClosed) {
			d.reply(ctx, msg.ChannelID, userFacing(err))
		}
		return Result{Outcome: HandlerError, Command: c.Name(), Err: err}
	}

	d.log.Debug().
		Str("invocation", inv.ID).
		Str("command", c.Name()).
		Str("user", inv.AuthorID).
		Dur("elapsed", time.Since(start)).
		Msg("Command handled")
	return Result{Outcome: Handled, Command: c.Name()}
}

// Shutdown stops accepting commands and waits for running handlers. When ctx
// expires first, the handlers' contexts are cancelled and an error is
// returned without waiting further.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		d.log.Warn().Int("inflight", d.InFlight()).Msg("Grace period expired, cancelling handlers")
		return fmt.Errorf("dispatch: %d handlers still running: %w", d.InFlight(), ctx.Err())
	}
}

func (d *Dispatcher) eligible(msg Message) bool {
	if self := d.selfID.Load(); self != nil && msg.AuthorID == *self {
		return false
	}
	if msg.AuthorBot && d.opts.IgnoreBots {
		return false
	}
	if msg.GuildID == "" && !d.opts.AllowDM {
		return false
	}
	return true
}

// execute runs c on a worker slot and waits at most opts.Timeout for it. A
// handler that ignores cancellation keeps its slot until it returns, so stuck
// handlers never exceed the worker bound.
func (d *Dispatcher) execute(ctx context.Context, c cmd.Command, inv *cmd.Invocation) error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	runCtx, cancel := context.WithTimeout(d.base, d.opts.Timeout)
	stop := context.AfterFunc(ctx, cancel)

	select {
	case d.sem <- struct{}{}:
	case <-runCtx.Done():
		stop()
		cancel()
		d.wg.Done()
		return d.abortErr(ctx, runCtx, ErrBusy)
	}

	done := make(chan error, 1)
	d.inflight.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		defer d.inflight.Add(-1)
		defer stop()
		defer cancel()
		done <- d.invoke(runCtx, c, inv)
	}()

	select {
	case err := <-done:
		return d.handlerErr(ctx, runCtx, err)
	case <-runCtx.Done():
		select {
		case err := <-done:
			return d.handlerErr(ctx, runCtx, err)
		default:
		}
		return d.abortErr(ctx, runCtx, ErrTimeout)
	}
}

// handlerErr maps a handler that gave up because its context ended onto the
// same error a caller would see had it stopped waiting first.
func (d *Dispatcher) handlerErr(caller, runCtx context.Context, err error) error {
	if err != nil && runCtx.Err() != nil && errors.Is(err, runCtx.Err()) {
		return d.abortErr(caller, runCtx, ErrTimeout)
	}
	return err
}

func (d *Dispatcher) abortErr(caller, runCtx context.Context, onDeadline error) error {
	switch {
	case d.base.Err() != nil:
		return ErrClosed
	case caller.Err() != nil:
		return caller.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", onDeadline, d.opts.Timeout)
	default:
		return runCtx.Err()
	}
}

func (d *Dispatcher) invoke(ctx context.Context, c cmd.Command, inv *cmd.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("invocation", inv.ID).
				Str("command", c.Name()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered handler panic")
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return c.Run(ctx, inv)
}

func (d *Dispatcher) reply(ctx context.Context, channelID, content string) {
	if d.out == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.Timeout)
	defer cancel()
	if err := d.out.SendMessage(ctx, channelID, content); err != nil {
		d.log.Warn().Err(err).Str("channel", channelID).Msg("Failed to send reply")
	}
}

func userFacing(err error) string {
	if msg, ok := cmd.UserMessage(err); ok {
		return msg
	}
	if errors.Is(err, ErrTimeout) {
		return timeoutReply
	}
	return errorReply
}

type channelReplier struct {
	out       Sender
	channelID string
}

func (r channelReplier) Reply(ctx context.Context, content string) error {
	if r.out == nil {
		return nil
	}
	return r.out.SendMessage(ctx, r.channelID, content)
}
