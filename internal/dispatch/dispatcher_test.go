package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"banebot/pkg/cmd"
)

type sent struct {
	channelID string
	content   string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) SendMessage(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{channelID, content})
	return nil
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

type recorder struct {
	calls atomic.Int32
	mu    sync.Mutex
	args  [][]string
}

func (r *recorder) command(name string, aliases ...string) *cmd.Func {
	return &cmd.Func{
		CmdName:    name,
		CmdAliases: aliases,
		Fn: func(_ context.Context, inv *cmd.Invocation) error {
			r.calls.Add(1)
			r.mu.Lock()
			r.args = append(r.args, inv.Args)
			r.mu.Unlock()
			return nil
		},
	}
}

func (r *recorder) lastArgs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.args[len(r.args)-1]
}

func newTestDispatcher(t *testing.T, reg *cmd.Registry, out Sender, mutate ...func(*Options)) *Dispatcher {
	t.Helper()
	opts := Options{
		Prefix:       "!",
		Timeout:      time.Second,
		Workers:      4,
		ReplyUnknown: true,
		ReplyErrors:  true,
		IgnoreBots:   true,
	}
	for _, m := range mutate {
		m(&opts)
	}
	d, err := New(reg, out, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d
}

func msg(text string) Message {
	return Message{
		ID:         "m1",
		GuildID:    "g1",
		ChannelID:  "c1",
		AuthorID:   "u1",
		AuthorName: "alice",
		Text:       text,
		Timestamp:  time.Now(),
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, Options{Prefix: "!"})
	assert.Error(t, err)

	_, err = New(cmd.NewRegistry(), nil, Options{})
	assert.Error(t, err)
}

func TestOnMessage_Scenarios(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	reg := cmd.NewRegistry()
	reg.MustRegister(rec.command("ping"))
	reg.MustRegister(rec.command("echo", "say"))
	reg.MustRegister(&cmd.Func{
		CmdName: "crash",
		Fn: func(context.Context, *cmd.Invocation) error {
			panic("internal failure")
		},
	})

	out := &fakeSender{}
	d := newTestDispatcher(t, reg, out)
	ctx := context.Background()

	res := d.OnMessage(ctx, msg("!ping"))
	assert.Equal(t, Handled, res.Outcome)
	assert.Equal(t, "ping", res.Command)
	assert.Empty(t, rec.lastArgs())

	res = d.OnMessage(ctx, msg("!echo hello world"))
	assert.Equal(t, Handled, res.Outcome)
	assert.Equal(t, []string{"hello", "world"}, rec.lastArgs())

	res = d.OnMessage(ctx, msg("!SAY   spaced    out  "))
	assert.Equal(t, Handled, res.Outcome)
	assert.Equal(t, "echo", res.Command)
	assert.Equal(t, []string{"spaced", "out"}, rec.lastArgs())

	calls := rec.calls.Load()

	res = d.OnMessage(ctx, msg("hello"))
	assert.Equal(t, NotACommand, res.Outcome)

	res = d.OnMessage(ctx, msg("!"))
	assert.Equal(t, NotACommand, res.Outcome)

	res = d.OnMessage(ctx, msg("!unknowncmd"))
	assert.Equal(t, UnknownCommand, res.Outcome)
	assert.Equal(t, calls, rec.calls.Load(), "no handler may run for non-commands")

	res = d.OnMessage(ctx, msg("!crash"))
	assert.Equal(t, HandlerError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPanic)

	res = d.OnMessage(ctx, msg("!ping"))
	assert.Equal(t, Handled, res.Outcome)

	replies := out.all()
	require.Len(t, replies, 2)
	assert.Equal(t, "Unknown command. Try `!help`.", replies[0].content)
	assert.Equal(t, errorReply, replies[1].content)
	assert.NotContains(t, replies[1].content, "internal failure")
}

func TestOnMessage_HandlerErrorReplies(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := cmd.NewRegistry()
	reg.MustRegister(&cmd.Func{
		CmdName: "usage",
		Fn: func(context.Context, *cmd.Invocation) error {
			return cmd.NewUserError("Usage: !usage <thing>")
		},
	})
	reg.MustRegister(&cmd.Func{
		CmdName: "db",
		Fn: func(context.Context, *cmd.Invocation) error {
			return errors.New("connection refused to 10.0.0.3")
		},
	})

	out := &fakeSender{}
	d := newTestDispatcher(t, reg, out)

	res := d.OnMessage(context.Background(), msg("!usage"))
	assert.Equal(t, HandlerError, res.Outcome)

	res = d.OnMessage(context.Background(), msg("!db"))
	assert.Equal(t, HandlerError, res.Outcome)
	assert.EqualError(t, res.Err, "connection refused to 10.0.0.3")

	replies := out.all()
	require.Len(t, replies, 2)
	assert.Equal(t, "Usage: !usage <thing>", replies[0].content)
	assert.Equal(t, errorReply, replies[1].content)
}

func TestOnMessage_RepliesDisabled(t *testing.T) {
	reg := cmd.NewRegistry()
	reg.MustRegister(&cmd.Func{
		CmdName: "fail",
		Fn:      func(context.Context, *cmd.Invocation) error { return errors.New("boom") },
	})
	out := &fakeSender{}
	d := newTestDispatcher(t, reg, out, func(o *Options) {
		o.ReplyUnknown = false
		o.ReplyErrors = false
	})

	assert.Equal(t, UnknownCommand, d.OnMessage(context.Background(), msg("!nope")).Outcome)
	assert.Equal(t, HandlerError, d.OnMessage(context.Background(), msg("!fail")).Outcome)
	assert.Empty(t, out.all())
}

func TestOnMessage_Eligibility(t *testing.T) {
	rec := &recorder{}
	reg := cmd.NewRegistry()
	reg.MustRegister(rec.command("ping"))
	d := newTestDispatcher(t, reg, &fakeSender{})
	d.SetSelfID("bot")

	self := msg("!ping")
	self.AuthorID = "bot"
	assert.Equal(t, NotACommand, d.OnMessage(context.Background(), self).Outcome)

	otherBot := msg("!ping")
	otherBot.AuthorBot = true
	assert.Equal(t, NotACommand, d.OnMessage(context.Background(), otherBot).Outcome)

	dm := msg("!ping")
	dm.GuildID = ""
	assert.Equal(t, NotACommand, d.OnMessage(context.Background(), dm).Outcome)
	assert.Zero(t, rec.calls.Load())

	permissive := newTestDispatcher(t, reg, &fakeSender{}, func(o *Options) {
		o.AllowDM = true
		o.IgnoreBots = false
	})
	assert.Equal(t, Handled, permissive.OnMessage(context.Background(), dm).Outcome)
	assert.Equal(t, Handled, permissive.OnMessage(context.Background(), otherBot).Outcome)
}

func TestOnMessage_InvocationFields(t *testing.T) {
	var got *cmd.Invocation
	reg := cmd.NewRegistry()
	reg.MustRegister(&cmd.Func{
		CmdName: "whoami",
		Fn: func(ctx context.Context, inv *cmd.Invocation) error {
			got = inv
			return inv.Reply(ctx, "you are "+inv.AuthorName)
		},
	})
	out := &fakeSender{}
	d := newTestDispatcher(t, reg, out)

	m := msg("!whoami now")
	m.Data = "payload"
	require.Equal(t, Handled, d.OnMessage(context.Background(), m).Outcome)

	require.NotNil(t, got)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "g1", got.GuildID)
	assert.Equal(t, "c1", got.ChannelID)
	assert.Equal(t, "u1", got.AuthorID)
	assert.Equal(t, "!whoami now", got.Text)
	assert.Equal(t, []string{"now"}, got.Args)
	assert.Equal(t, "payload", got.Data)
	assert.Equal(t, []sent{{"c1", "you are alice"}}, out.all())
}

func TestOnMessage_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := cmd.NewRegistry()
	reg.MustRegister(&cmd.Func{
		CmdName: "slow",
		Fn: func(ctx context.Context, _ *cmd.Invocation) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	out := &fakeSender{}
	d := newTestDispatcher(t, reg, out, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	res := d.OnMessage(context.Background(), msg("!slow"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, HandlerError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrTimeout)

	replies := out.all()
	require.Len(t, replies, 1)
	assert.Equal(t, timeoutReply, replies[0].content)
}

func TestOnMessage_BusyWhenSaturated(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{})
	reg := cmd.NewRegistry()
	reg.MustRegister(&cmd.Func{
		CmdName: "hold",
		Fn: func(context.Context, *cmd.Invocation) error {
			close(started)
			<-release
			return nil
		},
	})
	reg.MustRegister(&cmd.Func{
		CmdName: "quick",
		Fn:      func(context.Context, *cmd.Invocation) error { return nil },
	})

	d := newTestDispatcher(t, reg, &fakeSender{}, func(o *Options) {
		o.Workers = 1
		o.Timeout = 50 * time.Millisecond
	})

	first := make(chan Result, 1)
	go func() { first <- d.OnMessage(context.Background(), msg("!hold")) }()
	<-started

	res := d.OnMessage(context.Background(), msg("!quick"))
	assert.Equal(t, HandlerError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrBusy)

	// The timed-out holder still owns the only slot until it returns.
	assert.ErrorIs(t, (<-first).Err, ErrTimeout)
	assert.Equal(t, 1, d.InFlight())

	close(release)
	require.Eventually(t, func() bool { return d.InFlight() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Handled, d.OnMessage(context.Background(), msg("!quick")).Outcome)
}

func TestOnMessage_Concurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	reg := cmd.NewRegistry()
	reg.MustRegister(rec.command("ping"))
	d := newTestDispatcher(t, reg, &fakeSender{}, func(o *Options) { o.Workers = 3 })

	var wg sync.WaitGroup
	var handled atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.OnMessage(context.Background(), msg("!ping")).Outcome == Handled {
				handled.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), handled.Load())
	assert.Equal(t, int32(50), rec.calls.Load())
}

func TestShutdown_DrainsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{})
	reg := cmd.NewRegistry()
	reg.MustRegister(&cmd.Func{
		CmdName: "work",
		Fn: func(context.Context, *cmd.Invocation) error {
			close(started)
			<-release
			return nil
		},
	})
	reg.MustRegister(&cmd.Func{
		CmdName: "ping",
		Fn:      func(context.Context, *cmd.Invocation) error { return nil },
	})
	out := &fakeSender{}
	d, err := New(reg, out, Options{Prefix: "!", Timeout: 5 * time.Second, ReplyErrors: true})
	require.NoError(t, err)

	result := make(chan Result, 1)
	go func() { result <- d.OnMessage(context.Background(), msg("!work")) }()
	<-started

	shutdown := make(chan error, 1)
	go func() { shutdown <- d.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool {
		return d.OnMessage(context.Background(), msg("!ping")).Outcome == HandlerError
	}, time.Second, 5*time.Millisecond)
	res := d.OnMessage(context.Background(), msg("!ping"))
	assert.ErrorIs(t, res.Err, ErrClosed)

	close(release)
	assert.Equal(t, Handled, (<-result).Outcome)
	assert.NoError(t, <-shutdown)
	assert.Empty(t, out.all(), "commands rejected during shutdown get no reply")
}

func TestShutdown_GraceExpiryCancelsHandlers(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	reg := cmd.NewRegistry()
	reg.MustRegister(&cmd.Func{
		CmdName: "stubborn",
		Fn: func(ctx context.Context, _ *cmd.Invocation) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	d, err := New(reg, nil, Options{Prefix: "!", Timeout: time.Minute})
	require.NoError(t, err)

	result := make(chan Result, 1)
	go func() { result <- d.OnMessage(context.Background(), msg("!stubborn")) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	res := <-result
	assert.Equal(t, HandlerError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrClosed)
	require.Eventually(t, func() bool { return d.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "handled", Handled.String())
	assert.Equal(t, "not_a_command", NotACommand.String())
	assert.Equal(t, "unknown_command", UnknownCommand.String())
	assert.Equal(t, "handler_error", HandlerError.String())
}
