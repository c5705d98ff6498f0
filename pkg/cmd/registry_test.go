package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFunc(name string, aliases ...string) *Func {
	return &Func{
		CmdName:    name,
		CmdAliases: aliases,
		Fn:         func(context.Context, *Invocation) error { return nil },
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFunc("ping", "p")))
	require.NoError(t, r.Register(newFunc("Echo")))

	c, ok := r.Resolve("PING")
	require.True(t, ok)
	assert.Equal(t, "ping", c.Name())

	c, ok = r.Resolve("p")
	require.True(t, ok)
	assert.Equal(t, "ping", c.Name())

	c, ok = r.Resolve("echo")
	require.True(t, ok)
	assert.Equal(t, "Echo", c.Name())

	_, ok = r.Resolve("nope")
	assert.False(t, ok)
}

func TestRegistry_DuplicateLeavesRegistryUnchanged(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"same name", newFunc("ping")},
		{"name differs in case", newFunc("PiNg")},
		{"alias collides with name", newFunc("pong", "ping")},
		{"alias collides with alias", newFunc("pong", "P")},
		{"name collides with alias", newFunc("p")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			require.NoError(t, r.Register(newFunc("ping", "p")))

			err := r.Register(tt.cmd)
			require.ErrorIs(t, err, ErrDuplicateCommand)

			assert.Equal(t, 1, r.Len())
			_, ok := r.Resolve("pong")
			assert.False(t, ok, "no key of the rejected command may be inserted")
			c, _ := r.Resolve("ping")
			assert.Equal(t, "ping", c.Name())
		})
	}
}

func TestRegistry_SelfCollision(t *testing.T) {
	r := NewRegistry()
	err := r.Register(newFunc("ping", "PING"))
	require.ErrorIs(t, err, ErrDuplicateCommand)
	assert.Zero(t, r.Len())
}

func TestRegistry_InvalidName(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register(newFunc("")), ErrInvalidName)
	assert.ErrorIs(t, r.Register(newFunc("two words")), ErrInvalidName)
	assert.ErrorIs(t, r.Register(newFunc("ok", "")), ErrInvalidName)
	assert.ErrorIs(t, r.Register(newFunc("no\u00a0break")), ErrInvalidName)
	assert.ErrorIs(t, r.Register(newFunc("next\u0085line")), ErrInvalidName)
	assert.Zero(t, r.Len())
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newFunc("ping"))
	assert.Panics(t, func() { r.MustRegister(newFunc("ping")) })
}

func TestRegistry_AllSortedAndUnique(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(newFunc("karma", "k"))
	r.MustRegister(newFunc("echo"))
	r.MustRegister(newFunc("help", "h", "commands"))

	var names []string
	for _, c := range r.All() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"echo", "help", "karma"}, names)
}
