package cmd

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Registry stores commands by lowercase name and alias. It does not perform
// dispatch; adapters resolve commands and invoke them with their own context.
//
// Registration happens once at startup, before any reader exists, so lookups
// take no lock.
type Registry struct {
	commands map[string]Command
	ordered  []Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command under its name and all aliases. If any of those keys
// is already taken the registry is left unchanged and an error wrapping
// ErrDuplicateCommand is returned.
func (r *Registry) Register(c Command) error {
	keys := make([]string, 0, 1+len(c.Aliases()))
	seen := make(map[string]struct{}, cap(keys))
	for _, k := range append([]string{c.Name()}, c.Aliases()...) {
		key := strings.ToLower(k)
		if key == "" || strings.ContainsFunc(key, unicode.IsSpace) {
			return fmt.Errorf("%w: %q", ErrInvalidName, k)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q declared twice by %q", ErrDuplicateCommand, k, c.Name())
		}
		if prev, ok := r.commands[key]; ok {
			return fmt.Errorf("%w: %q already registered by %q", ErrDuplicateCommand, k, prev.Name())
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	for _, key := range keys {
		r.commands[key] = c
	}
	r.ordered = append(r.ordered, c)
	return nil
}

// MustRegister is Register for static startup wiring; it panics on error.
func (r *Registry) MustRegister(c Command) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Resolve returns the command registered under name or alias, ignoring case.
func (r *Registry) Resolve(name string) (Command, bool) {
	c, ok := r.commands[strings.ToLower(name)]
	return c, ok
}

// All returns every registered command once, sorted by name.
func (r *Registry) All() []Command {
	list := make([]Command, len(r.ordered))
	copy(list, r.ordered)
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// Len returns the number of distinct commands.
func (r *Registry) Len() int {
	return len(r.ordered)
}
