package mpdproto

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// HandlerFunc runs one command and returns its response lines.
type HandlerFunc func(ctx context.Context, c *Client, args Args) ([]string, error)

// Command binds protocol verbs to a handler.
type Command struct {
	Verbs  []string
	Handle HandlerFunc
}

// Registry maps verbs to handlers. A command line selects the handler whose
// verb is the line's first token, so a verb matches only when followed by
// whitespace or the end of the line.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry registers cmds, failing on the first invalid or duplicate verb.
func NewRegistry(cmds ...Command) (*Registry, error) {
	r := &Registry{handlers: make(map[string]HandlerFunc)}
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry(cmds ...Command) *Registry {
	r, err := NewRegistry(cmds...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a command. Verbs must be non-empty, contain no whitespace or
// quote, and be unregistered.
func (r *Registry) Register(cmd Command) error {
	if cmd.Handle == nil {
		return fmt.Errorf("command %v has no handler", cmd.Verbs)
	}
	if len(cmd.Verbs) == 0 {
		return fmt.Errorf("command without verbs")
	}

	seen := make(map[string]bool, len(cmd.Verbs))
	for _, verb := range cmd.Verbs {
		if verb == "" {
			return fmt.Errorf("empty verb")
		}
		if strings.ContainsFunc(verb, func(r rune) bool { return unicode.IsSpace(r) || r == '"' }) {
			return fmt.Errorf("invalid verb %q", verb)
		}
		if _, exists := r.handlers[verb]; exists || seen[verb] {
			return fmt.Errorf("verb %q registered twice", verb)
		}
		seen[verb] = true
	}
	for _, verb := range cmd.Verbs {
		r.handlers[verb] = cmd.Handle
	}
	return nil
}

// Lookup finds the handler for a command line.
func (r *Registry) Lookup(line string) (string, HandlerFunc, bool) {
	verb := verbOf(line)
	h, ok := r.handlers[verb]
	return verb, h, ok
}

// Verbs returns the registered verbs in sorted order.
func (r *Registry) Verbs() []string {
	verbs := make([]string, 0, len(r.handlers))
	for v := range r.handlers {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// verbOf returns the first token of line.
func verbOf(line string) string {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		return line[:i]
	}
	return line
}
