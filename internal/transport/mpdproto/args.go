package mpdproto

import (
	"regexp"
	"strconv"
	"strings"
)

// quoted captures a double-quoted argument.
var quoted = regexp.MustCompile(`"([^"]*)"`)

// Args is the argument part of a command line.
type Args struct {
	Verb string
	Raw  string // text after the verb, trimmed
}

func parseArgs(verb, line string) Args {
	return Args{
		Verb: verb,
		Raw:  strings.TrimSpace(strings.TrimPrefix(line, verb)),
	}
}

// Value returns the first quoted substring, or the first bare token when
// nothing is quoted.
func (a Args) Value() (string, bool) {
	if m := quoted.FindStringSubmatch(a.Raw); m != nil {
		return m[1], true
	}
	if fields := strings.Fields(a.Raw); len(fields) > 0 {
		return fields[0], true
	}
	return "", false
}

// Fields returns every argument: all quoted substrings if any, otherwise
// the whitespace-separated tokens. It is nil without arguments.
func (a Args) Fields() []string {
	if ms := quoted.FindAllStringSubmatch(a.Raw, -1); ms != nil {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m[1]
		}
		return out
	}
	if fields := strings.Fields(a.Raw); len(fields) > 0 {
		return fields
	}
	return nil
}

// Required returns the argument or an ACK when it is missing.
func (a Args) Required() (string, error) {
	v, ok := a.Value()
	if !ok {
		return "", Ackf(AckArg, "wrong number of arguments for %q", a.Verb)
	}
	return v, nil
}

// Int parses an optional integer argument.
func (a Args) Int() (int, bool, error) {
	v, ok := a.Value()
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, Ackf(AckArg, "Integer expected: %s", v)
	}
	return n, true, nil
}

// RequiredInt parses a mandatory integer argument.
func (a Args) RequiredInt() (int, error) {
	n, ok, err := a.Int()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, Ackf(AckArg, "wrong number of arguments for %q", a.Verb)
	}
	return n, nil
}
