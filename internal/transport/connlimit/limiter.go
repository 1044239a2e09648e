// Package connlimit caps concurrent connections from remote peers. Loopback
// peers are never limited. When a remote peer pushes the count over the
// limit, the oldest remote peer is evicted.
package connlimit

import (
	"net"
	"sync"
)

// Limiter tracks connections by id. The zero value is not usable; call New.
type Limiter struct {
	mu        sync.Mutex
	maxRemote int
	remote    []string          // oldest first
	hosts     map[string]string // id -> host
}

// New creates a limiter allowing up to maxRemote non-loopback connections.
// A non-positive maxRemote disables the limit.
func New(maxRemote int) *Limiter {
	return &Limiter{
		maxRemote: maxRemote,
		hosts:     make(map[string]string),
	}
}

// Admit registers a connection from host and returns the id of the
// connection to evict, or "" when nobody has to go. Admitting a known id is
// a no-op.
func (l *Limiter) Admit(id, host string) (evicted string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.hosts[id]; ok {
		return ""
	}
	l.hosts[id] = host

	if IsLoopback(host) {
		return ""
	}

	l.remote = append(l.remote, id)
	if l.maxRemote <= 0 || len(l.remote) <= l.maxRemote {
		return ""
	}

	evicted = l.remote[0]
	l.remote = l.remote[1:]
	delete(l.hosts, evicted)
	return evicted
}

// Release forgets a connection.
func (l *Limiter) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	host, ok := l.hosts[id]
	if !ok {
		return
	}
	delete(l.hosts, id)

	if IsLoopback(host) {
		return
	}
	for i, r := range l.remote {
		if r == id {
			l.remote = append(l.remote[:i], l.remote[i+1:]...)
			break
		}
	}
}

// Len returns the number of tracked connections.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

// Remote returns the number of tracked non-loopback connections.
func (l *Limiter) Remote() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.remote)
}

// IsLoopback reports whether host (an IP, optionally with a port) is a
// loopback address.
func IsLoopback(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
