package mpdproto

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/version"
)

// Framing sentinels.
const (
	listBegin   = "command_list_begin"
	listOKBegin = "command_list_ok_begin"
	listEnd     = "command_list_end"
	listOK      = "list_OK"
	responseOK  = "OK"
)

// maxLineLength bounds a single request line.
const maxLineLength = 64 * 1024

var errConnClosed = errors.New("connection closed")

// conn serves one client connection.
type conn struct {
	srv    *Server
	id     string
	nc     net.Conn
	log    zerolog.Logger
	sub    *idle.Subscription
	lines  chan string
	closed chan struct{}
}

func newConn(srv *Server, id string, nc net.Conn, logger zerolog.Logger) *conn {
	return &conn{
		srv:    srv,
		id:     id,
		nc:     nc,
		log:    logger,
		sub:    srv.client.Bus.Subscribe(),
		lines:  make(chan string),
		closed: make(chan struct{}),
	}
}

// serve runs the read loop until the peer leaves, ctx ends or a framing
// limit is hit.
func (c *conn) serve(ctx context.Context) {
	defer c.sub.Close()
	defer close(c.closed)

	go c.readLines()

	if err := c.write([]string{version.Greeting()}); err != nil {
		return
	}

	for {
		line, err := c.next(ctx, nil)
		if err != nil {
			return
		}
		c.log.Debug().Str("line", line).Msg("Command received")

		switch verb := verbOf(line); {
		case line == "":
			continue

		case line == listBegin || line == listOKBegin:
			batch, ack := c.readList(ctx)
			if ack != nil {
				c.log.Warn().Str("reason", ack.Message).Msg("Command list rejected")
				c.write([]string{ack.Line(0)})
				return
			}
			if len(batch) == 0 {
				c.write([]string{responseOK})
				continue
			}
			if !c.execute(ctx, batch, line == listOKBegin) {
				return
			}

		case verb == "close":
			return

		case verb == "noidle":
			// Only meaningful while idle.
			continue

		case verb == "idle":
			if !c.idle(ctx, line) {
				return
			}

		default:
			if !c.execute(ctx, []string{line}, false) {
				return
			}
		}
	}
}

// readLines feeds request lines to the serve loop.
func (c *conn) readLines() {
	defer close(c.lines)

	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		select {
		case c.lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-c.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Debug().Err(err).Msg("Read failed")
	}
}

// next waits for a line. A nil timeout channel waits indefinitely.
func (c *conn) next(ctx context.Context, timeout <-chan time.Time) (string, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", errConnClosed
		}
		return line, nil
	case <-timeout:
		return "", context.DeadlineExceeded
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readList collects a command list up to its end sentinel, within the
// configured size and time limits.
func (c *conn) readList(ctx context.Context) ([]string, *AckError) {
	timer := time.NewTimer(c.srv.opts.CommandListTimeout)
	defer timer.Stop()

	var batch []string
	for {
		line, err := c.next(ctx, timer.C)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &AckError{Code: AckArg, Command: listBegin, Message: "command list timeout"}
		}
		if err != nil {
			return nil, &AckError{Code: AckArg, Command: listBegin, Message: "unterminated command list"}
		}
		c.log.Debug().Str("line", line).Msg("Command received")
		if line == listEnd {
			return batch, nil
		}
		if line == "" {
			continue
		}
		if len(batch) >= c.srv.opts.CommandListMax {
			return nil, &AckError{Code: AckArg, Command: listBegin, Message: "command list too long"}
		}
		batch = append(batch, line)
	}
}

// execute runs a batch and writes its response in one write. Every command
// runs; output stops at the first failure, which is reported as the single
// ACK terminator.
func (c *conn) execute(ctx context.Context, batch []string, okMode bool) bool {
	var (
		out    []string
		ack    *AckError
		ackIdx int
	)

	cmdCtx := withSubscription(ctx, c.sub)
	for i, line := range batch {
		lines, err := c.srv.dispatch(cmdCtx, line)
		if err != nil {
			c.log.Debug().Err(err).Str("line", line).Msg("Command failed")
			if ack == nil {
				ack = err
				ackIdx = i
			}
			continue
		}
		if ack != nil {
			continue
		}
		out = append(out, lines...)
		if okMode {
			out = append(out, listOK)
		}
	}

	if ack != nil {
		out = append(out, ack.Line(ackIdx))
	} else {
		out = append(out, responseOK)
	}
	return c.write(out) == nil
}

// idle answers a bare idle: pending changes right away, otherwise block
// until a matching change, noidle, or disconnect.
func (c *conn) idle(ctx context.Context, line string) bool {
	filter, err := idleFilter(parseArgs("idle", line))
	if err != nil {
		return c.write([]string{toAck("idle", err).Line(0)}) == nil
	}

	if changed := c.sub.Take(filter...); len(changed) > 0 {
		return c.write(append(changedLines(changed), responseOK)) == nil
	}

	c.log.Debug().Interface("filter", filter).Msg("Idle")
	for {
		select {
		case <-c.sub.C():
			if changed := c.sub.Take(filter...); len(changed) > 0 {
				return c.write(append(changedLines(changed), responseOK)) == nil
			}

		case next, ok := <-c.lines:
			if !ok {
				return false
			}
			if verbOf(next) != "noidle" {
				c.log.Warn().Str("line", next).Msg("Command sent while idle, closing")
				return false
			}
			return c.write(append(changedLines(c.sub.Take(filter...)), responseOK)) == nil

		case <-ctx.Done():
			return false
		}
	}
}

func (c *conn) write(lines []string) error {
	if c.srv.opts.WriteTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
	}
	_, err := c.nc.Write([]byte(strings.Join(lines, "\n") + "\n"))
	if err != nil {
		c.log.Debug().Err(err).Msg("Write failed")
	}
	return err
}
