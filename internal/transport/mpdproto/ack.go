package mpdproto

import (
	"errors"
	"fmt"

	"github.com/edumarques81/spotmpd/internal/domain/queue"
	"github.com/edumarques81/spotmpd/internal/domain/streaming"
)

// AckCode is an MPD protocol error code.
type AckCode int

// Ack codes as defined by MPD.
const (
	AckNotList       AckCode = 1
	AckArg           AckCode = 2
	AckPassword      AckCode = 3
	AckPermission    AckCode = 4
	AckUnknown       AckCode = 5
	AckNoExist       AckCode = 50
	AckPlaylistMax   AckCode = 51
	AckSystem        AckCode = 52
	AckPlaylistLoad  AckCode = 53
	AckUpdateAlready AckCode = 54
	AckPlayerSync    AckCode = 55
	AckExist         AckCode = 56
)

// AckError is a command failure reported to the client as an ACK line.
type AckError struct {
	Code    AckCode
	Command string
	Message string
}

// Ackf builds an AckError. Command is filled in at dispatch.
func Ackf(code AckCode, format string, args ...any) *AckError {
	return &AckError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *AckError) Error() string {
	return fmt.Sprintf("ack %d {%s}: %s", e.Code, e.Command, e.Message)
}

// Line formats the error for the command at position index of a batch.
func (e *AckError) Line(index int) string {
	return fmt.Sprintf("ACK [%d@%d] {%s} %s", e.Code, index, e.Command, e.Message)
}

// toAck maps a handler error onto an ACK for verb.
func toAck(verb string, err error) *AckError {
	var ack *AckError
	switch {
	case errors.As(err, &ack):
		out := *ack
		if out.Command == "" {
			out.Command = verb
		}
		return &out
	case errors.Is(err, queue.ErrBadIndex):
		return &AckError{Code: AckArg, Command: verb, Message: "Bad song index"}
	case errors.Is(err, streaming.ErrNotFound):
		return &AckError{Code: AckNoExist, Command: verb, Message: "No such song"}
	default:
		return &AckError{Code: AckSystem, Command: verb, Message: err.Error()}
	}
}
