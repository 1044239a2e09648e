package socketio

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/edumarques81/spotmpd/internal/domain/streaming"
	"github.com/edumarques81/spotmpd/internal/transport/mpdproto"
)

var errBadPayload = errors.New("bad payload")

// control applies a player or queue event from a client.
func (s *Server) control(ctx context.Context, event string, args []any) error {
	q := s.queue

	switch event {
	case "play":
		// {value: n} plays position n, anything else resumes.
		if pos, ok := intField(first(args), "value"); ok && pos >= 0 {
			return q.PlayID(pos)
		}
		q.Play()
	case "pause":
		q.Pause()
	case "toggle":
		q.TogglePlayback()
	case "stop":
		q.Stop()
	case "next":
		q.Next()
	case "prev":
		q.Previous()
	case "volume":
		v, ok := first(args).(float64)
		if !ok || v < 0 || v > math.MaxUint16 {
			return fmt.Errorf("volume: %w", errBadPayload)
		}
		q.SetVolume(uint16(v))
	case "clearQueue":
		q.Clear()
	case "removeFromQueue":
		pos, ok := intField(first(args), "value")
		if !ok {
			return fmt.Errorf("removeFromQueue: %w", errBadPayload)
		}
		return q.Remove(pos)
	case "addToQueue":
		m, _ := first(args).(map[string]interface{})
		uri, _ := m["uri"].(string)
		id := mpdproto.TrackID(uri)
		if id == "" {
			return fmt.Errorf("addToQueue: %w", errBadPayload)
		}
		if s.catalog == nil {
			return fmt.Errorf("addToQueue: no catalog: %w", streaming.ErrNotFound)
		}
		track, err := s.catalog.LookupTrack(ctx, id)
		if err != nil {
			return fmt.Errorf("addToQueue %s: %w", id, err)
		}
		q.Append(track)
	default:
		return fmt.Errorf("unknown event %q", event)
	}
	return nil
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// intField reads a numeric key from a JSON object payload.
func intField(payload any, key string) (int, bool) {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return 0, false
	}
	v, ok := m[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}
