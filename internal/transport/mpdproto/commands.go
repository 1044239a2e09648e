package mpdproto

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/domain/player"
	"github.com/edumarques81/spotmpd/internal/domain/queue"
	"github.com/edumarques81/spotmpd/internal/domain/streaming"
)

// Client is the state shared by every connection.
type Client struct {
	Queue   *queue.Queue
	Catalog streaming.Catalog
	Bus     *idle.Bus
	Started time.Time
}

// Fixed audio format reported while a track is loaded.
const (
	nominalAudio   = "44100:24:2"
	nominalBitrate = 320
)

// epochModified is reported for catalog playlists, which carry no mtime.
const epochModified = "1970-01-01T00:00:00Z"

var (
	urlHandlers = []string{"handler: spotify:"}

	outputs = []string{
		"outputid: 0",
		"outputname: default detected output",
		"plugin: alsa",
		"outputenabled: 1",
		"attribute: allowed_formats=",
		"attribute: dop=0",
	}

	decoders = []string{
		"plugin: mad",
		"suffix: mp3",
		"suffix: mp2",
		"mime_type: audio/mpeg",
		"plugin: mpcdec",
		"suffix: mpc",
	}

	tagTypes = []string{
		"tagtype: Artist",
		"tagtype: ArtistSort",
		"tagtype: Album",
		"tagtype: AlbumSort",
		"tagtype: AlbumArtist",
		"tagtype: AlbumArtistSort",
		"tagtype: Title",
		"tagtype: Name",
		"tagtype: Genre",
		"tagtype: Date",
	}
)

// DefaultRegistry returns the registry with the full command set.
func DefaultRegistry() *Registry {
	r := MustRegistry(
		Command{Verbs: []string{"status"}, Handle: cmdStatus},
		Command{Verbs: []string{"stats"}, Handle: cmdStats},
		Command{Verbs: []string{"listplaylists"}, Handle: cmdListPlaylists},
		Command{Verbs: []string{"listplaylistinfo"}, Handle: cmdListPlaylistInfo},
		Command{Verbs: []string{"add"}, Handle: cmdAdd},
		Command{Verbs: []string{"addid"}, Handle: cmdAddID},
		Command{Verbs: []string{"play", "playid"}, Handle: cmdPlay},
		Command{Verbs: []string{"pause"}, Handle: cmdPause},
		Command{Verbs: []string{"stop"}, Handle: cmdStop},
		Command{Verbs: []string{"next"}, Handle: cmdNext},
		Command{Verbs: []string{"prev", "previous"}, Handle: cmdPrevious},
		Command{Verbs: []string{"clear"}, Handle: cmdClear},
		Command{Verbs: []string{"playlistinfo"}, Handle: cmdPlaylistInfo},
		Command{Verbs: []string{"plchanges"}, Handle: cmdPlChanges},
		Command{Verbs: []string{"currentsong"}, Handle: cmdCurrentSong},
		Command{Verbs: []string{"setvol"}, Handle: cmdSetVol},
		Command{Verbs: []string{"volume"}, Handle: cmdVolume},
		Command{Verbs: []string{"deleteid"}, Handle: cmdDeleteID},
		Command{Verbs: []string{"urlhandlers"}, Handle: static(urlHandlers)},
		Command{Verbs: []string{"outputs"}, Handle: static(outputs)},
		Command{Verbs: []string{"decoders"}, Handle: static(decoders)},
		Command{Verbs: []string{"tagtypes"}, Handle: static(tagTypes)},
		Command{Verbs: []string{"idle"}, Handle: cmdIdle},
		Command{Verbs: []string{"noidle", "ping"}, Handle: static(nil)},
	)

	err := r.Register(Command{Verbs: []string{"commands"}, Handle: func(context.Context, *Client, Args) ([]string, error) {
		verbs := r.Verbs()
		lines := make([]string, 0, len(verbs)+1)
		for _, v := range verbs {
			lines = append(lines, "command: "+v)
		}
		// close is handled by the connection itself.
		return append(lines, "command: close"), nil
	}})
	if err != nil {
		panic(err)
	}
	return r
}

func static(lines []string) HandlerFunc {
	return func(context.Context, *Client, Args) ([]string, error) {
		return lines, nil
	}
}

func cmdStatus(_ context.Context, c *Client, _ Args) ([]string, error) {
	s := c.Queue.Snapshot()

	lines := []string{
		fmt.Sprintf("volume: %d", s.Volume),
		"repeat: 0",
		"random: 0",
		"single: 0",
		"consume: 0",
		fmt.Sprintf("playlist: %d", s.Version),
		fmt.Sprintf("playlistlength: %d", s.Length),
		"mixrampdb: 0.000000",
		"state: " + string(s.Status),
	}
	if s.HasCurrent() {
		lines = append(lines,
			fmt.Sprintf("song: %d", s.Cursor),
			fmt.Sprintf("songid: %d", s.Cursor),
		)
	}
	if s.Status == player.StatusPlay || s.Status == player.StatusPause {
		elapsed := s.Elapsed.Seconds()
		lines = append(lines,
			fmt.Sprintf("time: %d:%d", int(elapsed), s.Duration),
			fmt.Sprintf("elapsed: %.3f", elapsed),
			fmt.Sprintf("duration: %d", s.Duration),
			"audio: "+nominalAudio,
			fmt.Sprintf("bitrate: %d", nominalBitrate),
		)
	}
	return lines, nil
}

func cmdStats(_ context.Context, c *Client, _ Args) ([]string, error) {
	uptime := int(time.Since(c.Started).Seconds())
	playtime := int(c.Queue.Elapsed().Seconds())
	return []string{
		fmt.Sprintf("uptime: %d", uptime),
		fmt.Sprintf("playtime: %d", playtime),
	}, nil
}

func cmdListPlaylists(ctx context.Context, c *Client, _ Args) ([]string, error) {
	playlists, err := c.Catalog.CurrentUserPlaylists(ctx)
	if err != nil {
		return nil, Ackf(AckSystem, "%v", err)
	}

	lines := make([]string, 0, len(playlists)*2)
	for _, p := range playlists {
		lines = append(lines, "playlist: "+p.Name, "Last-Modified: "+epochModified)
	}
	return lines, nil
}

func cmdListPlaylistInfo(ctx context.Context, c *Client, args Args) ([]string, error) {
	name, err := args.Required()
	if err != nil {
		return nil, err
	}

	playlist, err := streaming.FindPlaylist(ctx, c.Catalog, name)
	if errors.Is(err, streaming.ErrNotFound) {
		return nil, Ackf(AckNoExist, "No such playlist")
	}
	if err != nil {
		return nil, Ackf(AckSystem, "%v", err)
	}

	user, err := c.Catalog.CurrentUser(ctx)
	if err != nil {
		return nil, Ackf(AckSystem, "%v", err)
	}

	tracks, err := c.Catalog.PlaylistTracks(ctx, user, playlist.ID)
	if err != nil {
		return nil, Ackf(AckSystem, "%v", err)
	}

	var lines []string
	for _, t := range tracks {
		lines = append(lines, t.FileTags()...)
	}
	return lines, nil
}

// appendTrack resolves the argument through the catalog and queues it.
func appendTrack(ctx context.Context, c *Client, args Args) (int, error) {
	arg, err := args.Required()
	if err != nil {
		return 0, err
	}

	id := TrackID(arg)
	if id == "" {
		return 0, Ackf(AckArg, "Malformed URI: %s", arg)
	}

	track, err := c.Catalog.LookupTrack(ctx, id)
	if errors.Is(err, streaming.ErrNotFound) {
		return 0, Ackf(AckNoExist, "No such song")
	}
	if err != nil {
		return 0, Ackf(AckSystem, "%v", err)
	}
	return c.Queue.Append(track), nil
}

func cmdAdd(ctx context.Context, c *Client, args Args) ([]string, error) {
	if _, err := appendTrack(ctx, c, args); err != nil {
		return nil, err
	}
	return nil, nil
}

func cmdAddID(ctx context.Context, c *Client, args Args) ([]string, error) {
	pos, err := appendTrack(ctx, c, args)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("Id: %d", pos)}, nil
}

// TrackID extracts a catalog track id from a bare id, a spotify:track: URI
// or an open.spotify.com track link.
func TrackID(arg string) string {
	arg = strings.TrimSpace(arg)
	if rest, ok := strings.CutPrefix(arg, "spotify:track:"); ok {
		return rest
	}
	if _, rest, ok := strings.Cut(arg, "open.spotify.com/track/"); ok {
		id, _, _ := strings.Cut(rest, "?")
		return strings.TrimSuffix(id, "/")
	}
	return arg
}

func cmdPlay(_ context.Context, c *Client, args Args) ([]string, error) {
	pos, ok, err := args.Int()
	if err != nil {
		return nil, err
	}
	if !ok || pos < 0 {
		// -1 means "current" for both play and playid.
		c.Queue.Play()
		return nil, nil
	}
	return nil, c.Queue.PlayID(pos)
}

func cmdPause(_ context.Context, c *Client, args Args) ([]string, error) {
	state, ok, err := args.Int()
	if err != nil {
		return nil, err
	}
	switch {
	case !ok:
		c.Queue.TogglePlayback()
	case state == 1:
		c.Queue.Pause()
	case state == 0:
		c.Queue.Play()
	default:
		return nil, Ackf(AckArg, "Boolean (0/1) expected: %d", state)
	}
	return nil, nil
}

func cmdStop(_ context.Context, c *Client, _ Args) ([]string, error) {
	c.Queue.Stop()
	return nil, nil
}

func cmdNext(_ context.Context, c *Client, _ Args) ([]string, error) {
	c.Queue.Next()
	return nil, nil
}

func cmdPrevious(_ context.Context, c *Client, _ Args) ([]string, error) {
	c.Queue.Previous()
	return nil, nil
}

func cmdClear(_ context.Context, c *Client, _ Args) ([]string, error) {
	c.Queue.Clear()
	return nil, nil
}

func cmdPlaylistInfo(_ context.Context, c *Client, args Args) ([]string, error) {
	pos, ok, err := args.Int()
	if err != nil {
		return nil, err
	}

	tracks := c.Queue.Tracks()
	if ok {
		if pos < 0 || pos >= len(tracks) {
			return nil, queue.ErrBadIndex
		}
		return tracks[pos].Tags(pos), nil
	}

	var lines []string
	for i, t := range tracks {
		lines = append(lines, t.Tags(i)...)
	}
	return lines, nil
}

// plchanges reports the whole queue; versions are not tracked per track.
func cmdPlChanges(ctx context.Context, c *Client, _ Args) ([]string, error) {
	return cmdPlaylistInfo(ctx, c, Args{})
}

func cmdCurrentSong(_ context.Context, c *Client, _ Args) ([]string, error) {
	track, pos, ok := c.Queue.Current()
	if !ok {
		return nil, nil
	}
	return track.Tags(pos), nil
}

func cmdSetVol(_ context.Context, c *Client, args Args) ([]string, error) {
	v, err := args.RequiredInt()
	if err != nil {
		return nil, err
	}
	if v < 0 || v > math.MaxUint16 {
		return nil, Ackf(AckArg, "Invalid volume value")
	}
	c.Queue.SetVolume(uint16(v))
	return nil, nil
}

func cmdVolume(_ context.Context, c *Client, args Args) ([]string, error) {
	arg, err := args.Required()
	if err != nil {
		return nil, err
	}
	delta, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, Ackf(AckArg, "Integer expected: %s", arg)
	}
	// Deltas wrap like the stored 16-bit volume.
	c.Queue.AdjustVolume(int16(uint16(delta)))
	return nil, nil
}

func cmdDeleteID(_ context.Context, c *Client, args Args) ([]string, error) {
	pos, err := args.RequiredInt()
	if err != nil {
		return nil, err
	}
	return nil, c.Queue.Remove(pos)
}

// cmdIdle reports pending changes without blocking. A bare idle outside a
// command list is turned into a long poll by the connection.
func cmdIdle(ctx context.Context, _ *Client, args Args) ([]string, error) {
	filter, err := idleFilter(args)
	if err != nil {
		return nil, err
	}
	sub := subscriptionFrom(ctx)
	if sub == nil {
		return nil, nil
	}
	return changedLines(sub.Take(filter...)), nil
}

func idleFilter(args Args) ([]idle.Subsystem, error) {
	var filter []idle.Subsystem
	for _, name := range args.Fields() {
		s, ok := idle.ParseSubsystem(name)
		if !ok {
			return nil, Ackf(AckArg, "Unrecognized idle event: %s", name)
		}
		filter = append(filter, s)
	}
	return filter, nil
}

func changedLines(subs []idle.Subsystem) []string {
	lines := make([]string, len(subs))
	for i, s := range subs {
		lines[i] = "changed: " + string(s)
	}
	return lines
}

type subscriptionKey struct{}

func withSubscription(ctx context.Context, sub *idle.Subscription) context.Context {
	return context.WithValue(ctx, subscriptionKey{}, sub)
}

func subscriptionFrom(ctx context.Context) *idle.Subscription {
	sub, _ := ctx.Value(subscriptionKey{}).(*idle.Subscription)
	return sub
}
