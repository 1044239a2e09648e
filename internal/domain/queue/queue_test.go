package queue

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/domain/player"
	"github.com/edumarques81/spotmpd/internal/domain/streaming"
)

// recordingSink captures intents in send order.
type recordingSink struct {
	mu      sync.Mutex
	intents []player.Intent
}

func (s *recordingSink) Send(i player.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, i)
}

func (s *recordingSink) take() []player.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.intents
	s.intents = nil
	return out
}

// recordingNotifier captures broadcasts.
type recordingNotifier struct {
	mu   sync.Mutex
	subs []idle.Subsystem
}

func (n *recordingNotifier) Broadcast(subsystems ...idle.Subsystem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, subsystems...)
}

func (n *recordingNotifier) take() []idle.Subsystem {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.subs
	n.subs = nil
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue(t *testing.T, n int) (*Queue, *recordingSink, *fakeClock) {
	t.Helper()

	sink := &recordingSink{}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := New(sink, WithClock(clock.Now))
	for i := 0; i < n; i++ {
		q.Append(testTrack(i))
	}
	return q, sink, clock
}

func testTrack(i int) streaming.Track {
	return streaming.Track{
		ID:       "track" + string(rune('a'+i)),
		Title:    "Title " + string(rune('A'+i)),
		Artists:  []string{"Artist"},
		Duration: 180000 + i*1000,
	}
}

func assertIntents(t *testing.T, got []player.Intent, want ...player.Intent) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("intents = %v, want %v", got, want)
	}
}

func TestNewQueue(t *testing.T) {
	q := New(nil)

	snap := q.Snapshot()
	if snap.Length != 0 {
		t.Errorf("Length = %d, want 0", snap.Length)
	}
	if snap.Status != player.StatusStop {
		t.Errorf("Status = %q, want stop", snap.Status)
	}
	if snap.Volume != 100 {
		t.Errorf("Volume = %d, want 100", snap.Volume)
	}
	if snap.HasCurrent() {
		t.Error("new queue should have no current track")
	}
	if snap.Elapsed != 0 || snap.Duration != 0 {
		t.Errorf("Elapsed = %v, Duration = %d, want zero", snap.Elapsed, snap.Duration)
	}
}

func TestAppendReturnsPosition(t *testing.T) {
	q, sink, _ := newTestQueue(t, 0)

	for i := 0; i < 3; i++ {
		if pos := q.Append(testTrack(i)); pos != i {
			t.Errorf("Append() = %d, want %d", pos, i)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	assertIntents(t, sink.take())
}

func TestLengthTracksAppendsMinusRemovals(t *testing.T) {
	tests := []struct {
		name    string
		appends int
		removes []int
		want    int
	}{
		{"appends only", 4, nil, 4},
		{"remove first", 4, []int{0}, 3},
		{"remove all", 2, []int{0, 0}, 0},
		{"remove middle twice", 5, []int{2, 2}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _, _ := newTestQueue(t, tt.appends)
			for _, i := range tt.removes {
				if err := q.Remove(i); err != nil {
					t.Fatalf("Remove(%d) error = %v", i, err)
				}
			}
			if got := q.Snapshot().Length; got != tt.want {
				t.Errorf("Length = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPlayID(t *testing.T) {
	q, sink, _ := newTestQueue(t, 3)

	if err := q.PlayID(1); err != nil {
		t.Fatalf("PlayID() error = %v", err)
	}

	assertIntents(t, sink.take(), player.Load("trackb"), player.Play())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
}

func TestPlayIDBadIndex(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)

	for _, i := range []int{-1, 2, 100} {
		if err := q.PlayID(i); !errors.Is(err, ErrBadIndex) {
			t.Errorf("PlayID(%d) error = %v, want ErrBadIndex", i, err)
		}
	}
	assertIntents(t, sink.take())
	if q.CurrentIndex() != -1 {
		t.Errorf("cursor = %d, want -1", q.CurrentIndex())
	}
}

func TestPlayResumesCurrentTrack(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)
	q.PlayID(1)
	q.Pause()
	sink.take()

	q.Play()

	assertIntents(t, sink.take(), player.Play())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
}

func TestPlayWithoutCursorStartsFromFirstTrack(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)

	q.Play()

	assertIntents(t, sink.take(), player.Load("tracka"), player.Play())
	if q.CurrentIndex() != 0 {
		t.Errorf("cursor = %d, want 0", q.CurrentIndex())
	}
}

func TestPlayOnEmptyQueueSendsPlayOnly(t *testing.T) {
	q, sink, _ := newTestQueue(t, 0)
	q.Play()
	assertIntents(t, sink.take(), player.Play())
}

func TestTogglePlayback(t *testing.T) {
	q, sink, _ := newTestQueue(t, 1)

	q.TogglePlayback()
	assertIntents(t, sink.take(), player.Play())

	q.HandleEvent(player.EventPlaying)
	q.TogglePlayback()
	assertIntents(t, sink.take(), player.Pause())

	q.HandleEvent(player.EventPaused)
	q.TogglePlayback()
	assertIntents(t, sink.take(), player.Play())
}

func TestStopClearsCursor(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)
	q.PlayID(0)
	sink.take()

	q.Stop()

	assertIntents(t, sink.take(), player.Stop())
	if q.CurrentIndex() != -1 {
		t.Errorf("cursor = %d, want -1", q.CurrentIndex())
	}
}

func TestNext(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)
	q.PlayID(0)
	sink.take()

	q.Next()
	assertIntents(t, sink.take(), player.Load("trackb"), player.Play())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
}

func TestNextAtLastIndexStops(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)
	q.PlayID(1)
	sink.take()

	q.Next()

	assertIntents(t, sink.take(), player.Stop())
	if q.CurrentIndex() != -1 {
		t.Errorf("cursor = %d, want -1", q.CurrentIndex())
	}
}

func TestNextWithoutCursorStops(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)

	q.Next()

	assertIntents(t, sink.take(), player.Stop())
}

func TestPrevious(t *testing.T) {
	q, sink, _ := newTestQueue(t, 3)
	q.PlayID(2)
	sink.take()

	q.Previous()

	assertIntents(t, sink.take(), player.Load("trackb"), player.Play())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
}

func TestPreviousAtFirstIndexStopsButKeepsCursor(t *testing.T) {
	q, sink, _ := newTestQueue(t, 2)
	q.PlayID(0)
	sink.take()

	q.Previous()

	assertIntents(t, sink.take(), player.Stop())
	if q.CurrentIndex() != 0 {
		t.Errorf("cursor = %d, want 0 (previous must not clear it)", q.CurrentIndex())
	}

	// Stop, by contrast, clears it.
	q.Stop()
	if q.CurrentIndex() != -1 {
		t.Errorf("cursor after Stop = %d, want -1", q.CurrentIndex())
	}
}

func TestRemoveCurrentLastTrackStops(t *testing.T) {
	q, sink, _ := newTestQueue(t, 3)
	q.PlayID(2)
	q.HandleEvent(player.EventPlaying)
	sink.take()

	if err := q.Remove(2); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	assertIntents(t, sink.take(), player.Stop())
	if q.CurrentIndex() != -1 {
		t.Errorf("cursor = %d, want -1", q.CurrentIndex())
	}

	q.HandleEvent(player.EventStopped)
	if q.Status() != player.StatusStop {
		t.Errorf("Status = %q, want stop", q.Status())
	}
}

func TestRemoveCurrentPlaysReplacement(t *testing.T) {
	q, sink, _ := newTestQueue(t, 3)
	q.PlayID(1)
	sink.take()

	if err := q.Remove(1); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	// trackc slid into position 1.
	assertIntents(t, sink.take(), player.Load("trackc"), player.Play())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
}

func TestRemoveBeforeCursorDecrements(t *testing.T) {
	q, sink, _ := newTestQueue(t, 4)
	q.PlayID(2)
	q.HandleEvent(player.EventPlaying)
	sink.take()

	if err := q.Remove(0); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	assertIntents(t, sink.take())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
	if q.Status() != player.StatusPlay {
		t.Errorf("Status = %q, want play", q.Status())
	}
	if cur, _, _ := q.Current(); cur.ID != "trackc" {
		t.Errorf("current = %q, want trackc", cur.ID)
	}
}

func TestRemoveAfterCursorKeepsCursor(t *testing.T) {
	q, sink, _ := newTestQueue(t, 4)
	q.PlayID(1)
	sink.take()

	q.Remove(3)

	assertIntents(t, sink.take())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
}

func TestRemoveLastRemainingTrackStops(t *testing.T) {
	q, sink, _ := newTestQueue(t, 1)

	q.Remove(0)

	assertIntents(t, sink.take(), player.Stop())
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestRemoveBadIndex(t *testing.T) {
	q, _, _ := newTestQueue(t, 2)

	if err := q.Remove(2); !errors.Is(err, ErrBadIndex) {
		t.Errorf("Remove(2) error = %v, want ErrBadIndex", err)
	}
	if err := q.Remove(-1); !errors.Is(err, ErrBadIndex) {
		t.Errorf("Remove(-1) error = %v, want ErrBadIndex", err)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

func TestClear(t *testing.T) {
	q, sink, _ := newTestQueue(t, 3)
	q.PlayID(1)
	sink.take()

	q.Clear()

	assertIntents(t, sink.take(), player.Stop())
	if q.Len() != 0 || q.CurrentIndex() != -1 {
		t.Errorf("Len() = %d, cursor = %d after Clear", q.Len(), q.CurrentIndex())
	}
}

func TestVolumeWraps(t *testing.T) {
	q, sink, _ := newTestQueue(t, 0)

	q.SetVolume(150)
	got := q.AdjustVolume(-1000)

	if got != 64686 {
		t.Errorf("AdjustVolume() = %d, want 64686", got)
	}
	if q.Volume() != 64686 {
		t.Errorf("Volume() = %d, want 64686", q.Volume())
	}
	assertIntents(t, sink.take(), player.SetVolume(150), player.SetVolume(64686))
}

func TestSetVolumeSendsIntentRegardlessOfStatus(t *testing.T) {
	q, sink, _ := newTestQueue(t, 1)

	q.SetVolume(10)
	q.PlayID(0)
	q.HandleEvent(player.EventPlaying)
	sink.take()
	q.SetVolume(20)

	assertIntents(t, sink.take(), player.SetVolume(20))
}

func TestElapsedWhilePlayingAndPaused(t *testing.T) {
	q, _, clock := newTestQueue(t, 1)
	q.PlayID(0)
	q.HandleEvent(player.EventPlaying)

	clock.Advance(5 * time.Second)
	if got := q.Elapsed(); got != 5*time.Second {
		t.Errorf("Elapsed = %v, want 5s", got)
	}

	clock.Advance(2 * time.Second)
	if got := q.Elapsed(); got != 7*time.Second {
		t.Errorf("Elapsed = %v, want 7s", got)
	}

	q.HandleEvent(player.EventPaused)
	clock.Advance(10 * time.Second)
	if got := q.Elapsed(); got != 7*time.Second {
		t.Errorf("Elapsed after pause = %v, want 7s (frozen)", got)
	}

	q.HandleEvent(player.EventPlaying)
	clock.Advance(3 * time.Second)
	if got := q.Elapsed(); got != 10*time.Second {
		t.Errorf("Elapsed after resume = %v, want 10s", got)
	}
}

func TestElapsedMonotonicWhilePlaying(t *testing.T) {
	q, _, clock := newTestQueue(t, 1)
	q.PlayID(0)
	q.HandleEvent(player.EventPlaying)

	prev := q.Elapsed()
	for i := 0; i < 10; i++ {
		clock.Advance(time.Duration(i) * 100 * time.Millisecond)
		cur := q.Elapsed()
		if cur < prev {
			t.Fatalf("elapsed went backwards: %v < %v", cur, prev)
		}
		prev = cur
	}
}

func TestStoppedResetsElapsed(t *testing.T) {
	q, _, clock := newTestQueue(t, 1)
	q.PlayID(0)
	q.HandleEvent(player.EventPlaying)
	clock.Advance(4 * time.Second)

	q.HandleEvent(player.EventStopped)

	if got := q.Elapsed(); got != 0 {
		t.Errorf("Elapsed = %v, want 0", got)
	}
	if q.Status() != player.StatusStop {
		t.Errorf("Status = %q, want stop", q.Status())
	}
}

func TestPlayIDResetsElapsed(t *testing.T) {
	q, _, clock := newTestQueue(t, 2)
	q.PlayID(0)
	q.HandleEvent(player.EventPlaying)
	clock.Advance(30 * time.Second)

	q.PlayID(1)
	if got := q.Elapsed(); got != 0 {
		t.Errorf("Elapsed after PlayID = %v, want 0", got)
	}
}

func TestEndOfTrackAdvances(t *testing.T) {
	q, sink, clock := newTestQueue(t, 2)
	q.PlayID(0)
	q.HandleEvent(player.EventPlaying)
	clock.Advance(time.Minute)
	sink.take()

	q.HandleEvent(player.EventEndOfTrack)

	assertIntents(t, sink.take(), player.Load("trackb"), player.Play())
	if q.CurrentIndex() != 1 {
		t.Errorf("cursor = %d, want 1", q.CurrentIndex())
	}
	if got := q.Elapsed(); got != 0 {
		t.Errorf("Elapsed = %v, want 0", got)
	}
	if q.Status() != player.StatusStop {
		t.Errorf("Status = %q, want stop until the renderer confirms", q.Status())
	}
}

func TestEndOfTrackAtLastTrackStops(t *testing.T) {
	q, sink, _ := newTestQueue(t, 1)
	q.PlayID(0)
	q.HandleEvent(player.EventPlaying)
	sink.take()

	q.HandleEvent(player.EventEndOfTrack)

	assertIntents(t, sink.take(), player.Stop())
	if q.CurrentIndex() != -1 {
		t.Errorf("cursor = %d, want -1", q.CurrentIndex())
	}
}

func TestSnapshot(t *testing.T) {
	q, _, clock := newTestQueue(t, 2)
	q.PlayID(1)
	q.HandleEvent(player.EventPlaying)
	clock.Advance(12 * time.Second)

	snap := q.Snapshot()
	if snap.Cursor != 1 || snap.Length != 2 {
		t.Errorf("Cursor = %d, Length = %d", snap.Cursor, snap.Length)
	}
	if snap.Status != player.StatusPlay {
		t.Errorf("Status = %q, want play", snap.Status)
	}
	if snap.Elapsed != 12*time.Second {
		t.Errorf("Elapsed = %v, want 12s", snap.Elapsed)
	}
	if snap.Duration != 181 {
		t.Errorf("Duration = %d, want 181", snap.Duration)
	}
}

func TestPlaylistVersionChangesOnMutation(t *testing.T) {
	q, _, _ := newTestQueue(t, 0)
	v0 := q.Snapshot().Version

	q.Append(testTrack(0))
	v1 := q.Snapshot().Version
	q.Remove(0)
	v2 := q.Snapshot().Version
	q.Clear()
	v3 := q.Snapshot().Version

	if !(v0 < v1 && v1 < v2 && v2 < v3) {
		t.Errorf("versions not increasing: %d %d %d %d", v0, v1, v2, v3)
	}
}

func TestTracksReturnsDeepCopies(t *testing.T) {
	q, _, _ := newTestQueue(t, 1)

	tracks := q.Tracks()
	tracks[0].Artists[0] = "Changed"
	tracks[0].Title = "Changed"

	again := q.Tracks()
	if again[0].Artists[0] != "Artist" || again[0].Title != "Title A" {
		t.Errorf("queue track modified through copy: %+v", again[0])
	}
}

func TestNotifications(t *testing.T) {
	n := &recordingNotifier{}
	q := New(&recordingSink{}, WithNotifier(n))

	q.Append(testTrack(0))
	if got := n.take(); !reflect.DeepEqual(got, []idle.Subsystem{idle.Playlist}) {
		t.Errorf("Append notified %v", got)
	}

	q.SetVolume(5)
	q.AdjustVolume(1)
	if got := n.take(); !reflect.DeepEqual(got, []idle.Subsystem{idle.Mixer, idle.Mixer}) {
		t.Errorf("volume changes notified %v", got)
	}

	q.HandleEvent(player.EventPlaying)
	if got := n.take(); !reflect.DeepEqual(got, []idle.Subsystem{idle.Player}) {
		t.Errorf("event notified %v", got)
	}
}

func TestConcurrentPlayIDKeepsPairsTogether(t *testing.T) {
	q, sink, _ := newTestQueue(t, 4)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.PlayID((g + i) % 4)
				q.Snapshot()
			}
		}(g)
	}
	wg.Wait()

	intents := sink.take()
	if len(intents) != 8*50*2 {
		t.Fatalf("got %d intents, want %d", len(intents), 8*50*2)
	}
	for i := 0; i < len(intents); i += 2 {
		if intents[i].Kind != player.IntentLoad || intents[i+1].Kind != player.IntentPlay {
			t.Fatalf("intents %d,%d = %v,%v; want load,play", i, i+1, intents[i], intents[i+1])
		}
	}
}

func TestWorkerAppliesEvents(t *testing.T) {
	q, _, _ := newTestQueue(t, 1)
	events := make(chan player.Event)
	w := NewWorker(q, events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	events <- player.EventPlaying
	events <- player.EventPaused // unbuffered: returns after Playing was applied

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v, want nil on cancel", err)
	}
	if q.Status() != player.StatusPause {
		t.Errorf("Status = %q, want pause", q.Status())
	}
}

func TestWorkerFailsWhenEventSourceCloses(t *testing.T) {
	q, _, _ := newTestQueue(t, 0)
	events := make(chan player.Event)
	close(events)

	err := NewWorker(q, events).Run(context.Background())
	if !errors.Is(err, ErrEventSourceClosed) {
		t.Errorf("Run() error = %v, want ErrEventSourceClosed", err)
	}
}

func TestRoundTripWithLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pump := player.NewPump()
	renderer := player.NewLoopback(nil)
	q := New(pump)
	go pump.Run(ctx)
	go renderer.Run(ctx, pump.Intents())
	go NewWorker(q, renderer.Events()).Run(ctx)

	q.Append(testTrack(0))
	if err := q.PlayID(0); err != nil {
		t.Fatalf("PlayID() error = %v", err)
	}
	waitForStatus(t, q, player.StatusPlay)

	delta := 50 * time.Millisecond
	time.Sleep(delta)
	q.Pause()
	waitForStatus(t, q, player.StatusPause)

	elapsed := q.Elapsed()
	if elapsed < delta || elapsed > delta+500*time.Millisecond {
		t.Errorf("Elapsed = %v, want about %v", elapsed, delta)
	}
}

func waitForStatus(t *testing.T, q *Queue, want player.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Status = %q, want %q", q.Status(), want)
}

func TestTrackDuration(t *testing.T) {
	q := New(nil)
	q.Append(testTrack(0))
	q.Append(testTrack(1))

	if d, ok := q.TrackDuration("trackb"); !ok || d != 181*time.Second {
		t.Errorf("TrackDuration(trackb) = %v, %v; want 181s, true", d, ok)
	}
	if d, ok := q.TrackDuration("absent"); ok || d != 0 {
		t.Errorf("TrackDuration(absent) = %v, %v; want 0, false", d, ok)
	}
}

func TestLoopbackAdvancesOnQueuedDuration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pump := player.NewPump()
	q := New(pump)
	renderer := player.NewLoopback(func(id string) time.Duration {
		d, _ := q.TrackDuration(id)
		return d
	})
	go pump.Run(ctx)
	go renderer.Run(ctx, pump.Intents())
	go NewWorker(q, renderer.Events()).Run(ctx)

	q.Append(streaming.Track{ID: "short", Duration: 30})
	q.Append(streaming.Track{ID: "long", Duration: 600000})
	if err := q.PlayID(0); err != nil {
		t.Fatalf("PlayID() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for q.CurrentIndex() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := q.CurrentIndex(); got != 1 {
		t.Fatalf("CurrentIndex() = %d, want 1 after the first track ended", got)
	}
	waitForStatus(t, q, player.StatusPlay)
}
