package socketio_test

import (
	"context"
	"testing"
	"time"

	"github.com/edumarques81/spotmpd/internal/domain/device"
	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/domain/queue"
	"github.com/edumarques81/spotmpd/internal/transport/socketio"
)

func newServer(t *testing.T) (*socketio.Server, *queue.Queue, *idle.Bus) {
	t.Helper()
	bus := idle.NewBus()
	q := queue.New(nil, queue.WithNotifier(bus))

	server, err := socketio.NewServer(q, nil, device.Identity{UUID: "u-1", Name: "test"}, 4)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, q, bus
}

func TestNewServer(t *testing.T) {
	server, _, _ := newServer(t)
	if server.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", server.Clients())
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	server, _, _ := newServer(t)

	// Neither should panic with nobody connected.
	server.BroadcastState()
	server.BroadcastQueue()
}

func TestWatchStopsWithContext(t *testing.T) {
	server, q, bus := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.Watch(ctx, bus)
		close(done)
	}()

	q.SetVolume(20)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	if n := bus.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d after Watch returned", n)
	}
}

func TestGetSystemInfo(t *testing.T) {
	info := socketio.GetSystemInfo(device.Identity{UUID: "u-1", Name: "Kitchen"})
	if info.ID != "u-1" || info.Name != "Kitchen" || info.ServiceName != "spotmpd" || info.ProtocolVersion == "" {
		t.Errorf("GetSystemInfo() = %+v", info)
	}
}
