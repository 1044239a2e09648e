// Package socketio pushes queue and player state to web clients over
// Socket.io and accepts Volumio-style control events.
package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/spotmpd/internal/domain/device"
	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/domain/queue"
	"github.com/edumarques81/spotmpd/internal/domain/streaming"
	"github.com/edumarques81/spotmpd/internal/transport/connlimit"
)

// debounceWindow bounds how often bus changes turn into pushes.
const debounceWindow = 50 * time.Millisecond

// controlEvents are forwarded to the queue.
var controlEvents = []string{
	"play", "pause", "toggle", "stop", "next", "prev", "volume",
	"clearQueue", "removeFromQueue", "addToQueue",
}

// Server handles Socket.io connections and events.
type Server struct {
	io       *socket.Server
	queue    *queue.Queue
	catalog  streaming.Catalog
	identity device.Identity
	limiter  *connlimit.Limiter

	mu      sync.RWMutex
	clients map[string]*socket.Socket

	stateMu   sync.Mutex
	lastState map[string]interface{}
}

// NewServer creates a Socket.io server over q. catalog resolves addToQueue
// requests and may be nil. maxClients caps remote clients; zero means no cap.
func NewServer(q *queue.Queue, catalog streaming.Catalog, identity device.Identity, maxClients int) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:       socket.NewServer(nil, opts),
		queue:    q,
		catalog:  catalog,
		identity: identity,
		limiter:  connlimit.New(maxClients),
		clients:  make(map[string]*socket.Socket),
	}
	s.setupHandlers()
	return s, nil
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		addr := client.Handshake().Address

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		if evicted := s.limiter.Admit(clientID, addr); evicted != "" {
			log.Info().Str("evicted", evicted).Msg("Client limit reached, evicting oldest client")
			s.disconnect(evicted)
		}

		s.pushState(client)
		s.pushQueue(client)

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				reason, _ = args[0].(string)
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Release(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			s.pushState(client)
		})
		client.On("getQueue", func(args ...any) {
			s.pushQueue(client)
		})
		client.On("getSystemInfo", func(args ...any) {
			client.Emit("pushSystemInfo", GetSystemInfo(s.identity))
		})
		client.On("getDeviceInfo", func(args ...any) {
			client.Emit("pushDeviceInfo", s.identity)
		})

		for _, event := range controlEvents {
			client.On(event, func(args ...any) {
				log.Debug().Str("id", clientID).Str("event", event).Interface("data", args).Msg("Control event")
				if err := s.control(context.Background(), event, args); err != nil {
					log.Error().Err(err).Str("event", event).Msg("Control event failed")
					client.Emit("pushToastMessage", map[string]interface{}{
						"type":    "error",
						"title":   event,
						"message": err.Error(),
					})
				}
			})
		}
	})
}

func (s *Server) disconnect(id string) {
	s.mu.RLock()
	client := s.clients[id]
	s.mu.RUnlock()

	if client != nil {
		client.Disconnect(true)
	}
}

func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", State(s.queue))
}

func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", QueueItems(s.queue))
}

// BroadcastState sends the state to every client unless nothing but seek
// changed since the last broadcast.
func (s *Server) BroadcastState() {
	state := State(s.queue)
	if s.isStateSame(state) {
		return
	}
	s.saveLastState(state)
	s.io.Emit("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		log.Debug().RawJSON("state", data).Int("clients", s.Clients()).Msg("Broadcast state")
	}
}

// BroadcastQueue sends the queue to every client.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", QueueItems(s.queue))
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Watch pushes debounced state and queue updates for bus changes until ctx
// is cancelled.
func (s *Server) Watch(ctx context.Context, bus *idle.Bus) {
	sub := bus.Subscribe()
	defer sub.Close()

	d := NewBroadcastDebouncer(debounceWindow, s.BroadcastState, s.BroadcastQueue)
	defer d.Stop()

	log.Info().Msg("Socket.io bus watcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Socket.io bus watcher stopped")
			return
		case <-sub.C():
			d.Trigger(sub.Take()...)
		}
	}
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.io.Close(nil)
	return nil
}
