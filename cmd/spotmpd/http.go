package main

import (
	"encoding/json"
	"net/http"

	"github.com/edumarques81/spotmpd/internal/domain/queue"
	"github.com/edumarques81/spotmpd/internal/transport/socketio"
	"github.com/edumarques81/spotmpd/internal/version"
)

// healthStatus is the /health body.
type healthStatus struct {
	Status      string `json:"status"`
	MPDClients  int    `json:"mpdClients"`
	WebClients  int    `json:"webClients"`
	QueueLength int    `json:"queueLength"`
}

// counter reports a number of connected clients.
type counter interface {
	Connections() int
}

// newHTTPHandler builds the sidecar mux. sio may be nil.
func newHTTPHandler(q *queue.Queue, mpd counter, sio *socketio.Server) http.Handler {
	mux := http.NewServeMux()

	if sio != nil {
		mux.Handle("/socket.io/", sio)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", QueueLength: q.Len()}
		if mpd != nil {
			status.MPDClients = mpd.Connections()
		}
		if sio != nil {
			status.WebClients = sio.Clients()
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("GET /api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, version.GetInfo())
	})

	mux.HandleFunc("GET /api/v1/getState", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, socketio.State(q))
	})

	mux.HandleFunc("GET /api/v1/getQueue", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, socketio.QueueItems(q))
	})

	return corsMiddleware(mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
