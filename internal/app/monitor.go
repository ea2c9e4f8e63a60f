package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/inertial_mouse/internal/dispatch"
	"github.com/relabs-tech/inertial_mouse/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local monitoring page
	},
}

// clientBuffer frames queued per websocket client before it starts
// missing frames.
const clientBuffer = 32

// State is the receiver snapshot served on /api/state.
type State struct {
	Engaged   bool             `json:"engaged"`
	Paused    bool             `json:"paused"`
	Pointer   [2]int           `json:"pointer"`
	LastFrame *telemetry.Frame `json:"lastFrame"`
}

// Monitor serves receiver state over HTTP and streams accepted frames to
// websocket clients.
type Monitor struct {
	d       *dispatch.Dispatcher
	engaged *dispatch.Engagement
	gate    *dispatch.Gate

	mu      sync.RWMutex
	last    *telemetry.Frame
	clients map[chan []byte]struct{}
}

func NewMonitor(d *dispatch.Dispatcher, engaged *dispatch.Engagement, gate *dispatch.Gate) *Monitor {
	return &Monitor{d: d, engaged: engaged, gate: gate, clients: make(map[chan []byte]struct{})}
}

// Publish records f and fans it out. Slow clients miss frames rather than
// stall the receive loop.
func (m *Monitor) Publish(f telemetry.Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		log.Warnf("monitor: encode frame: %v", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &f
	for c := range m.clients {
		select {
		case c <- payload:
		default:
		}
	}
}

// State returns the current snapshot.
func (m *Monitor) State() State {
	x, y := m.d.Position()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Engaged:   m.engaged.Engaged(),
		Paused:    m.gate.Paused(),
		Pointer:   [2]int{x, y},
		LastFrame: m.last,
	}
}

// Handler returns the monitor's routes.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", m.handleState)
	mux.HandleFunc("/ws/telemetry", m.handleTelemetryWS)
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Printf("monitor: serving on http://localhost%s/api/state", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Monitor) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.State()); err != nil {
		log.Warnf("monitor: encode state: %v", err)
	}
}

func (m *Monitor) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan []byte, clientBuffer)
	m.mu.Lock()
	m.clients[send] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.clients, send)
		m.mu.Unlock()
	}()

	// the read side only watches for the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("monitor: websocket error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case payload := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
