// edgewall/pkg/runtime/dashboard.go

package runtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgewall/pkg/logging"
)

// Version is stamped at build time.
var Version = "dev"

// Dashboard exposes the engine's operational surface: a websocket stats
// stream on /events, Prometheus metrics on /metrics, and health and
// version probes.
type Dashboard struct {
	engine         *Engine
	port           int
	registry       *prometheus.Registry
	clients        map[*websocket.Conn]bool
	clientsMutex   sync.Mutex
	updateInterval time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now. In production, this should be more restrictive.
	},
}

func NewDashboard(engine *Engine, port int, registry *prometheus.Registry, updateInterval time.Duration) *Dashboard {
	return &Dashboard{
		engine:         engine,
		port:           port,
		registry:       registry,
		clients:        make(map[*websocket.Conn]bool),
		updateInterval: updateInterval,
	}
}

func (d *Dashboard) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"engine":  "edgewall",
			"version": Version,
			"format":  "graph-v1",
		})
	})

	if d.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/events", d.handleWebSocket)
	return mux
}

func (d *Dashboard) Start() {
	go d.broadcastUpdates()

	addr := fmt.Sprintf(":%d", d.port)
	logging.Logger.Info().Str("addr", addr).Msg("dashboard listening")
	if err := http.ListenAndServe(addr, d.handler()); err != nil {
		logging.Logger.Error().Err(err).Msg("dashboard server stopped")
	}
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logging.Logger.Debug().Stringer("remote", conn.RemoteAddr()).Msg("dashboard client connected")

	d.clientsMutex.Lock()
	d.clients[conn] = true
	d.clientsMutex.Unlock()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}

	d.clientsMutex.Lock()
	delete(d.clients, conn)
	d.clientsMutex.Unlock()

	logging.Logger.Debug().Stringer("remote", conn.RemoteAddr()).Msg("dashboard client disconnected")
}

func (d *Dashboard) broadcastUpdates() {
	ticker := time.NewTicker(d.updateInterval)
	defer ticker.Stop()

	for range ticker.C {
		stats := d.engine.Stats()
		message, err := json.Marshal(stats)
		if err != nil {
			logging.Logger.Error().Err(err).Msg("failed to marshal stats")
			continue
		}

		d.clientsMutex.Lock()
		for client := range d.clients {
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				delete(d.clients, client)
			}
		}
		d.clientsMutex.Unlock()
	}
}
