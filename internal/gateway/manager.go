// Package gateway is the local bridge between the guest-session core and
// the UI shell: a websocket feed of session events plus a small set of HTTP
// endpoints for the session actions.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vaultdrive/client-go/internal/guest"
)

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// The gateway binds to loopback; origin filtering happens in the
			// CORS layer for the HTTP endpoints.
			return true
		},
	}
}

// Connection is one websocket client (a UI window).
type Connection struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time

	done chan struct{}
	once sync.Once
}

// ConnectionManager fans session events out to connected UIs.
type ConnectionManager struct {
	mu       sync.RWMutex
	conns    map[*Connection]bool
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// NewConnectionManager creates a manager with the given configuration.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		conns: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// Run forwards controller events to all connections until ctx is done.
func (cm *ConnectionManager) Run(ctx context.Context, events <-chan guest.Event) {
	log.Info().Msg("gateway connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway connection manager shutting down")
			cm.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				cm.closeAll()
				return
			}
			cm.Broadcast(ev)
		}
	}
}

// Broadcast sends one event to every connection. A connection with a full
// send buffer is dropped rather than allowed to stall the others.
func (cm *ConnectionManager) Broadcast(ev guest.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("failed to encode session event")
		return
	}

	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.conns))
	for conn := range cm.conns {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		select {
		case conn.Send <- payload:
		default:
			log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing")
			cm.unregister(conn)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket, sends the
// initial state sync, and starts the read/write pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, initial guest.Event) error {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Connection{
		ID:          uuid.New().String()[:8],
		Conn:        ws,
		Send:        make(chan []byte, 64),
		ConnectedAt: time.Now(),
		done:        make(chan struct{}),
	}

	cm.mu.Lock()
	cm.conns[conn] = true
	cm.mu.Unlock()

	log.Info().Str("connection_id", conn.ID).Msg("ui connected")

	// State sync first so a reconnecting UI starts from truth, not from the
	// next tick.
	if payload, err := json.Marshal(initial); err == nil {
		conn.Send <- payload
	}

	go cm.writePump(conn)
	go cm.readPump(conn)
	return nil
}

// ConnectionCount returns the number of live connections.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	conn.once.Do(func() {
		cm.mu.Lock()
		delete(cm.conns, conn)
		cm.mu.Unlock()

		close(conn.done)
		_ = conn.Conn.Close()
		log.Info().Str("connection_id", conn.ID).Msg("ui disconnected")
	})
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	conns := make([]*Connection, 0, len(cm.conns))
	for conn := range cm.conns {
		conns = append(conns, conn)
	}
	cm.mu.Unlock()

	for _, conn := range conns {
		cm.unregister(conn)
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with pings.
func (cm *ConnectionManager) writePump(conn *Connection) {
	ping := time.NewTicker(cm.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-conn.done:
			return
		case payload := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				cm.unregister(conn)
				return
			}
		case <-ping.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cm.unregister(conn)
				return
			}
		}
	}
}

// readPump discards inbound messages (the UI drives actions over HTTP) and
// notices closed connections.
func (cm *ConnectionManager) readPump(conn *Connection) {
	conn.Conn.SetReadLimit(cm.config.MaxMessageSize)
	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			cm.unregister(conn)
			return
		}
	}
}
