package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/reellabs/reel-core/internal/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMessage = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans board snapshots out to every connected editor or player UI.
type hub struct {
	logger     *slog.Logger
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	clients    map[*wsClient]struct{}
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		logger:     log.With(slog.String("component", "gateway-ws")),
		register:   make(chan *wsClient, 16),
		unregister: make(chan *wsClient, 16),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*wsClient]struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case data := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer: drop it rather than stall the board.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("dropping broadcast, hub backlog full")
	}
}

// wsInbound is the envelope player UIs send upstream: playback clock ticks,
// audio metadata, and navigation commands.
type wsInbound struct {
	Type            string  `json:"type"`
	Seconds         float64 `json:"seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Index           int     `json:"index"`
}

func (s *Service) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slogError(err))
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 16)}
	s.hub.register <- client

	playerID := uuid.NewString()
	s.announcePlayer(playerID)
	hbCtx, stopHeartbeat := context.WithCancel(s.ctx)
	defer stopHeartbeat()
	go s.heartbeatPlayer(hbCtx, playerID)

	// Every new client starts from the current board.
	if data, err := json.Marshal(s.store.Snapshot()); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}

	go client.writePump()
	s.readPump(client)
}

// announcePlayer registers the WebSocket connection with the player
// registry over the bus, so /statusz lists browser clients next to any
// externally announced player.
func (s *Service) announcePlayer(playerID string) {
	announce := protocol.PlayerAnnounce{
		PlayerID:     playerID,
		Kind:         "websocket",
		Capabilities: []string{"audio", "speech"},
		Timestamp:    time.Now().UTC(),
	}
	data, err := json.Marshal(announce)
	if err != nil {
		s.logger.Warn("failed to marshal player announce", slogError(err))
		return
	}
	if err := s.pub.Publish(protocol.SubjectPlayerAnnounce, data); err != nil {
		s.logger.Warn("failed to publish player announce", slogError(err))
	}
}

// heartbeatPlayer keeps the registration alive for as long as the socket
// is open. When the read pump exits the ticker stops and the registry's
// sweep marks the player unhealthy.
func (s *Service) heartbeatPlayer(ctx context.Context, playerID string) {
	interval := time.Duration(s.cfg.Players.HeartbeatInterval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	subject := protocol.SubjectPlayerHeartbeatPrefix + "." + playerID
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := protocol.PlayerHeartbeat{PlayerID: playerID, Timestamp: time.Now().UTC()}
			data, err := json.Marshal(hb)
			if err != nil {
				continue
			}
			if err := s.pub.Publish(subject, data); err != nil {
				s.logger.Debug("failed to publish player heartbeat", slogError(err))
			}
		}
	}
}

func (s *Service) readPump(client *wsClient) {
	defer func() {
		s.hub.unregister <- client
		_ = client.conn.Close()
	}()
	client.conn.SetReadLimit(wsMaxMessage)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("invalid websocket message", slogError(err))
			continue
		}
		s.dispatchWS(msg)
	}
}

func (s *Service) dispatchWS(msg wsInbound) {
	switch msg.Type {
	case "position":
		s.playback.ReportPosition(msg.Seconds)
	case "ended":
		s.playback.ReportEnded()
	case "metadata":
		s.playback.ReportMetadata(msg.DurationSeconds)
	case "toggle":
		s.wsCommand(s.playback.TogglePlay)
	case "next":
		s.wsCommand(s.playback.Next)
	case "prev":
		s.wsCommand(s.playback.Prev)
	case "goto":
		s.wsCommand(func() error { return s.playback.GoToScene(msg.Index) })
	default:
		s.logger.Debug("unknown websocket message type", slog.String("type", msg.Type))
	}
}

func (s *Service) wsCommand(fn func() error) {
	if loading, _ := s.store.Loading(); loading {
		return
	}
	if err := fn(); err != nil {
		s.logger.Debug("playback command rejected", slogError(err))
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
