// Package players tracks the display clients attached to the daemon.
// Players announce themselves on the bus and stay registered for as long
// as their heartbeats keep arriving.
package players

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/reellabs/reel-core/internal/bus"
	"github.com/reellabs/reel-core/internal/config"
	"github.com/reellabs/reel-core/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// PlayerInfo is one known player.
type PlayerInfo struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Capabilities []string  `json:"capabilities"`
	LastSeen     time.Time `json:"last_seen"`
	Healthy      bool      `json:"healthy"`
}

// Registry maintains the set of known players. A player whose heartbeat goes
// quiet past the configured timeout is marked unhealthy but kept listed, so
// a flapping display shows up as flapping instead of vanishing.
type Registry struct {
	cfg    config.PlayersConfig
	bus    *bus.Client
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*nats.Subscription
	clock  func() time.Time

	mu      sync.RWMutex
	players map[string]*PlayerInfo
}

func NewRegistry(parent context.Context, cfg config.PlayersConfig, busClient *bus.Client, log *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		cfg:     cfg,
		bus:     busClient,
		log:     log.With(slog.String("component", "players")),
		ctx:     ctx,
		cancel:  cancel,
		clock:   time.Now,
		players: make(map[string]*PlayerInfo),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slogError(err))
	}
	return r
}

func (r *Registry) Start() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(protocol.SubjectPlayerAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectPlayerHeartbeatPrefix+".*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)

	r.wg.Add(1)
	go r.monitorHealth()
	return nil
}

func (r *Registry) Close() {
	r.cancel()
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
	r.wg.Wait()
}

func (r *Registry) Healthy() bool { return len(r.subs) == 2 }

func (r *Registry) monitorHealth() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.PlayerAnnounce
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid player announce", slogError(err))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = r.clock().UTC()
	}
	r.updatePlayer(announcement.PlayerID, announcement.Kind, announcement.Capabilities, announcement.Timestamp)
	r.log.Debug("player announced",
		slog.String("player_id", announcement.PlayerID),
		slog.String("kind", announcement.Kind))
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.PlayerHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid player heartbeat", slogError(err))
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = r.clock().UTC()
	}
	r.updatePlayer(hb.PlayerID, "", nil, hb.Timestamp)
}

func (r *Registry) updatePlayer(id, kind string, capabilities []string, timestamp time.Time) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.players[id]
	if !ok {
		player = &PlayerInfo{ID: id}
		r.players[id] = player
	}
	if kind != "" {
		player.Kind = kind
	}
	if len(capabilities) > 0 {
		player.Capabilities = capabilities
	}
	player.LastSeen = timestamp
	player.Healthy = true
}

func (r *Registry) sweep() {
	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, player := range r.players {
		if player.Healthy && now.Sub(player.LastSeen) > timeout {
			player.Healthy = false
			r.log.Info("player heartbeat lost", slog.String("player_id", player.ID))
		}
	}
}

// Snapshot lists all known players sorted by id.
func (r *Registry) Snapshot() []PlayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PlayerInfo, 0, len(r.players))
	for _, player := range r.players {
		cp := *player
		cp.Capabilities = append([]string(nil), player.Capabilities...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connected counts players with a live heartbeat.
func (r *Registry) Connected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, player := range r.players {
		if player.Healthy {
			n++
		}
	}
	return n
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/reellabs/reel-core/players")
	known, err := meter.Int64ObservableGauge("reel.players.known",
		metric.WithDescription("Players that have announced themselves"))
	if err != nil {
		return err
	}
	connected, err := meter.Int64ObservableGauge("reel.players.connected",
		metric.WithDescription("Players with a live heartbeat"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		total, healthy := r.counts()
		obs.ObserveInt64(known, total)
		obs.ObserveInt64(connected, healthy)
		return nil
	}, known, connected)
	return err
}

func (r *Registry) counts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total, healthy int64
	for _, player := range r.players {
		total++
		if player.Healthy {
			healthy++
		}
	}
	return total, healthy
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
