package players

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/reellabs/reel-core/internal/config"
	"github.com/reellabs/reel-core/internal/protocol"
)

func newBareRegistry(t *testing.T) *Registry {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(context.Background(), config.Default().Players, nil, log)
	t.Cleanup(r.Close)
	return r
}

func announceMsg(t *testing.T, a protocol.PlayerAnnounce) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal announce: %v", err)
	}
	return &nats.Msg{Subject: protocol.SubjectPlayerAnnounce, Data: data}
}

func heartbeatMsg(t *testing.T, hb protocol.PlayerHeartbeat) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(hb)
	if err != nil {
		t.Fatalf("marshal heartbeat: %v", err)
	}
	return &nats.Msg{Subject: protocol.SubjectPlayerHeartbeatPrefix + "." + hb.PlayerID, Data: data}
}

func TestAnnounceRegistersPlayer(t *testing.T) {
	r := newBareRegistry(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{
		PlayerID:     "wall-display",
		Kind:         "web",
		Capabilities: []string{"images", "audio"},
		Timestamp:    now,
	}))

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("players = %d, want 1", len(snap))
	}
	p := snap[0]
	if p.ID != "wall-display" || p.Kind != "web" || !p.Healthy {
		t.Fatalf("player = %+v", p)
	}
	if len(p.Capabilities) != 2 {
		t.Fatalf("capabilities = %v", p.Capabilities)
	}
	if !p.LastSeen.Equal(now) {
		t.Fatalf("last seen = %v, want %v", p.LastSeen, now)
	}
	if r.Connected() != 1 {
		t.Fatalf("connected = %d, want 1", r.Connected())
	}
}

func TestReannounceUpdatesInPlace(t *testing.T) {
	r := newBareRegistry(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{
		PlayerID: "p1", Kind: "web", Capabilities: []string{"images"}, Timestamp: base,
	}))
	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{
		PlayerID: "p1", Kind: "kiosk", Capabilities: []string{"images", "audio"}, Timestamp: base.Add(time.Second),
	}))

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("players = %d, want 1", len(snap))
	}
	if snap[0].Kind != "kiosk" || len(snap[0].Capabilities) != 2 {
		t.Fatalf("player after re-announce = %+v", snap[0])
	}
}

func TestHeartbeatRevivesStalePlayer(t *testing.T) {
	r := newBareRegistry(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{PlayerID: "p1", Kind: "web", Timestamp: base}))

	// Well past the heartbeat timeout.
	r.clock = func() time.Time { return base.Add(time.Minute) }
	r.sweep()
	if r.Connected() != 0 {
		t.Fatalf("connected after sweep = %d, want 0", r.Connected())
	}
	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].Healthy {
		t.Fatalf("stale player should stay listed unhealthy: %+v", snap)
	}

	r.handleHeartbeat(heartbeatMsg(t, protocol.PlayerHeartbeat{PlayerID: "p1", Timestamp: base.Add(time.Minute)}))
	if r.Connected() != 1 {
		t.Fatalf("connected after heartbeat = %d, want 1", r.Connected())
	}
}

func TestSweepKeepsFreshPlayersHealthy(t *testing.T) {
	r := newBareRegistry(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{PlayerID: "old", Timestamp: base}))
	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{PlayerID: "fresh", Timestamp: base.Add(time.Minute)}))

	r.clock = func() time.Time { return base.Add(time.Minute) }
	r.sweep()

	for _, p := range r.Snapshot() {
		switch p.ID {
		case "old":
			if p.Healthy {
				t.Fatal("old player should be unhealthy")
			}
		case "fresh":
			if !p.Healthy {
				t.Fatal("fresh player should stay healthy")
			}
		}
	}
}

func TestHeartbeatBeforeAnnounceCreatesEntry(t *testing.T) {
	r := newBareRegistry(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r.handleHeartbeat(heartbeatMsg(t, protocol.PlayerHeartbeat{PlayerID: "early", Timestamp: ts}))

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].ID != "early" || !snap[0].Healthy {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSnapshotSortedByID(t *testing.T) {
	r := newBareRegistry(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{PlayerID: "zeta", Timestamp: ts}))
	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{PlayerID: "alpha", Timestamp: ts}))

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].ID != "alpha" || snap[1].ID != "zeta" {
		t.Fatalf("snapshot order = %+v", snap)
	}
}

func TestBlankPlayerIDIgnored(t *testing.T) {
	r := newBareRegistry(t)
	r.handleAnnounce(announceMsg(t, protocol.PlayerAnnounce{PlayerID: ""}))
	if len(r.Snapshot()) != 0 {
		t.Fatal("blank player id must not register")
	}
}
