package natsserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/reellabs/reel-core/internal/config"
)

// readyTimeout bounds how long startup waits for the in-process broker.
// JetStream replays its store before accepting connections, so this is
// longer than the client connect timeout.
const readyTimeout = 5 * time.Second

// Server is an in-process NATS broker so a single reeld binary needs no
// external message infrastructure. Returns (nil, nil) when the config
// points at an external cluster instead.
type Server struct {
	ns  *server.Server
	log *slog.Logger
}

func Start(cfg config.BusConfig, log *slog.Logger) (*Server, error) {
	if !cfg.Embedded {
		return nil, nil
	}

	opts := &server.Options{
		Host:      "0.0.0.0",
		Port:      cfg.Port,
		JetStream: true,
		StoreDir:  cfg.StoreDir,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", readyTimeout)
	}

	log.Info("embedded NATS server started",
		slog.Int("port", cfg.Port),
		slog.String("store_dir", cfg.StoreDir))

	return &Server{ns: ns, log: log}, nil
}

func (s *Server) Shutdown() {
	if s == nil || s.ns == nil {
		return
	}
	s.log.Info("shutting down embedded NATS server")
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
