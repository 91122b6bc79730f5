// Package monitor samples the daemon's own CPU and memory footprint so a
// long-running generation host shows up in metrics and statusz.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/reellabs/reel-core/internal/config"
	"github.com/shirou/gopsutil/v3/process"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Snapshot is one resource sample.
type Snapshot struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

type Service struct {
	cfg    config.MonitorConfig
	proc   *process.Process
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.MonitorConfig, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "monitor")),
	}
	if !cfg.Enabled {
		return s
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.logger.Warn("failed to attach process monitor", slogError(err))
		return s
	}
	s.proc = proc

	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Service) Start() error {
	if s.proc == nil {
		return nil
	}
	interval := time.Duration(s.cfg.IntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.wg.Add(1)
	go s.run(interval)
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) run(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			snap := s.Snapshot()
			s.logger.Debug("resource sample",
				slog.Float64("cpu_percent", snap.CPUPercent),
				slog.Uint64("rss_bytes", snap.RSSBytes))
		}
	}
}

// Snapshot reads the current sample. A disabled or unattached monitor
// reports zeros.
func (s *Service) Snapshot() Snapshot {
	if s.proc == nil {
		return Snapshot{}
	}
	var snap Snapshot
	if cpu, err := s.proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		snap.RSSBytes = mem.RSS
	}
	return snap
}

func (s *Service) initMetrics() error {
	meter := otel.Meter("github.com/reellabs/reel-core/monitor")
	cpuGauge, err := meter.Float64ObservableGauge("reel.process.cpu.percent",
		metric.WithDescription("Daemon CPU usage percent"))
	if err != nil {
		return err
	}
	rssGauge, err := meter.Int64ObservableGauge("reel.process.memory.rss_bytes",
		metric.WithDescription("Daemon resident set size"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		snap := s.Snapshot()
		obs.ObserveFloat64(cpuGauge, snap.CPUPercent)
		obs.ObserveInt64(rssGauge, int64(snap.RSSBytes))
		return nil
	}, cpuGauge, rssGauge)
	return err
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
