package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"chat-relay/observability"
	"chat-relay/relay"

	"github.com/shirou/gopsutil/process"
)

// HeartbeatWorker samples the process (RSS, CPU) and the connection
// registry on a fixed cadence and folds the readings into the
// monitoring snapshot served by the admin stats endpoint.
type HeartbeatWorker struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	registry   *relay.Registry
	interval   time.Duration
}

func NewHeartbeatWorker(
	log *slog.Logger,
	monitoring *observability.MonitoringManager,
	registry *relay.Registry,
	interval time.Duration,
) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, monitoring: monitoring, registry: registry, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting relay heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rssMb, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.monitoring.UpdateProcessStats(rssMb, cpu)
			w.monitoring.SetActiveConnections(w.registry.Len())
			w.monitoring.Refresh()
		}
	}
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS / 1024 / 1024, cpu, nil
}
