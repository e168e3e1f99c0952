package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsProvider reports the registry gauges without exposing the registry
// itself to the worker.
type StatsProvider func() (connections, users, channels int)

// TelemetryWorker periodically logs process health (CPU, RSS, goroutines)
// together with the live connection gauges. Observability only; nothing in
// the serving path depends on it.
type TelemetryWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
	stats          StatsProvider
}

func NewTelemetryWorker(log *slog.Logger, metricInterval time.Duration, stats StatsProvider) *TelemetryWorker {
	return &TelemetryWorker{log: log, metricInterval: metricInterval, stats: stats}
}

func (w TelemetryWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.report(proc)
		}
	}
}

func (w TelemetryWorker) report(proc *process.Process) {
	connections, users, channels := w.stats()

	attrs := []any{
		"goroutines", runtime.NumGoroutine(),
		"connections", connections,
		"online_users", users,
		"channels", channels,
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		attrs = append(attrs, "cpu_percent", cpu)
	}
	if mem, err := proc.MemoryPercent(); err == nil {
		attrs = append(attrs, "ram_percent", mem)
	}
	w.log.Info("Server health", attrs...)
}
