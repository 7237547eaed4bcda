package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("notifyme.perf_stats")

// InstrumentPerfStats samples process statistics every 30 seconds until ctx is done.
// Chrome runs as child processes, so their count is recorded next to the go runtime
// figures.
func InstrumentPerfStats(ctx context.Context) {
	cpuGauge, _ := meter.Float64Gauge("cpu_usage")
	memoryGauge, _ := meter.Int64Gauge("allocated_mb")
	goroutineGauge, _ := meter.Int64Gauge("goroutine_count")
	childGauge, _ := meter.Int64Gauge("child_processes")

	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.Warn("perf stats: failed to inspect own process", "err", err)
	}

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)
				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

				cpuUsage, err := cpu.PercentWithContext(ctx, time.Second*5, false)
				if err == nil && len(cpuUsage) > 0 {
					cpuGauge.Record(ctx, cpuUsage[0])
				} else if err != nil {
					slog.Debug("perf stats: failed to read cpu usage", "err", err)
				}

				if self != nil {
					children, err := self.ChildrenWithContext(ctx)
					// gopsutil reports "no children" as an error
					if err != nil {
						children = nil
					}
					childGauge.Record(ctx, int64(len(children)))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
