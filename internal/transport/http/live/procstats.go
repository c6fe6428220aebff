package livehttp

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"faillog/internal/logger"
)

const mb = 1024 * 1024

// ProcessStats 描述监控进程本身的资源占用。
type ProcessStats struct {
	PID          int32   `json:"pid"`
	CPUPercent   float64 `json:"cpu_percent"`
	RSSMB        float64 `json:"rss_mb"`
	Goroutines   int     `json:"goroutines,omitempty"`
	NumFDs       int32   `json:"num_fds,omitempty"`
	HostMemUsed  float64 `json:"host_mem_used_percent"`
	UptimeSecond int64   `json:"uptime_seconds"`
}

// collectProcessStats reads the current process; missing fields are left zero.
func collectProcessStats(ctx context.Context) (*ProcessStats, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	out := &ProcessStats{PID: proc.Pid, Goroutines: runtime.NumGoroutine()}
	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		out.CPUPercent = pct
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		out.RSSMB = float64(info.RSS) / mb
	}
	if fds, err := proc.NumFDsWithContext(ctx); err == nil {
		out.NumFDs = fds
	}
	if created, err := proc.CreateTimeWithContext(ctx); err == nil && created > 0 {
		out.UptimeSecond = int64(time.Since(time.UnixMilli(created)).Seconds())
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.HostMemUsed = vm.UsedPercent
	} else {
		logger.Tracef(5, "[http] host memory unavailable: %v", err)
	}
	return out, nil
}
