// internal/performance/system.go
package performance

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemSnapshot 主机资源快照
type SystemSnapshot struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	MemUsedMB   uint64  `json:"mem_used_mb"`
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB uint64  `json:"heap_alloc_mb"`
}

// CollectSystemSnapshot 采集主机CPU和内存使用率，采集失败的项保持零值
func CollectSystemSnapshot(ctx context.Context) SystemSnapshot {
	var snap SystemSnapshot

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemPercent = vm.UsedPercent
		snap.MemUsedMB = vm.Used / 1024 / 1024
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapAllocMB = ms.HeapAlloc / 1024 / 1024
	snap.Goroutines = runtime.NumGoroutine()

	return snap
}
