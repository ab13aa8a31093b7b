package diagnostics

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot records process and machine pressure at the time of a dump.
type HostSnapshot struct {
	Goroutines   int     `json:"goroutines"`
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	NumCPU       int     `json:"num_cpu"`
	MemTotalMB   float64 `json:"mem_total_mb,omitempty"`
	MemUsedMB    float64 `json:"mem_used_mb,omitempty"`
	MemPercent   float64 `json:"mem_percent,omitempty"`
	LoadAvg1     float64 `json:"load_avg_1,omitempty"`
	LoadAvg5     float64 `json:"load_avg_5,omitempty"`
	LoadAvg15    float64 `json:"load_avg_15,omitempty"`
	HostObserved bool    `json:"host_observed"`
}

// TakeHostSnapshot reads runtime statistics and, best-effort, system memory
// and load averages.
func TakeHostSnapshot() HostSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := HostSnapshot{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
		NumCPU:      runtime.NumCPU(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemTotalMB = float64(vm.Total) / 1024 / 1024
		s.MemUsedMB = float64(vm.Used) / 1024 / 1024
		s.MemPercent = vm.UsedPercent
		s.HostObserved = true
	}
	// load.Avg is unsupported on windows
	if avg, err := load.Avg(); err == nil {
		s.LoadAvg1 = avg.Load1
		s.LoadAvg5 = avg.Load5
		s.LoadAvg15 = avg.Load15
	}
	return s
}
