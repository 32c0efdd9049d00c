package server

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/boypt/torrentdesk/storage"
	"github.com/boypt/torrentdesk/store"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	statsInterval = 5 * time.Second
	// ticks without a browser before the stats routine stops
	statsIdleTicks = 36
)

func loadStats(diskDir string) store.SystemStats {
	var s store.SystemStats
	if cpu, err := cpu.Percent(0, false); err == nil && len(cpu) > 0 {
		s.CPU = cpu[0]
	}
	if stat, err := disk.Usage(diskDir); err == nil {
		s.DiskUsed = int64(stat.Used)
		s.DiskTotal = int64(stat.Total)
	}
	if stat, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsed = int64(stat.Used)
		s.MemoryTotal = int64(stat.Total)
	}
	//count total bytes allocated by the go runtime
	memStats := runtime.MemStats{}
	runtime.ReadMemStats(&memStats)
	s.GoMemory = int64(memStats.Alloc)
	s.GoRoutines = runtime.NumGoroutine()
	s.Set = true
	return s
}

// statsRoutine refreshes system stats and the download listing while
// browsers are connected.
func (s *Server) statsRoutine(ctx context.Context) {
	defer atomic.StoreInt32(&s.statsRunning, 0)
	tk := time.NewTicker(statsInterval)
	defer tk.Stop()
	log.Info("sync connected, collecting stats every ", statsInterval)
	idle := 0
	for {
		s.refreshStats()
		select {
		case <-tk.C:
		case <-ctx.Done():
			return
		}
		if s.state.NumConnections() == 0 {
			idle++
		} else {
			idle = 0
		}
		if idle > statsIdleTicks {
			log.Info("no web connections, stats stopped")
			return
		}
	}
}

func (s *Server) refreshStats() {
	var dir string
	var st *storage.Storage
	s.call(func() {
		dir = s.state.Saved.Prefs.DownloadPath
		st = s.storage
	})
	if st == nil {
		return
	}
	sys := loadStats(dir)
	node, err := st.List("/")
	if err != nil {
		log.Debugf("list downloads: %v", err)
	}
	s.post(func() {
		s.state.Stats.System = sys
		if err == nil {
			s.state.Downloads = node
		}
	})
}
