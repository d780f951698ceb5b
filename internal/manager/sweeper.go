package manager

import (
	"runtime"
	"time"
	"weak"
)

// StartSweeper launches the periodic reclamation goroutine. It must be
// called at most once per Manager; a second call is a programming error
// and panics immediately.
func (m *Manager) StartSweeper() {
	started := false
	m.sweepOnce.Do(func() {
		started = true
		go m.sweepLoop()
	})
	if !started {
		panic("manager: sweeper already started")
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		m.sweepOnceImpl()
	}
}

// sweepOnceImpl is the body of one sweep round: if no connection was
// accepted since the last round, skip it; otherwise force a garbage
// collection so dead weak pointers actually report dead, then prune the
// connection index and, separately, the grace index. The two indices are
// never locked at the same time.
func (m *Manager) sweepOnceImpl() {
	if m.acceptCount.Swap(0) == 0 {
		return
	}

	// weak.Pointer.Value() only reports nil once the GC has reclaimed the
	// referent; without forcing a cycle here a pointer whose last strong
	// holder already returned could still read non-nil until the next
	// incidental collection.
	runtime.GC()

	m.connMu.Lock()
	pruneIndex(m.conns)
	m.connMu.Unlock()

	m.graceMu.Lock()
	pruneIndex(m.grace)
	m.graceMu.Unlock()
}

func pruneIndex(idx map[string][]weak.Pointer[Connection]) {
	for domain, entries := range idx {
		alive := entries[:0]
		for _, wp := range entries {
			if wp.Value() != nil {
				alive = append(alive, wp)
			}
		}
		if len(alive) == 0 {
			delete(idx, domain)
			continue
		}
		idx[domain] = alive
	}
}
