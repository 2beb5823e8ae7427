package escrow

import "time"

// Sweep scans all LOCKED escrows and expires the ones whose deadline has
// passed, refunding each client atomically with its status change
// (design §4.6: "Expiry sweeper runs periodically, default every 60 s").
// It returns the ids it expired.
func (m *Manager) Sweep() []string {
	var expiredIDs []string
	for _, id := range m.lockedSnapshot() {
		if _, err := m.expire(id); err == nil {
			expiredIDs = append(expiredIDs, id)
		}
	}
	return expiredIDs
}

// RunSweeperPeriodically runs Sweep every interval until stop is closed.
// Intended to be launched as a background goroutine by the wiring layer.
func RunSweeperPeriodically(m *Manager, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
