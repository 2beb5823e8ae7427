package clock

// HLC is a hybrid logical clock: a physical timestamp (milliseconds since
// epoch) paired with a logical counter that increments on ties, per design
// §3 (`wall_ms ≥ any received hlc.wall_ms − clock_skew_bound`).
type HLC struct {
	WallMS  int64  `json:"wall_ms"`
	Counter uint64 `json:"logical_counter"`
}

// Compare orders two HLC values: wall time first, logical counter as
// tie-breaker.
func (h HLC) Compare(other HLC) int {
	if h.WallMS != other.WallMS {
		if h.WallMS < other.WallMS {
			return -1
		}
		return 1
	}
	if h.Counter != other.Counter {
		if h.Counter < other.Counter {
			return -1
		}
		return 1
	}
	return 0
}

// Tick advances the clock for a local event: if the physical clock has
// moved forward, adopt it and reset the counter; otherwise bump the
// counter to stay ahead of same-millisecond events.
func Tick(prev HLC, physicalNowMS int64) HLC {
	if physicalNowMS > prev.WallMS {
		return HLC{WallMS: physicalNowMS, Counter: 0}
	}
	return HLC{WallMS: prev.WallMS, Counter: prev.Counter + 1}
}

// Receive merges a locally observed HLC with one received from a remote
// message, implementing the standard HLC receive rule: the new wall time is
// the max of the physical clock and both prior wall times, with the counter
// reset or bumped depending on which value(s) tie at that wall time.
func Receive(local, remote HLC, physicalNowMS int64) HLC {
	maxWall := physicalNowMS
	if local.WallMS > maxWall {
		maxWall = local.WallMS
	}
	if remote.WallMS > maxWall {
		maxWall = remote.WallMS
	}
	switch {
	case maxWall == local.WallMS && maxWall == remote.WallMS:
		c := local.Counter
		if remote.Counter > c {
			c = remote.Counter
		}
		return HLC{WallMS: maxWall, Counter: c + 1}
	case maxWall == local.WallMS:
		return HLC{WallMS: maxWall, Counter: local.Counter + 1}
	case maxWall == remote.WallMS:
		return HLC{WallMS: maxWall, Counter: remote.Counter + 1}
	default:
		return HLC{WallMS: maxWall, Counter: 0}
	}
}
