package session

import (
	"sync"
	"time"
)

// nonceCache remembers (senderID, nonce) pairs seen within the replay
// window, evicting entries once they age out to bound memory (design §4.2).
type nonceCache struct {
	mu     sync.Mutex
	window time.Duration
	seenAt map[string]time.Time
}

func newNonceCache(window time.Duration) *nonceCache {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &nonceCache{window: window, seenAt: make(map[string]time.Time)}
}

func key(senderID, nonce string) string { return senderID + "|" + nonce }

// checkAndRecord returns false if (senderID, nonce) was already recorded
// within the window; otherwise records it and returns true. Expired entries
// are swept opportunistically on each call.
func (c *nonceCache) checkAndRecord(senderID, nonce string, now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = c.window
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, t := range c.seenAt {
		if now.Sub(t) > window {
			delete(c.seenAt, k)
		}
	}

	k := key(senderID, nonce)
	if t, ok := c.seenAt[k]; ok && now.Sub(t) <= window {
		return false
	}
	c.seenAt[k] = now
	return true
}

// size reports the number of currently tracked nonces (for tests).
func (c *nonceCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seenAt)
}
