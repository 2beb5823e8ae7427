package registry

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a2afabric/core/internal/cache"
	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/metrics"
)

// digestCacheSize bounds how many peers' last-seen digest fingerprints the
// gossiper remembers, adapted from this codebase's common/cache.go LRU
// (itself backed by hashicorp/golang-lru).
const digestCacheSize = 256

// Peer is the gossip transport's view of a reachable node. Implementations
// are supplied by the caller (no package in this module provides one);
// registry only needs to exchange digests and entries with them.
type Peer interface {
	NodeID() string
	Digest() (map[string]uint64, error)
	PullEntries(digest map[string]uint64) ([]Entry, error)
	PushEntries(entries []Entry) error
}

// Gossiper drives the periodic push-pull round described in design §4.4,
// picking up to maxPeers random live peers each round — the same seeded
// math/rand peer-sampling idiom this codebase's discovery table uses for
// ReadRandomNodes, adapted here to CRDT entry exchange instead of routing
// table refresh.
type Gossiper struct {
	mu       sync.Mutex
	reg      *Registry
	maxPeers int
	rand     *mrand.Rand

	// seenDigests remembers each peer's last exchanged digest fingerprint,
	// so a round against a peer whose registry hasn't changed since the
	// last exchange can skip the pull entirely.
	seenDigests cache.Cache
}

// NewGossiper constructs a Gossiper over reg, sampling at most maxPeers
// peers per round (default 3).
func NewGossiper(reg *Registry, maxPeers int) *Gossiper {
	if maxPeers <= 0 {
		maxPeers = 3
	}
	var seed [8]byte
	crand.Read(seed[:])
	digests, err := cache.NewLRU(digestCacheSize)
	if err != nil {
		// digestCacheSize is a positive compile-time constant; NewLRU can
		// only fail on a non-positive size.
		panic(err)
	}
	return &Gossiper{
		reg:         reg,
		maxPeers:    maxPeers,
		rand:        mrand.New(mrand.NewSource(int64(binary.BigEndian.Uint64(seed[:])))),
		seenDigests: digests,
	}
}

// digestFingerprint builds a canonical, order-independent string summary of
// a digest map suitable for change detection between rounds.
func digestFingerprint(digest map[string]uint64) string {
	ids := make([]string, 0, len(digest))
	for id := range digest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('=')
		b.WriteString(strconv.FormatUint(digest[id], 10))
		b.WriteByte(';')
	}
	return b.String()
}

func (g *Gossiper) sample(peers []Peer) []Peer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(peers) <= g.maxPeers {
		out := append([]Peer(nil), peers...)
		return out
	}
	shuffled := append([]Peer(nil), peers...)
	g.rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:g.maxPeers]
}

// Round runs one push-pull exchange against a random sample of live,
// returning the number of entries adopted locally across all peers.
func (g *Gossiper) Round(live []Peer) (int, error) {
	adopted := 0
	for _, peer := range g.sample(live) {
		n, err := g.exchange(peer)
		if err != nil {
			return adopted, err
		}
		adopted += n
	}
	metrics.GossipRounds.Inc()
	return adopted, nil
}

func (g *Gossiper) exchange(peer Peer) (int, error) {
	localDigest := g.reg.Digest()

	peerDigest, err := peer.Digest()
	if err != nil {
		return 0, errs.Wrap(errs.Unavailable, err, "fetch digest from peer %s", peer.NodeID())
	}

	fingerprint := digestFingerprint(peerDigest)
	adopted := 0
	if prior, ok := g.seenDigests.Get(peer.NodeID()); !ok || prior != fingerprint {
		newer, err := peer.PullEntries(localDigest)
		if err != nil {
			return 0, errs.Wrap(errs.Unavailable, err, "pull entries from peer %s", peer.NodeID())
		}
		for _, e := range newer {
			ok, err := g.reg.MergeEntry(e)
			if err != nil {
				return adopted, err
			}
			if ok {
				adopted++
			}
		}
		g.seenDigests.Add(peer.NodeID(), fingerprint)
	}

	toSend := g.reg.EntriesNewerThan(peerDigest)
	if len(toSend) > 0 {
		if err := peer.PushEntries(toSend); err != nil {
			return adopted, errs.Wrap(errs.Unavailable, err, "push entries to peer %s", peer.NodeID())
		}
	}
	return adopted, nil
}

// SortPeerIDs is a helper for deterministic test/log output.
func SortPeerIDs(peers []Peer) []string {
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		ids = append(ids, p.NodeID())
	}
	sort.Strings(ids)
	return ids
}

// RunPeriodically runs Round every interval until stop is closed, returning
// once it is. Intended to be launched as a background goroutine by the
// wiring layer.
func RunPeriodically(g *Gossiper, livePeers func() []Peer, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.Round(livePeers())
		}
	}
}
