// Package chunked frames payloads that exceed a transport's MTU into a
// sequence of numbered chunks, and reassembles them on the receiving side
// (design §4, "Chunked transfer — framing for payloads exceeding MTU").
package chunked

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/a2afabric/core/internal/errs"
)

// DefaultChunkSize is the chunk size Split uses when given a non-positive
// size.
const DefaultChunkSize = 16 * 1024

// Chunk is one numbered fragment of a larger payload.
type Chunk struct {
	TransferID string `json:"transfer_id"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Data       []byte `json:"data"`
	// Checksum is the SHA-256 of the full reassembled payload, carried on
	// every chunk so a receiver can validate integrity as soon as the last
	// chunk arrives without a separate trailer message.
	Checksum [32]byte `json:"checksum"`
}

// Split breaks payload into chunks of at most size bytes. size <= 0 uses
// DefaultChunkSize. A payload smaller than size still yields exactly one
// chunk (Total=1), so callers need not special-case small messages.
func Split(transferID string, payload []byte, size int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	sum := sha256.Sum256(payload)

	total := (len(payload) + size - 1) / size
	if total == 0 {
		total = 1
	}
	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := start + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, Chunk{
			TransferID: transferID,
			Index:      i,
			Total:      total,
			Data:       append([]byte(nil), payload[start:end]...),
			Checksum:   sum,
		})
	}
	return chunks
}

// pendingTransfer buffers chunks for one in-flight transfer until all
// arrive or it is swept for staleness.
type pendingTransfer struct {
	total    int
	received map[int][]byte
	checksum [32]byte
	lastSeen time.Time
}

// Reassembler accumulates Chunks across possibly-reordered arrivals and
// reports the completed payload once every index for a transfer is present.
type Reassembler struct {
	mu      sync.Mutex
	ttl     time.Duration
	byID    map[string]*pendingTransfer
}

// NewReassembler constructs a Reassembler that discards incomplete
// transfers older than ttl (Sweep must be called periodically to apply it).
func NewReassembler(ttl time.Duration) *Reassembler {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Reassembler{ttl: ttl, byID: make(map[string]*pendingTransfer)}
}

// Add records c and returns (payload, true, nil) once all chunks for its
// transfer have arrived and the reassembled payload's checksum matches.
func (r *Reassembler) Add(c Chunk) ([]byte, bool, error) {
	if c.Total <= 0 || c.Index < 0 || c.Index >= c.Total {
		return nil, false, errs.New(errs.InvalidArgument, "chunk index %d out of range for total %d", c.Index, c.Total)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	pt, ok := r.byID[c.TransferID]
	if !ok {
		pt = &pendingTransfer{total: c.Total, received: make(map[int][]byte), checksum: c.Checksum}
		r.byID[c.TransferID] = pt
	}
	if pt.total != c.Total {
		return nil, false, errs.New(errs.InvalidArgument, "inconsistent total for transfer %s", c.TransferID)
	}
	pt.received[c.Index] = c.Data
	pt.lastSeen = time.Now().UTC()

	if len(pt.received) < pt.total {
		return nil, false, nil
	}

	var full []byte
	for i := 0; i < pt.total; i++ {
		part, ok := pt.received[i]
		if !ok {
			return nil, false, nil
		}
		full = append(full, part...)
	}
	delete(r.byID, c.TransferID)

	sum := sha256.Sum256(full)
	if sum != pt.checksum {
		return nil, false, errs.New(errs.InvalidArgument, "checksum mismatch reassembling transfer %s", c.TransferID)
	}
	return full, true, nil
}

// Sweep discards incomplete transfers that have not received a chunk within
// the configured ttl, returning how many were discarded.
func (r *Reassembler) Sweep() int {
	cutoff := time.Now().UTC().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	discarded := 0
	for id, pt := range r.byID {
		if pt.lastSeen.Before(cutoff) {
			delete(r.byID, id)
			discarded++
		}
	}
	return discarded
}

// Pending reports the number of transfers currently buffered.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
