package proofs

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/google/uuid"
)

const (
	minEntityID = 100000
	maxEntityID = 999999
)

// randomEntityID draws an integer uniformly from [minEntityID, maxEntityID].
// Rejection sampling keeps the distribution unbiased.
func randomEntityID(r io.Reader) (int, error) {
	const span = maxEntityID - minEntityID + 1
	const limit = (1 << 32) / span * span
	var buf [4]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint32(buf[:])
		if uint64(v) < limit {
			return minEntityID + int(v%span), nil
		}
	}
}

func newProofID(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// LockedReader serializes reads from a source that is not safe for
// concurrent use, such as a seeded math/rand generator.
type LockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

// NewLockedReader wraps r.
func NewLockedReader(r io.Reader) *LockedReader {
	return &LockedReader{r: r}
}

func (l *LockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}
