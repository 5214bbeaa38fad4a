package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewPublicID returns the client-facing numeric identifier assigned to
// records and user accounts: wall-clock milliseconds scaled by a random
// multiplier in [1,1000]. Generation is lock-free and roughly increasing;
// two creations inside the same millisecond can collide, an accepted rare
// failure that the store does not actively detect.
func NewPublicID() int64 {
	return time.Now().UnixMilli() * int64(mathrand.Intn(1000)+1)
}
