package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const urnPrefix = "urn:uuid:"

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

// NewURN returns a fresh identifier in the canonical urn:uuid form used for
// badge entities.
func NewURN() string {
	return urnPrefix + uuid.NewString()
}

// IsURN reports whether the identifier carries the urn:uuid prefix.
func IsURN(id string) bool {
	return strings.HasPrefix(id, urnPrefix)
}

// ToUUID converts an identifier into its engine-native UUID. It accepts the
// canonical urn:uuid form and bare UUID strings; any other shape fails. The
// conversion is invertible via ToURN for all accepted inputs.
func ToUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(id, urnPrefix))
}

// ToURN converts an engine-native UUID back to the canonical identifier form.
func ToURN(u uuid.UUID) string {
	return urnPrefix + u.String()
}
