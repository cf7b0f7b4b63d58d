package ids

import (
	mathrand "math/rand"
	"strings"
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

// CaseNumber builds a human-facing docket number such as "CASE-2025-01JW...".
// The ULID tail keeps numbers unique without a database round trip.
func CaseNumber(now time.Time) string {
	return "CASE-" + now.UTC().Format("2006") + "-" + strings.ToUpper(New()[10:])
}
