// Package ids generates the identifiers this service assigns itself. Every
// other id (users, tournaments, roles) is a database sequence.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewSessionID returns a lexicographically sortable session identifier.
// Sessions created in the same millisecond still order by creation.
func NewSessionID() string {
	return newAt(time.Now())
}

func newAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ValidSessionID reports whether s is a well-formed session id.
func ValidSessionID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// NewRequestID returns a random request correlation id.
func NewRequestID() string { return uuid.NewString() }
