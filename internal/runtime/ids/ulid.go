package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// JIDLength is the fixed length of every job id.
const JIDLength = ulid.EncodedSize

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewJID returns a fresh job id. Job ids double as the broker deduplication key,
// so a value is generated once per publish and never reused.
func NewJID() string {
	return newULIDAt(time.Now())
}

// ValidJID reports whether s has the shape of a job id produced by NewJID.
func ValidJID(s string) bool {
	if len(s) != JIDLength {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// JIDTime extracts the publish time encoded in a job id.
func JIDTime(jid string) (time.Time, bool) {
	id, err := ulid.ParseStrict(jid)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}

func newULIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
