package types

import (
	"time"

	"github.com/google/uuid"
)

// JobID identifies a unit of work on the Job Queue (§4.I).
type JobID string

// NewJobID generates a UUIDv7 job identifier. Time-ordered IDs ensure
// sequential enqueues cluster in B-tree pages and sort naturally for FIFO
// inspection. Panics on clock regression (uuid.Must); acceptable for ID
// generation, which never runs on a hot per-payload path anyway.
func NewJobID() JobID {
	return JobID(uuid.Must(uuid.NewV7()).String())
}

// ParseJobID validates and converts a string to JobID.
func ParseJobID(s string) (JobID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return JobID(s), nil
}

// JobIDTime extracts the timestamp embedded in a UUIDv7 job id. Returns
// the zero time for malformed ids; callers should check IsZero().
func JobIDTime(id JobID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}

// RawSampleName returns the <unix-ms>.json filename used for raw sample
// archive entries under a kind's raw-samples/ directory (§6).
func RawSampleName(at time.Time) string {
	return itoa64(at.UnixMilli()) + ".json"
}

func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
