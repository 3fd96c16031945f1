package fourlimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Clock abstracts the time source so pacing math and cooperative waits can
// be driven deterministically in tests. The default implementation reads
// time.Now, which carries a monotonic reading on all supported platforms.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock returns the default Clock backed by time.Now and timer-based
// sleeping.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unixTime serializes a time.Time as fractional Unix seconds, the wire form
// used in persisted state files. State files written by other runtimes use
// the same representation, so round-tripping through JSON must preserve it.
type unixTime struct {
	time.Time
}

func (u unixTime) MarshalJSON() ([]byte, error) {
	sec := float64(u.UnixNano()) / float64(time.Second)
	return strconv.AppendFloat(nil, sec, 'f', -1, 64), nil
}

func (u *unixTime) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("fourlimit: timestamp %q is not a number: %w", data, err)
	}
	sec, frac := math.Modf(f)
	u.Time = time.Unix(int64(sec), int64(math.Round(frac*1e9)))
	return nil
}
