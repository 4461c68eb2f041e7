package timebucket

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Epoch is the fixed origin of bucket numbering.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// Environment variables consulted by OverrideClock.
const (
	EnvTimeBucket         = "SL_TEST_TIME_BUCKET"
	EnvIsBeforeNextBucket = "SL_TEST_IS_BEFORE_NEXT_BUCKET"
	EnvIsInDeletingWindow = "SL_TEST_IS_IN_DELETING_WINDOW"
)

// Clock answers the time questions the clone orchestrator asks during a pass.
type Clock interface {
	// CurrentBucket returns the index of the bucket containing now.
	CurrentBucket(widthDays uint32) uint32
	// IsWithinMinutesOfNextBoundary reports whether the next bucket starts in
	// less than minutes.
	IsWithinMinutesOfNextBoundary(widthDays uint32, minutes uint32) bool
	// IsInDeletionCheckWindow reports whether retirement scanning may run.
	IsInDeletionCheckWindow(minutes uint32) bool
}

// CurrentBucket computes floor(days since Epoch / widthDays). Times before the
// epoch map to bucket 0. widthDays must be > 0.
func CurrentBucket(now time.Time, widthDays uint32) uint32 {
	if widthDays == 0 {
		return 0
	}
	elapsed := now.UTC().Sub(Epoch)
	if elapsed < 0 {
		return 0
	}
	days := uint64(elapsed / day)
	return uint32(days / uint64(widthDays))
}

// BucketStart returns the instant bucket index begins.
func BucketStart(widthDays, index uint32) time.Time {
	return Epoch.Add(time.Duration(uint64(index)*uint64(widthDays)) * day)
}

// WithinMinutesOfNextBoundary is true iff 0 <= start(current+1) - now < minutes.
func WithinMinutesOfNextBoundary(now time.Time, widthDays uint32, minutes uint32) bool {
	if widthDays == 0 {
		return false
	}
	next := BucketStart(widthDays, CurrentBucket(now, widthDays)+1)
	remaining := next.Sub(now)
	return remaining >= 0 && remaining < time.Duration(minutes)*time.Minute
}

// InDeletionCheckWindow is true iff now falls within the first minutes of a UTC day.
func InDeletionCheckWindow(now time.Time, minutes uint32) bool {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return now.Sub(midnight) < time.Duration(minutes)*time.Minute
}

// SystemClock derives every answer from wall time.
type SystemClock struct {
	now func() time.Time
}

// NewSystemClock returns a clock reading time.Now.
func NewSystemClock() *SystemClock {
	return &SystemClock{now: time.Now}
}

// NewSystemClockAt returns a clock reading the given time source.
func NewSystemClockAt(now func() time.Time) *SystemClock {
	return &SystemClock{now: now}
}

func (c *SystemClock) CurrentBucket(widthDays uint32) uint32 {
	return CurrentBucket(c.now(), widthDays)
}

func (c *SystemClock) IsWithinMinutesOfNextBoundary(widthDays uint32, minutes uint32) bool {
	return WithinMinutesOfNextBoundary(c.now(), widthDays, minutes)
}

func (c *SystemClock) IsInDeletionCheckWindow(minutes uint32) bool {
	return InDeletionCheckWindow(c.now(), minutes)
}

// FixedClock returns the same answers regardless of arguments.
type FixedClock struct {
	Bucket         uint32
	NearBoundary   bool
	DeletionWindow bool
}

func (c FixedClock) CurrentBucket(uint32) uint32                        { return c.Bucket }
func (c FixedClock) IsWithinMinutesOfNextBoundary(uint32, uint32) bool { return c.NearBoundary }
func (c FixedClock) IsInDeletionCheckWindow(uint32) bool                { return c.DeletionWindow }

// OverrideClock delegates to Base unless an override is set.
type OverrideClock struct {
	Base           Clock
	Bucket         *uint32
	NearBoundary   *bool
	DeletionWindow *bool
}

// NewOverrideClockFromEnv reads the SL_TEST_* variables. Unset variables leave
// the corresponding answer to base; malformed ones are an error.
func NewOverrideClockFromEnv(base Clock) (*OverrideClock, error) {
	c := &OverrideClock{Base: base}

	if v, ok := os.LookupEnv(EnvTimeBucket); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvTimeBucket, v, err)
		}
		b := uint32(n)
		c.Bucket = &b
	}

	var err error
	if c.NearBoundary, err = lookupBool(EnvIsBeforeNextBucket); err != nil {
		return nil, err
	}
	if c.DeletionWindow, err = lookupBool(EnvIsInDeletingWindow); err != nil {
		return nil, err
	}

	return c, nil
}

func lookupBool(key string) (*bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return &b, nil
}

func (c *OverrideClock) CurrentBucket(widthDays uint32) uint32 {
	if c.Bucket != nil {
		return *c.Bucket
	}
	return c.Base.CurrentBucket(widthDays)
}

func (c *OverrideClock) IsWithinMinutesOfNextBoundary(widthDays uint32, minutes uint32) bool {
	if c.NearBoundary != nil {
		return *c.NearBoundary
	}
	return c.Base.IsWithinMinutesOfNextBoundary(widthDays, minutes)
}

func (c *OverrideClock) IsInDeletionCheckWindow(minutes uint32) bool {
	if c.DeletionWindow != nil {
		return *c.DeletionWindow
	}
	return c.Base.IsInDeletionCheckWindow(minutes)
}

// New returns the clock the gateway should use. Overrides are only honoured in
// test mode.
func New(testMode bool) (Clock, error) {
	base := NewSystemClock()
	if !testMode {
		return base, nil
	}
	return NewOverrideClockFromEnv(base)
}
