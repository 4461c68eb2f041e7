package slcheck

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// AppBucket names one clone of one service logger. It is encoded as the
// two-element array [appId, bucketName].
type AppBucket struct {
	AppID  string
	Bucket string
}

// MarshalJSON implements json.Marshaler
func (b AppBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{b.AppID, b.Bucket})
}

// UnmarshalJSON implements json.Unmarshaler
func (b *AppBucket) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("app bucket: %w", err)
	}
	b.AppID, b.Bucket = pair[0], pair[1]
	return nil
}

// Result collects the clones created and deleted during one pass. It is safe
// for concurrent use while the pass runs.
type Result struct {
	mu      sync.Mutex
	Cloned  []AppBucket
	Deleted []AppBucket
}

func newResult() *Result {
	return &Result{Cloned: []AppBucket{}, Deleted: []AppBucket{}}
}

func (r *Result) addCloned(appID, bucket string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cloned = append(r.Cloned, AppBucket{AppID: appID, Bucket: bucket})
}

func (r *Result) addDeleted(appID, bucket string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deleted = append(r.Deleted, AppBucket{AppID: appID, Bucket: bucket})
}

// sort orders entries by app then bucket so concurrent passes report stably
func (r *Result) sort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sortBuckets(r.Cloned)
	sortBuckets(r.Deleted)
}

func sortBuckets(b []AppBucket) {
	sort.SliceStable(b, func(i, j int) bool {
		if b[i].AppID != b[j].AppID {
			return b[i].AppID < b[j].AppID
		}
		return b[i].Bucket < b[j].Bucket
	})
}

// Report is the JSON body returned for a pass
type Report struct {
	Cloned  []AppBucket `json:"serviceLoggersCloned"`
	Deleted []AppBucket `json:"serviceLoggersDeleted"`
	Errors  []string    `json:"errors,omitempty"`
}

// NewReport builds the response for a finished pass. err is the joined
// per-app error returned by Run, if any.
func NewReport(res *Result, err error) Report {
	rep := Report{Cloned: []AppBucket{}, Deleted: []AppBucket{}}
	if res != nil {
		res.mu.Lock()
		rep.Cloned = append(rep.Cloned, res.Cloned...)
		rep.Deleted = append(rep.Deleted, res.Deleted...)
		res.mu.Unlock()
	}
	for _, e := range splitJoined(err) {
		rep.Errors = append(rep.Errors, e.Error())
	}
	return rep
}

// FirstError returns the first of the errors joined by Run, or nil
func FirstError(err error) error {
	if errs := splitJoined(err); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func splitJoined(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// Retirement steps
const (
	StepQuery   = "query"
	StepDisable = "disable"
	StepDelete  = "delete"
)

// CloneFailure records one clone whose retirement failed at Step
type CloneFailure struct {
	CloneID string
	Name    string
	Step    string
	Err     error
}

// RetireError aggregates the retirement failures of one service logger.
// Failed clones were left enabled (query or disable failed) or disabled
// (delete failed).
type RetireError struct {
	AppID    string
	Failures []CloneFailure
}

func (e *RetireError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s %s: %v", f.Name, f.Step, f.Err))
	}
	return fmt.Sprintf("retire clones of %s: %d failed: %s", e.AppID, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the underlying clone errors to errors.Is and errors.As
func (e *RetireError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// ErrPassNotStarted wraps failures that prevented a pass from reaching any app
var ErrPassNotStarted = errors.New("service logger check could not start")
