// Package timebucket maps wall-clock time to service-logger buckets and names
// the clone cells that hold them.
package timebucket
