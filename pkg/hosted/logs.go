package hosted

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/holo-host/hpos-api/pkg/ledger"
)

// DefaultLogDays is used when a logs request gives no days
const DefaultLogDays = 7

// LogRecord is one decoded service logger record
type LogRecord struct {
	Timestamp ledger.Timestamp `json:"timestamp"`
	Entry     LogEntry         `json:"entry"`
}

// Logs returns the service logger records of happID from the last days days.
// Entries that are neither activity nor disk usage logs are skipped.
func (s *Service) Logs(ctx context.Context, happID string, days int) ([]LogRecord, error) {
	var records []ChainRecord
	if err := s.serviceLogger(ctx, happID, FnQueryingChain, nil, &records); err != nil {
		return nil, fmt.Errorf("failed to query service logs of %s: %w", happID, err)
	}

	cutoff := ledger.TimestampOf(s.now().Add(-time.Duration(days) * 24 * time.Hour))
	out := []LogRecord{}
	for _, r := range records {
		if r.Timestamp <= cutoff {
			continue
		}
		entry, ok := decodeLogEntry(r.Entry)
		if !ok {
			continue
		}
		out = append(out, LogRecord{Timestamp: r.Timestamp, Entry: entry})
	}
	return out, nil
}

// decodeLogEntry recognises an entry by its fields: request and response make
// an activity log, files make a disk usage log.
func decodeLogEntry(raw json.RawMessage) (LogEntry, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return LogEntry{}, false
	}

	_, hasRequest := probe["request"]
	_, hasResponse := probe["response"]
	if hasRequest && hasResponse {
		var a ActivityLog
		if err := json.Unmarshal(raw, &a); err != nil {
			return LogEntry{}, false
		}
		return LogEntry{ActivityLog: &a}, true
	}

	if _, ok := probe["files"]; ok {
		var d DiskUsageLog
		if err := json.Unmarshal(raw, &d); err != nil {
			return LogEntry{}, false
		}
		return LogEntry{DiskUsageLog: &d}, true
	}
	return LogEntry{}, false
}
