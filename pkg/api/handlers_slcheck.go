package api

import (
	"context"
	"net/http"
	"time"

	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/slcheck"
	"github.com/holo-host/hpos-api/pkg/storage"
)

type passOutcome struct {
	res *slcheck.Result
	err error
	rec *storage.PassRecord
}

// handleSLCheck runs one service logger check. Concurrent triggers share a
// single pass. Any failure answers 500 with the first error; the full report
// is kept in the journal.
func (s *Server) handleSLCheck(w http.ResponseWriter, r *http.Request) {
	v, _, _ := s.slFlight.Do("sl-check", func() (interface{}, error) {
		// a disconnecting caller must not cancel a pass others are waiting on
		ctx := context.WithoutCancel(r.Context())
		started := time.Now().UTC()
		res, err := s.deps.SLCheck.Run(ctx)
		return s.journalPass(started, res, err), nil
	})
	out := v.(passOutcome)

	if out.err != nil {
		writeError(w, r, slcheck.FirstError(out.err))
		return
	}
	writeJSON(w, http.StatusOK, out.rec.Report)
}

func (s *Server) journalPass(started time.Time, res *slcheck.Result, err error) passOutcome {
	rec := &storage.PassRecord{
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Report:     slcheck.NewReport(res, err),
	}
	switch {
	case res == nil:
		rec.Outcome = storage.OutcomeFailed
	case err != nil:
		rec.Outcome = storage.OutcomePartial
	default:
		rec.Outcome = storage.OutcomeSuccess
	}

	if s.deps.Journal != nil {
		if jerr := s.deps.Journal.RecordPass(rec); jerr != nil {
			s.logger.Warn().Err(jerr).Msg("Failed to journal sl-check pass")
		} else if s.cfg.Retention > 0 {
			if jerr := s.deps.Journal.Prune(s.cfg.Retention); jerr != nil {
				s.logger.Warn().Err(jerr).Msg("Failed to prune journal")
			}
		}
	}
	return passOutcome{res: res, err: err, rec: rec}
}

type historyResponse struct {
	Passes []*storage.PassRecord `json:"passes"`
	Events []*events.Event       `json:"events"`
}

// handleSLCheckHistory lists recent passes and lifecycle events, newest
// first. app_id narrows the events to one app.
func (s *Server) handleSLCheckHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", int64(s.cfg.HistoryLimit))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := historyResponse{Passes: []*storage.PassRecord{}, Events: []*events.Event{}}
	if s.deps.Journal == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	passes, err := s.deps.Journal.ListPasses(int(limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	evs, err := s.deps.Journal.ListEvents(int(limit), r.URL.Query().Get("app_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if passes != nil {
		resp.Passes = passes
	}
	if evs != nil {
		resp.Events = evs
	}
	writeJSON(w, http.StatusOK, resp)
}
