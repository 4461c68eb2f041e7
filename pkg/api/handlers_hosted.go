package api

import (
	"net/http"

	"github.com/holo-host/hpos-api/pkg/hosted"
)

func (s *Server) handleListHosted(w http.ResponseWriter, r *http.Request) {
	interval, err := queryInt(r, "usage_interval", hosted.DefaultUsageIntervalDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity, err := queryInt(r, "quantity", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	happs, err := s.deps.Hosted.List(r.Context(), interval, int(quantity))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, happs)
}

func (s *Server) handleGetHosted(w http.ResponseWriter, r *http.Request) {
	interval, err := queryInt(r, "usage_interval", hosted.DefaultUsageIntervalDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	happ, err := s.deps.Hosted.Get(r.Context(), happID(r), interval)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, happ)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Hosted.Enable(r.Context(), happID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Hosted.Disable(r.Context(), happID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", hosted.DefaultLogDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logs, err := s.deps.Hosted.Logs(r.Context(), happID(r), int(days))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req hosted.InstallRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := hosted.ValidateHappID(req.HappID); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.Hosted.Install(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req hosted.RegisterRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	bundle, err := s.deps.Hosted.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleHoloportUsage(w http.ResponseWriter, r *http.Request) {
	interval, err := queryInt(r, "usage_interval", hosted.DefaultUsageIntervalDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	usage, err := s.deps.Hosted.HoloportUsage(r.Context(), interval)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
