package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/holo-host/hpos-api/pkg/ledger"
	"github.com/holo-host/hpos-api/pkg/types"
)

type aliveResponse struct {
	Status     string `json:"status"`
	HoloportID string `json:"holoport_id"`
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Hosted.HoloportID(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aliveResponse{Status: "alive", HoloportID: id})
}

func (s *Server) handleCoreVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.CoreAppID)
}

// handleCallZome forwards a zome call and returns its decoded result as is
func (s *Server) handleCallZome(w http.ResponseWriter, r *http.Request) {
	var call types.ZomeCall
	if err := s.decode(r, &call); err != nil {
		writeError(w, r, err)
		return
	}

	var out json.RawMessage
	if err := s.deps.Zome.CallZome(r.Context(), call, &out); err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	set, err := ledger.ParseInvoiceSet(r.URL.Query().Get("invoice_set"))
	if err != nil {
		writeError(w, r, badRequest("%v", err))
		return
	}

	invoices, err := s.deps.Ledger.HostingInvoices(r.Context(), set)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []ledger.InvoiceDetail{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) handleRedemptions(w http.ResponseWriter, r *http.Request) {
	redemptions, err := s.deps.Ledger.Redemptions(r.Context(), s.deps.Records)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptions)
}

func (s *Server) handleRedeemableHistogram(w http.ResponseWriter, r *http.Request) {
	hist, err := s.deps.Ledger.RedeemableHistogram(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// handleBillingPreferences returns the host's default hosting prices
func (s *Server) handleBillingPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.deps.Hosted.BillingPreferences(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
