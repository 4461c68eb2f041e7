package slcheck

import (
	"github.com/holo-host/hpos-api/pkg/ledger"
)

// Service logger zome queried for the secrets a clone has invoiced
const (
	ServiceZome          = "service"
	FnGetInvoicedSecrets = "get_invoiced_secrets"
)

// InvoicedSecrets is the response of service/get_invoiced_secrets. Complete is
// false when the clone could not enumerate every invoice it produced.
type InvoicedSecrets struct {
	Complete bool            `json:"complete"`
	Secrets  []ledger.Secret `json:"secrets"`
}

// Set returns the secrets as a set
func (s InvoicedSecrets) Set() ledger.SecretSet {
	return ledger.NewSecretSet(s.Secrets...)
}

// SkipReason explains why an old clone was kept
type SkipReason string

const (
	ReasonNone       SkipReason = ""
	ReasonIncomplete SkipReason = "incomplete"
	ReasonNoInvoices SkipReason = "no_invoices"
	ReasonUnpaid     SkipReason = "unpaid_invoice"
	// ReasonUnverified marks a clone disabled outside a retirement this
	// process verified; it cannot be queried and is left alone
	ReasonUnverified SkipReason = "disabled_unverified"
)

// IsRetirementEligible reports whether a clone may be retired: it must have
// invoiced at least one secret and none of them may still be pending payment.
func IsRetirementEligible(invoiced, pending ledger.SecretSet) bool {
	return len(invoiced) > 0 && invoiced.Disjoint(pending)
}

// evaluate applies IsRetirementEligible to a query response. Incomplete
// responses are never eligible.
func evaluate(resp InvoicedSecrets, pending ledger.SecretSet) (bool, SkipReason) {
	if !resp.Complete {
		return false, ReasonIncomplete
	}
	invoiced := resp.Set()
	if len(invoiced) == 0 {
		return false, ReasonNoInvoices
	}
	if !IsRetirementEligible(invoiced, pending) {
		return false, ReasonUnpaid
	}
	return true, ReasonNone
}
