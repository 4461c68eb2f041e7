package ledger

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Secret is an opaque proof-of-service secret linking logged usage to an invoice.
type Secret string

// SecretSet is a set of secrets.
type SecretSet map[Secret]struct{}

// NewSecretSet builds a set from the given secrets.
func NewSecretSet(secrets ...Secret) SecretSet {
	s := make(SecretSet, len(secrets))
	for _, secret := range secrets {
		s[secret] = struct{}{}
	}
	return s
}

// Add inserts secret into the set.
func (s SecretSet) Add(secret Secret) {
	s[secret] = struct{}{}
}

// Has reports whether secret is in the set.
func (s SecretSet) Has(secret Secret) bool {
	_, ok := s[secret]
	return ok
}

// Disjoint reports whether s and other share no secret.
func (s SecretSet) Disjoint(other SecretSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for secret := range small {
		if large.Has(secret) {
			return false
		}
	}
	return true
}

// Timestamp is a holochain timestamp in microseconds since the Unix epoch.
type Timestamp int64

// Time converts the timestamp to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// TimestampOf converts a time.Time to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// TransactionType is Request (invoice) or Offer (promise).
type TransactionType string

const (
	TransactionRequest TransactionType = "Request"
	TransactionOffer   TransactionType = "Offer"
)

// TransactionDirection is relative to the host agent.
type TransactionDirection string

const (
	DirectionOutgoing TransactionDirection = "Outgoing"
	DirectionIncoming TransactionDirection = "Incoming"
)

// TransactionStatus mirrors the holofuel transaction lifecycle.
type TransactionStatus string

const (
	StatusActionable TransactionStatus = "Actionable"
	StatusPending    TransactionStatus = "Pending"
	StatusAccepted   TransactionStatus = "Accepted"
	StatusCompleted  TransactionStatus = "Completed"
	StatusDeclined   TransactionStatus = "Declined"
	StatusExpired    TransactionStatus = "Expired"
)

// ProofKind tags a proof of service.
type ProofKind string

const (
	ProofHosting    ProofKind = "hosting"
	ProofRedemption ProofKind = "redemption"
)

// ProofOfService is the tagged proof attached to a transaction. On the wire it
// is a single-key object, {"hosting": <secret>} or {"redemption": <wallet>}.
type ProofOfService struct {
	Kind  ProofKind
	Value string
}

// MarshalJSON encodes the single-key form.
func (p ProofOfService) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[ProofKind]string{p.Kind: p.Value})
}

// UnmarshalJSON decodes the single-key form. Secrets sent as byte arrays are
// base64 encoded so they compare as strings.
func (p *ProofOfService) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("proof of service: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("proof of service: expected one variant, got %d", len(raw))
	}

	for kind, value := range raw {
		switch ProofKind(kind) {
		case ProofHosting, ProofRedemption:
		default:
			return fmt.Errorf("proof of service: unknown variant %q", kind)
		}
		p.Kind = ProofKind(kind)

		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			p.Value = s
			return nil
		}
		var ints []int
		if err := json.Unmarshal(value, &ints); err != nil {
			return fmt.Errorf("proof of service %s: %w", kind, err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return fmt.Errorf("proof of service %s: byte %d out of range", kind, v)
			}
			b[i] = byte(v)
		}
		p.Value = base64.StdEncoding.EncodeToString(b)
	}
	return nil
}

// Transaction is a holofuel transaction as returned by the transactor zome.
type Transaction struct {
	ID              string               `json:"id"`
	Amount          string               `json:"amount"`
	Fee             string               `json:"fee"`
	CreatedDate     Timestamp            `json:"created_date"`
	CompletedDate   *Timestamp           `json:"completed_date"`
	TransactionType TransactionType      `json:"transaction_type"`
	Counterparty    string               `json:"counterparty"`
	Direction       TransactionDirection `json:"direction"`
	Status          TransactionStatus    `json:"status"`
	Note            *string              `json:"note"`
	ProofOfService  *ProofOfService      `json:"proof_of_service"`
	URL             *string              `json:"url"`
	ExpirationDate  *Timestamp           `json:"expiration_date"`
}

// IsHosting reports whether the transaction carries a hosting proof.
func (t Transaction) IsHosting() bool {
	return t.ProofOfService != nil && t.ProofOfService.Kind == ProofHosting
}

// IsRedemption reports whether the transaction carries a redemption proof.
func (t Transaction) IsRedemption() bool {
	return t.ProofOfService != nil && t.ProofOfService.Kind == ProofRedemption
}

// PendingTransactions is the response of transactor/get_pending_transactions.
type PendingTransactions struct {
	InvoicePending  []Transaction `json:"invoice_pending"`
	PromisePending  []Transaction `json:"promise_pending"`
	InvoiceDeclined []Transaction `json:"invoice_declined"`
	PromiseDeclined []Transaction `json:"promise_declined"`
	Accepted        []Transaction `json:"accepted"`
}

// All returns every transaction in the response.
func (p PendingTransactions) All() []Transaction {
	out := make([]Transaction, 0, len(p.InvoicePending)+len(p.PromisePending)+
		len(p.InvoiceDeclined)+len(p.PromiseDeclined)+len(p.Accepted))
	out = append(out, p.InvoicePending...)
	out = append(out, p.PromisePending...)
	out = append(out, p.InvoiceDeclined...)
	out = append(out, p.PromiseDeclined...)
	return append(out, p.Accepted...)
}

// ActionableTransactions is the response of transactor/get_actionable_transactions.
type ActionableTransactions struct {
	InvoiceActionable []Transaction `json:"invoice_actionable"`
	PromiseActionable []Transaction `json:"promise_actionable"`
}

// All returns every transaction in the response.
func (a ActionableTransactions) All() []Transaction {
	out := make([]Transaction, 0, len(a.InvoiceActionable)+len(a.PromiseActionable))
	out = append(out, a.InvoiceActionable...)
	return append(out, a.PromiseActionable...)
}

// RedemptionState is the response of transactor/get_redeemable.
type RedemptionState struct {
	Earnings  string `json:"earnings"`
	Redeemed  string `json:"redeemed"`
	Available string `json:"available"`
}
