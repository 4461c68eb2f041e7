package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/types"
)

const transactorZome = "transactor"

// Transactor zome functions
const (
	FnGetPending    = "get_pending_transactions"
	FnGetActionable = "get_actionable_transactions"
	FnGetCompleted  = "get_completed_transactions"
	FnGetRedeemable = "get_redeemable"
)

// ZomeCaller performs zome calls against the conductor
type ZomeCaller interface {
	CallZome(ctx context.Context, call types.ZomeCall, out interface{}) error
}

// Ledger reads the host's holofuel ledger through the core app
type Ledger struct {
	caller    ZomeCaller
	coreAppID string
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Ledger reading from the holofuel role of coreAppID
func New(caller ZomeCaller, coreAppID string) *Ledger {
	return &Ledger{
		caller:    caller,
		coreAppID: coreAppID,
		logger:    log.WithComponent("ledger"),
		now:       time.Now,
	}
}

func (l *Ledger) call(ctx context.Context, fn string, out interface{}) error {
	return l.caller.CallZome(ctx, types.ZomeCall{
		AppID:    l.coreAppID,
		RoleName: types.RoleHolofuel,
		ZomeName: transactorZome,
		FnName:   fn,
	}, out)
}

// Pending returns the host's pending transactions
func (l *Ledger) Pending(ctx context.Context) (PendingTransactions, error) {
	var resp PendingTransactions
	if err := l.call(ctx, FnGetPending, &resp); err != nil {
		return PendingTransactions{}, fmt.Errorf("failed to get pending transactions: %w", err)
	}
	return resp, nil
}

// Actionable returns transactions waiting on the host
func (l *Ledger) Actionable(ctx context.Context) (ActionableTransactions, error) {
	var resp ActionableTransactions
	if err := l.call(ctx, FnGetActionable, &resp); err != nil {
		return ActionableTransactions{}, fmt.Errorf("failed to get actionable transactions: %w", err)
	}
	return resp, nil
}

// Completed returns completed transactions
func (l *Ledger) Completed(ctx context.Context) ([]Transaction, error) {
	var resp []Transaction
	if err := l.call(ctx, FnGetCompleted, &resp); err != nil {
		return nil, fmt.Errorf("failed to get completed transactions: %w", err)
	}
	return resp, nil
}

// Redeemable returns the host's redeemable balance
func (l *Ledger) Redeemable(ctx context.Context) (RedemptionState, error) {
	var resp RedemptionState
	if err := l.call(ctx, FnGetRedeemable, &resp); err != nil {
		return RedemptionState{}, fmt.Errorf("failed to get redeemable holofuel: %w", err)
	}
	return resp, nil
}

// PendingSecrets returns the proof-of-service secrets of every outstanding
// hosting invoice: pending, declined and actionable invoices with a hosting
// proof. Redemption proofs and promises never contribute.
func (l *Ledger) PendingSecrets(ctx context.Context) (SecretSet, error) {
	pending, err := l.Pending(ctx)
	if err != nil {
		return nil, err
	}
	actionable, err := l.Actionable(ctx)
	if err != nil {
		return nil, err
	}

	secrets := make(SecretSet)
	for _, group := range [][]Transaction{pending.InvoicePending, pending.InvoiceDeclined, actionable.InvoiceActionable} {
		for _, tx := range group {
			if tx.IsHosting() {
				secrets.Add(Secret(tx.ProofOfService.Value))
			}
		}
	}

	l.logger.Debug().Int("count", len(secrets)).Msg("Collected pending hosting secrets")
	return secrets, nil
}

// HostingByHapp groups completed hosting invoices by the hha id in their note.
// Transactions without a parseable hosting note are skipped.
func (l *Ledger) HostingByHapp(ctx context.Context) (map[string][]Transaction, error) {
	completed, err := l.Completed(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Transaction)
	for _, tx := range completed {
		if !tx.IsHosting() || tx.Note == nil {
			continue
		}
		note, err := ParseNote(*tx.Note)
		if err != nil {
			continue
		}
		out[note.Invoice.HHAID] = append(out[note.Invoice.HHAID], tx)
	}
	return out, nil
}

// InvoiceSet selects which hosting invoices to return
type InvoiceSet string

const (
	InvoiceSetAll    InvoiceSet = "all"
	InvoiceSetPaid   InvoiceSet = "paid"
	InvoiceSetUnpaid InvoiceSet = "unpaid"
)

// ParseInvoiceSet validates an invoice_set query value. Empty means all.
func ParseInvoiceSet(s string) (InvoiceSet, error) {
	switch InvoiceSet(s) {
	case "", InvoiceSetAll:
		return InvoiceSetAll, nil
	case InvoiceSetPaid, InvoiceSetUnpaid:
		return InvoiceSet(s), nil
	}
	return "", fmt.Errorf("invalid invoice_set %q: must be all, paid or unpaid", s)
}

func (s InvoiceSet) includesPaid() bool   { return s != InvoiceSetUnpaid }
func (s InvoiceSet) includesUnpaid() bool { return s != InvoiceSetPaid }

// QuantityAndPrice is one invoiced resource line
type QuantityAndPrice struct {
	Quantity uint64 `json:"quantity"`
	Price    string `json:"price"`
}

// InvoiceDetails is the decoded invoice period and line items
type InvoiceDetails struct {
	Start     Timestamp        `json:"start"`
	End       Timestamp        `json:"end"`
	Bandwidth QuantityAndPrice `json:"bandwidth"`
	Compute   QuantityAndPrice `json:"compute"`
	Storage   QuantityAndPrice `json:"storage"`
}

// HappNameAndID identifies the hosted happ an invoice is for
type HappNameAndID struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// InvoiceDetail is a hosting invoice joined with its decoded note
type InvoiceDetail struct {
	ID             string               `json:"id"`
	Amount         string               `json:"amount"`
	Status         TransactionStatus    `json:"status"`
	Type           TransactionType      `json:"type"`
	Direction      TransactionDirection `json:"direction"`
	CreatedDate    Timestamp            `json:"createdDate"`
	CompletedDate  *Timestamp           `json:"completedDate"`
	ExpirationDate *Timestamp           `json:"expirationDate"`
	Counterparty   string               `json:"counterparty"`
	Note           string               `json:"note"`
	ProofOfService *ProofOfService      `json:"proofOfService"`
	URL            *string              `json:"url"`
	Happ           HappNameAndID        `json:"happ"`
	InvoiceDetails InvoiceDetails       `json:"invoiceDetails"`
}

// HostingInvoices returns paid (completed) and unpaid (pending or actionable)
// hosting invoices with decoded notes, ordered by completion date.
func (l *Ledger) HostingInvoices(ctx context.Context, set InvoiceSet) ([]InvoiceDetail, error) {
	var txs []Transaction

	if set.includesPaid() {
		completed, err := l.Completed(ctx)
		if err != nil {
			return nil, err
		}
		txs = append(txs, filterHosting(completed)...)
	}

	if set.includesUnpaid() {
		pending, err := l.Pending(ctx)
		if err != nil {
			return nil, err
		}
		actionable, err := l.Actionable(ctx)
		if err != nil {
			return nil, err
		}
		txs = append(txs, filterHosting(pending.All())...)
		txs = append(txs, filterHosting(actionable.All())...)
	}

	details := make([]InvoiceDetail, 0, len(txs))
	for _, tx := range txs {
		d, err := invoiceDetail(tx)
		if err != nil {
			if !errors.Is(err, ErrNotHostingNote) {
				l.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Skipping invoice with unreadable note")
			}
			continue
		}
		details = append(details, d)
	}

	sort.SliceStable(details, func(i, j int) bool {
		return completedBefore(details[i].CompletedDate, details[j].CompletedDate)
	})
	return details, nil
}

// unpaid invoices sort first
func completedBefore(a, b *Timestamp) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

func filterHosting(txs []Transaction) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.IsHosting() {
			out = append(out, tx)
		}
	}
	return out
}

func invoiceDetail(tx Transaction) (InvoiceDetail, error) {
	if tx.Note == nil {
		return InvoiceDetail{}, ErrNotHostingNote
	}
	note, err := ParseNote(*tx.Note)
	if err != nil {
		return InvoiceDetail{}, err
	}
	usage, prices, err := note.Items()
	if err != nil {
		return InvoiceDetail{}, err
	}

	return InvoiceDetail{
		ID:             tx.ID,
		Amount:         tx.Amount,
		Status:         tx.Status,
		Type:           tx.TransactionType,
		Direction:      tx.Direction,
		CreatedDate:    tx.CreatedDate,
		CompletedDate:  tx.CompletedDate,
		ExpirationDate: tx.ExpirationDate,
		Counterparty:   tx.Counterparty,
		Note:           note.Text,
		ProofOfService: tx.ProofOfService,
		URL:            tx.URL,
		Happ: HappNameAndID{
			Name: note.HappName(),
			ID:   note.Invoice.HHAID,
		},
		InvoiceDetails: InvoiceDetails{
			Start:     note.Invoice.InvoicePeriodStart,
			End:       note.Invoice.InvoicePeriodEnd,
			Bandwidth: QuantityAndPrice{Quantity: usage.Bandwidth, Price: prices.Bandwidth},
			Compute:   QuantityAndPrice{Quantity: usage.CPU, Price: prices.CPU},
			Storage:   QuantityAndPrice{Quantity: usage.Storage, Price: prices.Storage},
		},
	}, nil
}
