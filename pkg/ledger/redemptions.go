package ledger

import (
	"context"
	"fmt"
)

// ProcessingStage is the HBS pipeline stage of a redemption
type ProcessingStage string

const (
	StageInvalid                    ProcessingStage = "invalid"
	StageNew                        ProcessingStage = "new"
	StageVerified                   ProcessingStage = "verified"
	StageSentHolofuel               ProcessingStage = "sentHolofuel"
	StageAcceptedHolofuel           ProcessingStage = "acceptedHolofuel"
	StageScheduledForCountersigning ProcessingStage = "scheduledForCountersigning"
	StageCountersignedHolofuel      ProcessingStage = "countersignedHolofuel"
	StageFinished                   ProcessingStage = "finished"
)

// StatusHfTransferred marks a completed redemption whose payout HBS has not finished
const StatusHfTransferred TransactionStatus = "HfTransferred"

// RedemptionRecord is HBS's view of one redemption
type RedemptionRecord struct {
	RedemptionID            string          `json:"redemptionId"`
	HolofuelAcceptanceHash  string          `json:"holofuelAcceptanceHash"`
	EthereumTransactionHash string          `json:"ethereumTransactionHash"`
	ProcessingStage         ProcessingStage `json:"processingStage"`
}

// RecordSource looks up redemption records by redemption transaction id
type RecordSource interface {
	RedemptionRecords(ctx context.Context, ids []string) ([]RedemptionRecord, error)
}

// TransactionWithRedemption is a redemption transaction joined with its HBS record
type TransactionWithRedemption struct {
	Transaction
	HolofuelAcceptanceHash  *string `json:"holofuel_acceptance_hash"`
	EthereumTransactionHash *string `json:"ethereum_transaction_hash"`
}

// Redemptions groups the host's redemption transactions by lifecycle stage
type Redemptions struct {
	Pending   []Transaction               `json:"pending"`
	Declined  []Transaction               `json:"declined"`
	Accepted  []Transaction               `json:"accepted"`
	Completed []TransactionWithRedemption `json:"completed"`
}

// Redemptions returns the host's redemption transactions. Completed ones are
// joined with their HBS record; until HBS reports them finished their status is
// StatusHfTransferred.
func (l *Ledger) Redemptions(ctx context.Context, records RecordSource) (Redemptions, error) {
	completed, err := l.Completed(ctx)
	if err != nil {
		return Redemptions{}, err
	}
	completed = filterRedemption(completed)

	ids := make([]string, 0, len(completed))
	for _, tx := range completed {
		ids = append(ids, tx.ID)
	}

	byID := make(map[string]RedemptionRecord)
	if len(ids) > 0 {
		found, err := records.RedemptionRecords(ctx, ids)
		if err != nil {
			return Redemptions{}, fmt.Errorf("failed to get redemption records: %w", err)
		}
		for _, r := range found {
			byID[r.RedemptionID] = r
		}
	}

	out := Redemptions{Completed: make([]TransactionWithRedemption, 0, len(completed))}
	for _, tx := range completed {
		joined := TransactionWithRedemption{Transaction: tx}
		if rec, ok := byID[tx.ID]; ok {
			acceptance, eth := rec.HolofuelAcceptanceHash, rec.EthereumTransactionHash
			joined.HolofuelAcceptanceHash = &acceptance
			joined.EthereumTransactionHash = &eth
			if rec.ProcessingStage != StageFinished {
				joined.Status = StatusHfTransferred
			}
		}
		out.Completed = append(out.Completed, joined)
	}

	pending, err := l.Pending(ctx)
	if err != nil {
		return Redemptions{}, err
	}
	out.Pending = filterRedemption(pending.PromisePending)
	out.Declined = filterRedemption(pending.PromiseDeclined)
	out.Accepted = filterRedemption(pending.Accepted)

	return out, nil
}

func filterRedemption(txs []Transaction) []Transaction {
	out := []Transaction{}
	for _, tx := range txs {
		if tx.IsRedemption() {
			out = append(out, tx)
		}
	}
	return out
}
