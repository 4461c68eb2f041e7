package ledger

import (
	"context"
	"fmt"
	"time"
)

// HistogramDays is the number of days covered by RedeemableHistogram
const HistogramDays = 7

const dateLayout = "2006-01-02"

// DailyPaidUnpaid sums the host's outgoing hosting invoices of one UTC day
type DailyPaidUnpaid struct {
	Date   string `json:"date"`
	Paid   Fuel   `json:"paid"`
	Unpaid Fuel   `json:"unpaid"`
}

// RedeemableHistogram is the host console's earnings chart
type RedeemableHistogram struct {
	Dailies  []DailyPaidUnpaid `json:"dailies"`
	Redeemed Fuel              `json:"redeemed"`
}

// RedeemableHistogram returns the redeemable balance and, for today and the
// six days before it, the outgoing invoices paid that day (by completion
// date) and those still pending (by creation date). Days are oldest first.
func (l *Ledger) RedeemableHistogram(ctx context.Context) (RedeemableHistogram, error) {
	state, err := l.Redeemable(ctx)
	if err != nil {
		return RedeemableHistogram{}, err
	}
	available, err := ParseFuel(state.Available)
	if err != nil {
		return RedeemableHistogram{}, fmt.Errorf("redeemable holofuel: %w", err)
	}

	completed, err := l.Completed(ctx)
	if err != nil {
		return RedeemableHistogram{}, err
	}
	pending, err := l.Pending(ctx)
	if err != nil {
		return RedeemableHistogram{}, err
	}

	today := l.now().UTC().Truncate(24 * time.Hour)
	dailies := make([]DailyPaidUnpaid, HistogramDays)
	index := make(map[string]int, HistogramDays)
	for i := range dailies {
		date := today.AddDate(0, 0, i-(HistogramDays-1)).Format(dateLayout)
		dailies[i].Date = date
		index[date] = i
	}

	add := func(tx Transaction, at Timestamp, paid bool) {
		i, ok := index[at.Time().Format(dateLayout)]
		if !ok {
			return
		}
		amount, err := ParseFuel(tx.Amount)
		if err != nil {
			l.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Skipping transaction with unreadable amount")
			return
		}
		if paid {
			dailies[i].Paid = dailies[i].Paid.Add(amount)
		} else {
			dailies[i].Unpaid = dailies[i].Unpaid.Add(amount)
		}
	}

	for _, tx := range completed {
		if tx.Direction == DirectionOutgoing && tx.CompletedDate != nil {
			add(tx, *tx.CompletedDate, true)
		}
	}
	for _, tx := range pending.InvoicePending {
		if tx.Direction == DirectionOutgoing {
			add(tx, tx.CreatedDate, false)
		}
	}

	return RedeemableHistogram{Dailies: dailies, Redeemed: available}, nil
}
