package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saccochain/ledgersync/internal/store"
)

// historyWindow caps how many transactions feed one feature vector.
const historyWindow = 500

// BuildFeatures derives a member's feature vector from their transaction
// history. Pending transactions are excluded; failed loan repayments count
// as defaults.
func BuildFeatures(ctx context.Context, s store.Store, memberID uuid.UUID, now time.Time) (Features, error) {
	member, err := s.GetMember(ctx, memberID)
	if err != nil {
		return Features{}, fmt.Errorf("load member %s: %w", memberID, err)
	}

	txs, err := s.ListTransactionsByMember(ctx, memberID, historyWindow)
	if err != nil {
		return Features{}, fmt.Errorf("load transactions for %s: %w", memberID, err)
	}

	var (
		savingsCents   int64
		loanCents      int64
		loansTaken     int
		repaymentsMade int
		defaults       int
		completed      int
	)
	for _, tx := range txs {
		if tx.Status == store.TxPending {
			continue
		}
		if tx.Status == store.TxFailed {
			if tx.Type == store.TxRepayment {
				defaults++
			}
			continue
		}
		completed++
		switch tx.Type {
		case store.TxDeposit:
			savingsCents += tx.AmountCents
		case store.TxWithdrawal:
			savingsCents -= tx.AmountCents
		case store.TxLoan:
			loanCents += tx.AmountCents
			loansTaken++
		case store.TxRepayment:
			loanCents -= tx.AmountCents
			repaymentsMade++
		}
	}
	if loanCents < 0 {
		loanCents = 0
	}

	// Repayment history is the fraction of taken loans that have seen at
	// least one repayment. No loans means no negative signal.
	repaymentHistory := 1.0
	if loansTaken > 0 {
		repaymentHistory = float64(repaymentsMade) / float64(loansTaken)
		if repaymentHistory > 1 {
			repaymentHistory = 1
		}
	}

	ageMonths := int(now.Sub(member.CreatedAt).Hours() / (24 * 30))
	if ageMonths < 0 {
		ageMonths = 0
	}

	return Features{
		RepaymentHistory: repaymentHistory,
		SavingsBalance:   float64(savingsCents) / 100,
		LoanBalance:      float64(loanCents) / 100,
		TransactionCount: completed,
		AccountAgeMonths: ageMonths,
		DefaultCount:     defaults,
	}, nil
}
