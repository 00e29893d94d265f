package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/saccochain/ledgersync/internal/commitment"
)

// Member is a SACCO member as held in the off-chain relational view.
// WalletAddress is the member's ledger address; it may be empty until the
// member first registers on chain.
type Member struct {
	ID              uuid.UUID
	Email           string
	Name            string
	NationalID      string
	WalletAddress   string
	SaccoID         string
	CurrentScore    int
	ChainRegistered bool
	ChainTxDigest   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Sacco is a registered savings cooperative. On-chain registration events
// carry the license number, so lookups key on LicenseNo.
type Sacco struct {
	ID              uuid.UUID
	SaccoID         string
	Name            string
	LicenseNo       string
	ChainRegistered bool
	ChainTxDigest   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AnchorState tracks a credit score's progress toward on-chain anchoring.
type AnchorState string

const (
	// AnchorNone: score exists locally only.
	AnchorNone AnchorState = "unanchored"
	// AnchorPending: a CreditScoreStored event was observed for the member
	// but the hash has not been independently verified yet.
	AnchorPending AnchorState = "pending_verification"
	// AnchorDone: OnChainHash is set and final.
	AnchorDone AnchorState = "anchored"
)

// CreditScore is one computed score for a member. OnChainHash, once set,
// is immutable; a conflicting write is a verification failure, never a
// silent overwrite.
type CreditScore struct {
	ID          uuid.UUID
	MemberID    uuid.UUID
	Score       int
	Risk        commitment.RiskLevel
	AnchorState AnchorState
	OnChainHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TxType classifies a financial transaction.
type TxType string

const (
	TxDeposit    TxType = "DEPOSIT"
	TxWithdrawal TxType = "WITHDRAWAL"
	TxLoan       TxType = "LOAN"
	TxRepayment  TxType = "REPAYMENT"
)

// TxStatus is a transaction's settlement status.
type TxStatus string

const (
	TxCompleted TxStatus = "COMPLETED"
	TxPending   TxStatus = "PENDING"
	TxFailed    TxStatus = "FAILED"
)

// Transaction is a member's financial transaction, consumed by the
// scoring feature builder.
type Transaction struct {
	ID          uuid.UUID
	MemberID    uuid.UUID
	Type        TxType
	Status      TxStatus
	AmountCents int64
	CreatedAt   time.Time
}
