// Package store is the off-chain relational view the event listener
// reconciles against the ledger. All mutations used by event handlers are
// idempotent match-then-update operations, since the same ledger event can
// be observed more than once across overlapping backfill and poll windows.
//
// Two implementations are provided: Memory for tests and single-process
// development, Postgres for production.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrHashConflict is returned when SetScoreHash would overwrite an already
// anchored hash with a different value.
var ErrHashConflict = errors.New("store: on-chain hash already set to a different value")

// Store is the narrow read/write surface the core consumes. The surrounding
// web application owns the rest of the schema.
type Store interface {
	// Members.
	CreateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	FindMemberByWallet(ctx context.Context, address string) (*Member, error)
	// FindMemberByWalletAndNationalID matches on the compound key used by
	// MemberRegistered events; the wallet address alone is not yet known
	// locally before first registration.
	FindMemberByWalletAndNationalID(ctx context.Context, address, nationalID string) (*Member, error)
	MarkMemberChainRegistered(ctx context.Context, id uuid.UUID, txDigest string) error

	// Saccos.
	CreateSacco(ctx context.Context, s *Sacco) error
	GetSacco(ctx context.Context, id uuid.UUID) (*Sacco, error)
	FindSaccoByLicense(ctx context.Context, licenseNo string) (*Sacco, error)
	MarkSaccoChainRegistered(ctx context.Context, id uuid.UUID, txDigest string) error

	// Credit scores.
	CreateScore(ctx context.Context, s *CreditScore) error
	GetScore(ctx context.Context, id uuid.UUID) (*CreditScore, error)
	ListScoresByMember(ctx context.Context, memberID uuid.UUID) ([]*CreditScore, error)
	// MarkScoresPendingVerification flags all of a member's unanchored
	// scores as pending. Returns the number of rows flagged; already
	// pending or anchored rows are untouched.
	MarkScoresPendingVerification(ctx context.Context, memberID uuid.UUID) (int, error)
	// SetScoreHash attaches the on-chain hash to a score. Setting the same
	// hash twice is a no-op; a different hash returns ErrHashConflict.
	SetScoreHash(ctx context.Context, id uuid.UUID, hash string) error

	// Transactions.
	CreateTransaction(ctx context.Context, t *Transaction) error
	ListTransactionsByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*Transaction, error)

	// Checkpoint. The listener's durable cursor: the digest of the last
	// fully processed ledger transaction. LoadCheckpoint returns "" when no
	// checkpoint has ever been saved.
	LoadCheckpoint(ctx context.Context) (string, error)
	SaveCheckpoint(ctx context.Context, digest string) error
}
