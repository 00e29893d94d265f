// Package commitment derives the content hashes that anchor off-chain records
// to the ledger. The serialization order of the hashed fields is part of the
// wire contract: every hash stored on chain was computed over exactly this
// byte layout, so changing field order or formatting invalidates all
// previously committed hashes.
package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord is returned when a record is missing a required field.
// Hashing partial data would produce a digest that can never verify, so the
// caller gets an error instead.
var ErrInvalidRecord = errors.New("commitment: record is missing required fields")

// isoMillis matches JavaScript's Date.toISOString(), which the on-chain
// records were originally committed with. Timestamps are always UTC.
const isoMillis = "2006-01-02T15:04:05.000Z"

// RiskLevel classifies a credit score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ScoreRecord is the canonical input to a credit-score commitment.
type ScoreRecord struct {
	Score      int
	Risk       RiskLevel
	SubjectID  string
	SaccoID    string
	ComputedAt time.Time
}

// scorePayload fixes the JSON key order of the hashed serialization.
// Field order here is load-bearing; see package comment.
type scorePayload struct {
	Score      int    `json:"score"`
	RiskLevel  string `json:"risk_level"`
	SubjectID  string `json:"subject_id"`
	SaccoID    string `json:"sacco_id"`
	ComputedAt string `json:"computed_at"`
}

// ScoreHash returns the hex-encoded SHA-256 commitment for a credit-score
// record. Two calls with equal field values produce identical digests.
func ScoreHash(r ScoreRecord) (string, error) {
	if r.SubjectID == "" || r.SaccoID == "" || r.ComputedAt.IsZero() {
		return "", ErrInvalidRecord
	}
	if !r.Risk.Valid() {
		return "", fmt.Errorf("%w: unknown risk level %q", ErrInvalidRecord, r.Risk)
	}

	payload := scorePayload{
		Score:      r.Score,
		RiskLevel:  string(r.Risk),
		SubjectID:  r.SubjectID,
		SaccoID:    r.SaccoID,
		ComputedAt: r.ComputedAt.UTC().Format(isoMillis),
	}
	return hashJSON(payload)
}

// LoanTerms is the canonical input to a loan-agreement commitment.
// Monetary amounts are in cents and rates in basis points so the hash never
// depends on floating-point formatting.
type LoanTerms struct {
	LoanID         string
	SubjectID      string
	SaccoID        string
	AmountCents    int64
	InterestBps    int
	DurationMonths int
	CreatedAt      time.Time
}

type loanPayload struct {
	LoanID         string `json:"loan_id"`
	SubjectID      string `json:"subject_id"`
	SaccoID        string `json:"sacco_id"`
	AmountCents    int64  `json:"amount_cents"`
	InterestBps    int    `json:"interest_bps"`
	DurationMonths int    `json:"duration_months"`
	CreatedAt      string `json:"created_at"`
}

// LoanHash returns the hex-encoded SHA-256 commitment for loan terms.
func LoanHash(t LoanTerms) (string, error) {
	if t.LoanID == "" || t.SubjectID == "" || t.SaccoID == "" || t.CreatedAt.IsZero() {
		return "", ErrInvalidRecord
	}
	if t.AmountCents <= 0 || t.DurationMonths <= 0 {
		return "", fmt.Errorf("%w: amount and duration must be positive", ErrInvalidRecord)
	}

	payload := loanPayload{
		LoanID:         t.LoanID,
		SubjectID:      t.SubjectID,
		SaccoID:        t.SaccoID,
		AmountCents:    t.AmountCents,
		InterestBps:    t.InterestBps,
		DurationMonths: t.DurationMonths,
		CreatedAt:      t.CreatedAt.UTC().Format(isoMillis),
	}
	return hashJSON(payload)
}

// hashJSON marshals payload and returns the hex SHA-256 of the JSON bytes.
// encoding/json emits struct fields in declaration order, which is what makes
// the serialization deterministic.
func hashJSON(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal commitment payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
