package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind is the short tag of a ledger event, without the package and
// module prefix of the full on-chain type.
type EventKind string

const (
	EventCreditScoreStored    EventKind = "CreditScoreStored"
	EventLoanAgreementCreated EventKind = "LoanAgreementCreated"
	EventSaccoRegistered      EventKind = "SaccoRegistered"
	EventMemberRegistered     EventKind = "MemberRegistered"
)

// Event is a single event emitted by a finalized ledger transaction.
// Payload is kept raw; callers decode it per kind and must tolerate fields
// they do not know about.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"parsedJson"`
}

// Kind extracts the event tag from the fully qualified type
// ("0xPKG::sacco_registry::CreditScoreStored" -> "CreditScoreStored").
func (e Event) Kind() EventKind {
	idx := strings.LastIndex(e.Type, "::")
	if idx < 0 {
		return EventKind(e.Type)
	}
	return EventKind(e.Type[idx+2:])
}

// Payload shapes per event kind. Field sets are contract-defined; optional
// fields stay zero-valued when absent.

// CreditScoreStoredPayload announces that a score hash was anchored for a member.
type CreditScoreStoredPayload struct {
	MemberAddress string `json:"member_address"`
	SaccoID       string `json:"sacco_id,omitempty"`
	Score         int    `json:"score,omitempty"`
	RiskLevel     string `json:"risk_level,omitempty"`
}

// SaccoRegisteredPayload announces an on-chain SACCO registration.
// SaccoID carries the license number the SACCO registered under.
type SaccoRegisteredPayload struct {
	SaccoID string `json:"sacco_id"`
}

// MemberRegisteredPayload announces an on-chain member registration.
type MemberRegisteredPayload struct {
	MemberAddress string `json:"member_address"`
	NationalID    string `json:"national_id"`
}

// LoanAgreementCreatedPayload announces an on-chain loan agreement.
type LoanAgreementCreatedPayload struct {
	MemberAddress string `json:"member_address"`
	SaccoID       string `json:"sacco_id,omitempty"`
	AmountCents   int64  `json:"amount,omitempty"`
}

// TransactionSummary is one row of a transaction query page.
type TransactionSummary struct {
	Digest      string `json:"digest"`
	TimestampMs int64  `json:"timestampMs,omitempty"`
}

// Transaction is the full detail of a ledger transaction, including its
// decoded events. Ordering of Events is ledger-assigned.
type Transaction struct {
	Digest    string  `json:"digest"`
	Finalized bool    `json:"finalized"`
	Events    []Event `json:"events"`
}

// TransactionQuery selects transactions touching the configured package.
type TransactionQuery struct {
	Cursor     string // opaque continuation cursor; empty = from the start
	Descending bool   // newest-first when true
	Limit      int
}

// TransactionPage is one page of query results.
type TransactionPage struct {
	Data        []TransactionSummary `json:"data"`
	NextCursor  string               `json:"nextCursor"`
	HasNextPage bool                 `json:"hasNextPage"`
}

// HashRecord is a credit-score commitment as materialized on the ledger,
// read back via owned-object queries.
type HashRecord struct {
	ObjectID    string
	CreditScore int
	RiskLevel   string
	Timestamp   time.Time
	SaccoID     string
	ScoreHash   string // hex
}

// HashRecordPage is one page of owned HashRecords.
type HashRecordPage struct {
	Records     []HashRecord
	NextCursor  string
	HasNextPage bool
}

// LoanAgreement is an on-chain loan agreement object.
type LoanAgreement struct {
	ObjectID       string
	AmountCents    int64
	InterestBps    int
	DurationMonths int
	Status         string
	StartDate      time.Time
	SaccoID        string
}

// LoanAgreementPage is one page of owned LoanAgreements.
type LoanAgreementPage struct {
	Agreements  []LoanAgreement
	NextCursor  string
	HasNextPage bool
}

// NetworkInfo describes the node this client talks to. Health-check only.
type NetworkInfo struct {
	ChainID   string `json:"chainId"`
	GasPrice  uint64 `json:"gasPrice"`
	Network   string `json:"network"`
	PackageID string `json:"packageId"`
}

// byteSlice decodes a JSON byte vector that nodes render either as a base64
// string or as an array of numbers, depending on node version.
type byteSlice []byte

func (b *byteSlice) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("decode base64 byte vector: %w", err)
		}
		*b = raw
		return nil
	}

	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return fmt.Errorf("decode byte vector: %w", err)
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		out[i] = byte(n)
	}
	*b = out
	return nil
}
