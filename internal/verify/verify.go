// Package verify answers whether a credit-score hash is present on the
// ledger and attributable to a member address. It never trusts event
// payloads or local flags: every check re-reads the ledger and, when a local
// record is given, recomputes the commitment first.
package verify

import (
	"context"
	"strings"

	"github.com/saccochain/ledgersync/internal/commitment"
	"github.com/saccochain/ledgersync/internal/ledger"
	"go.uber.org/zap"
)

// recordReader is the ledger surface the verifier needs.
type recordReader interface {
	GetHashRecords(ctx context.Context, owner, cursor string) (ledger.HashRecordPage, error)
}

// Result is the outcome of a verification. Absence of a match is a normal
// outcome, not an error.
type Result struct {
	Verified bool               `json:"verified"`
	Record   *ledger.HashRecord `json:"record,omitempty"`
}

// Service verifies score commitments against the ledger.
type Service struct {
	reader recordReader
	logger *zap.Logger
}

// New creates a verification Service.
func New(reader recordReader, logger *zap.Logger) *Service {
	return &Service{reader: reader, logger: logger}
}

// Verify scans every HashRecord owned by address for one whose scoreHash
// equals expectedHash (case-insensitive hex). A member accumulates many
// records over time, so the scan pages to exhaustion rather than assuming
// uniqueness or a single page. Transport failures propagate.
func (s *Service) Verify(ctx context.Context, address, expectedHash string) (Result, error) {
	cursor := ""
	for {
		page, err := s.reader.GetHashRecords(ctx, address, cursor)
		if err != nil {
			return Result{}, err
		}

		for i := range page.Records {
			if strings.EqualFold(page.Records[i].ScoreHash, expectedHash) {
				s.logger.Info("credit score verified on ledger",
					zap.String("address", address),
					zap.String("object_id", page.Records[i].ObjectID),
				)
				return Result{Verified: true, Record: &page.Records[i]}, nil
			}
		}

		if !page.HasNextPage || page.NextCursor == "" {
			return Result{Verified: false}, nil
		}
		cursor = page.NextCursor
	}
}

// VerifyRecord recomputes the commitment for a score record and checks the
// ledger for it. This is the end-to-end path: it does not compare against
// any hash the local store may have cached.
func (s *Service) VerifyRecord(ctx context.Context, address string, rec commitment.ScoreRecord) (Result, error) {
	expected, err := commitment.ScoreHash(rec)
	if err != nil {
		return Result{}, err
	}
	return s.Verify(ctx, address, expected)
}
