package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/saccochain/ledgersync/internal/ledger"
	"github.com/saccochain/ledgersync/internal/store"
	"go.uber.org/zap"
)

// handleEvent routes one decoded ledger event to its handler. Unknown tags
// are logged and ignored; they are never fatal.
func (l *Listener) handleEvent(ctx context.Context, ev ledger.Event, txDigest string) error {
	switch ev.Kind() {
	case ledger.EventCreditScoreStored:
		return l.handleCreditScoreStored(ctx, ev)
	case ledger.EventSaccoRegistered:
		return l.handleSaccoRegistered(ctx, ev, txDigest)
	case ledger.EventMemberRegistered:
		return l.handleMemberRegistered(ctx, ev, txDigest)
	case ledger.EventLoanAgreementCreated:
		return l.handleLoanAgreementCreated(ev)
	default:
		l.logger.Info("unhandled event type", zap.String("type", ev.Type))
		return nil
	}
}

// handleCreditScoreStored flags the member's unanchored scores as pending
// verification. The event is a liveness signal, not the source of truth:
// verification independently recomputes the commitment and re-reads the
// ledger, so the hash value is deliberately not taken from the payload.
func (l *Listener) handleCreditScoreStored(ctx context.Context, ev ledger.Event) error {
	var p ledger.CreditScoreStoredPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("decode CreditScoreStored payload: %w", err)
	}

	member, err := l.stor.FindMemberByWallet(ctx, p.MemberAddress)
	if errors.Is(err, store.ErrNotFound) {
		// Not an error: scores can be anchored for members this deployment
		// does not track.
		l.logger.Info("credit score event for unknown member",
			zap.String("member_address", p.MemberAddress))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find member %s: %w", p.MemberAddress, err)
	}

	n, err := l.stor.MarkScoresPendingVerification(ctx, member.ID)
	if err != nil {
		return fmt.Errorf("mark scores pending for member %s: %w", member.ID, err)
	}
	l.logger.Info("credit score anchored on ledger",
		zap.String("member_address", p.MemberAddress),
		zap.Int("scores_flagged", n),
	)
	return nil
}

// handleSaccoRegistered marks the matching local SACCO as ledger-registered,
// storing the transaction digest as proof. Registration events carry the
// license number in sacco_id.
func (l *Listener) handleSaccoRegistered(ctx context.Context, ev ledger.Event, txDigest string) error {
	var p ledger.SaccoRegisteredPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("decode SaccoRegistered payload: %w", err)
	}

	sacco, err := l.stor.FindSaccoByLicense(ctx, p.SaccoID)
	if errors.Is(err, store.ErrNotFound) {
		l.logger.Info("registration event for unknown sacco",
			zap.String("sacco_id", p.SaccoID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find sacco %s: %w", p.SaccoID, err)
	}

	if err := l.stor.MarkSaccoChainRegistered(ctx, sacco.ID, txDigest); err != nil {
		return fmt.Errorf("mark sacco registered: %w", err)
	}
	l.logger.Info("sacco registration confirmed on ledger",
		zap.String("sacco", sacco.Name),
		zap.String("digest", txDigest),
	)
	return nil
}

// handleMemberRegistered marks the matching local member as
// ledger-registered, matching on (wallet address, national id): the address
// alone is not yet known locally before first registration.
func (l *Listener) handleMemberRegistered(ctx context.Context, ev ledger.Event, txDigest string) error {
	var p ledger.MemberRegisteredPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("decode MemberRegistered payload: %w", err)
	}

	member, err := l.stor.FindMemberByWalletAndNationalID(ctx, p.MemberAddress, p.NationalID)
	if errors.Is(err, store.ErrNotFound) {
		l.logger.Info("registration event for unknown member",
			zap.String("member_address", p.MemberAddress))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find member %s: %w", p.MemberAddress, err)
	}

	if err := l.stor.MarkMemberChainRegistered(ctx, member.ID, txDigest); err != nil {
		return fmt.Errorf("mark member registered: %w", err)
	}
	l.logger.Info("member registration confirmed on ledger",
		zap.String("member_address", p.MemberAddress),
		zap.String("digest", txDigest),
	)
	return nil
}

// handleLoanAgreementCreated is bookkeeping only. Cross-referencing with a
// pending loan application is an extension point, not implemented.
func (l *Listener) handleLoanAgreementCreated(ev ledger.Event) error {
	var p ledger.LoanAgreementCreatedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("decode LoanAgreementCreated payload: %w", err)
	}
	l.logger.Info("loan agreement created on ledger",
		zap.String("member_address", p.MemberAddress),
		zap.String("sacco_id", p.SaccoID),
	)
	return nil
}
