package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production Store implementation backed by a pgx pool.
// Schema lives in migrations/.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a Postgres store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// ── Members ──────────────────────────────────────────────────────────────────

const memberColumns = `id, email, name, national_id, wallet_address, sacco_id,
	current_score, chain_registered, chain_tx_digest, created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	m := &Member{}
	err := row.Scan(
		&m.ID, &m.Email, &m.Name, &m.NationalID, &m.WalletAddress, &m.SaccoID,
		&m.CurrentScore, &m.ChainRegistered, &m.ChainTxDigest, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return m, nil
}

// CreateMember implements Store.
func (p *Postgres) CreateMember(ctx context.Context, m *Member) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := p.db.Exec(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.Email, m.Name, m.NationalID, m.WalletAddress, m.SaccoID,
		m.CurrentScore, m.ChainRegistered, m.ChainTxDigest, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// GetMember implements Store.
func (p *Postgres) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	return scanMember(p.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

// FindMemberByWallet implements Store.
func (p *Postgres) FindMemberByWallet(ctx context.Context, address string) (*Member, error) {
	return scanMember(p.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE wallet_address = $1`, address))
}

// FindMemberByWalletAndNationalID implements Store.
func (p *Postgres) FindMemberByWalletAndNationalID(ctx context.Context, address, nationalID string) (*Member, error) {
	return scanMember(p.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE wallet_address = $1 AND national_id = $2`, address, nationalID))
}

// MarkMemberChainRegistered implements Store. Idempotent.
func (p *Postgres) MarkMemberChainRegistered(ctx context.Context, id uuid.UUID, txDigest string) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE members
		SET chain_registered = TRUE, chain_tx_digest = $2, updated_at = $3
		WHERE id = $1`,
		id, txDigest, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark member registered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Saccos ───────────────────────────────────────────────────────────────────

const saccoColumns = `id, sacco_id, name, license_no, chain_registered,
	chain_tx_digest, created_at, updated_at`

func scanSacco(row pgx.Row) (*Sacco, error) {
	s := &Sacco{}
	err := row.Scan(
		&s.ID, &s.SaccoID, &s.Name, &s.LicenseNo, &s.ChainRegistered,
		&s.ChainTxDigest, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sacco: %w", err)
	}
	return s, nil
}

// CreateSacco implements Store.
func (p *Postgres) CreateSacco(ctx context.Context, s *Sacco) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := p.db.Exec(ctx, `
		INSERT INTO saccos (`+saccoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.SaccoID, s.Name, s.LicenseNo, s.ChainRegistered,
		s.ChainTxDigest, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sacco: %w", err)
	}
	return nil
}

// GetSacco implements Store.
func (p *Postgres) GetSacco(ctx context.Context, id uuid.UUID) (*Sacco, error) {
	return scanSacco(p.db.QueryRow(ctx,
		`SELECT `+saccoColumns+` FROM saccos WHERE id = $1`, id))
}

// FindSaccoByLicense implements Store.
func (p *Postgres) FindSaccoByLicense(ctx context.Context, licenseNo string) (*Sacco, error) {
	return scanSacco(p.db.QueryRow(ctx,
		`SELECT `+saccoColumns+` FROM saccos WHERE license_no = $1`, licenseNo))
}

// MarkSaccoChainRegistered implements Store. Idempotent.
func (p *Postgres) MarkSaccoChainRegistered(ctx context.Context, id uuid.UUID, txDigest string) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE saccos
		SET chain_registered = TRUE, chain_tx_digest = $2, updated_at = $3
		WHERE id = $1`,
		id, txDigest, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark sacco registered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Credit scores ────────────────────────────────────────────────────────────

const scoreColumns = `id, member_id, score, risk_level, anchor_state,
	on_chain_hash, created_at, updated_at`

func scanScore(row pgx.Row) (*CreditScore, error) {
	s := &CreditScore{}
	err := row.Scan(
		&s.ID, &s.MemberID, &s.Score, &s.Risk, &s.AnchorState,
		&s.OnChainHash, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan credit score: %w", err)
	}
	return s, nil
}

// CreateScore implements Store.
func (p *Postgres) CreateScore(ctx context.Context, s *CreditScore) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.AnchorState == "" {
		s.AnchorState = AnchorNone
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := p.db.Exec(ctx, `
		INSERT INTO credit_scores (`+scoreColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.MemberID, s.Score, s.Risk, s.AnchorState,
		s.OnChainHash, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credit score: %w", err)
	}
	return nil
}

// GetScore implements Store.
func (p *Postgres) GetScore(ctx context.Context, id uuid.UUID) (*CreditScore, error) {
	return scanScore(p.db.QueryRow(ctx,
		`SELECT `+scoreColumns+` FROM credit_scores WHERE id = $1`, id))
}

// ListScoresByMember implements Store.
func (p *Postgres) ListScoresByMember(ctx context.Context, memberID uuid.UUID) ([]*CreditScore, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+scoreColumns+` FROM credit_scores
		WHERE member_id = $1
		ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list credit scores: %w", err)
	}
	defer rows.Close()

	var out []*CreditScore
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkScoresPendingVerification implements Store.
func (p *Postgres) MarkScoresPendingVerification(ctx context.Context, memberID uuid.UUID) (int, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE credit_scores
		SET anchor_state = $3, updated_at = $4
		WHERE member_id = $1 AND anchor_state = $2`,
		memberID, AnchorNone, AnchorPending, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark scores pending: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SetScoreHash implements Store.
func (p *Postgres) SetScoreHash(ctx context.Context, id uuid.UUID, hash string) error {
	s, err := p.GetScore(ctx, id)
	if err != nil {
		return err
	}
	if s.AnchorState == AnchorDone {
		if s.OnChainHash != hash {
			return ErrHashConflict
		}
		return nil
	}

	_, err = p.db.Exec(ctx, `
		UPDATE credit_scores
		SET on_chain_hash = $2, anchor_state = $3, updated_at = $4
		WHERE id = $1`,
		id, hash, AnchorDone, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set score hash: %w", err)
	}
	return nil
}

// ── Transactions ─────────────────────────────────────────────────────────────

// CreateTransaction implements Store.
func (p *Postgres) CreateTransaction(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := p.db.Exec(ctx, `
		INSERT INTO transactions (id, member_id, type, status, amount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.MemberID, t.Type, t.Status, t.AmountCents, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListTransactionsByMember implements Store.
func (p *Postgres) ListTransactionsByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.Query(ctx, `
		SELECT id, member_id, type, status, amount_cents, created_at
		FROM transactions
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t := &Transaction{}
		if err := rows.Scan(&t.ID, &t.MemberID, &t.Type, &t.Status, &t.AmountCents, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── Checkpoint ───────────────────────────────────────────────────────────────

// LoadCheckpoint implements Store. The table holds at most one row.
func (p *Postgres) LoadCheckpoint(ctx context.Context) (string, error) {
	var digest string
	err := p.db.QueryRow(ctx,
		`SELECT digest FROM ledger_checkpoint WHERE id = TRUE`).Scan(&digest)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
	return digest, nil
}

// SaveCheckpoint implements Store.
func (p *Postgres) SaveCheckpoint(ctx context.Context, digest string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO ledger_checkpoint (id, digest, updated_at)
		VALUES (TRUE, $1, $2)
		ON CONFLICT (id) DO UPDATE SET digest = $1, updated_at = $2`,
		digest, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
