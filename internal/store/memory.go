package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory, thread-safe Store implementation.
type Memory struct {
	mu           sync.RWMutex
	members      map[uuid.UUID]*Member
	saccos       map[uuid.UUID]*Sacco
	scores       map[uuid.UUID]*CreditScore
	transactions map[uuid.UUID]*Transaction
	checkpoint   string
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		members:      make(map[uuid.UUID]*Member),
		saccos:       make(map[uuid.UUID]*Sacco),
		scores:       make(map[uuid.UUID]*CreditScore),
		transactions: make(map[uuid.UUID]*Transaction),
	}
}

// ── Members ──────────────────────────────────────────────────────────────────

// CreateMember implements Store.
func (m *Memory) CreateMember(_ context.Context, mem *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	now := time.Now().UTC()
	mem.CreatedAt = now
	mem.UpdatedAt = now
	cp := *mem
	m.members[mem.ID] = &cp
	return nil
}

// GetMember implements Store.
func (m *Memory) GetMember(_ context.Context, id uuid.UUID) (*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

// FindMemberByWallet implements Store.
func (m *Memory) FindMemberByWallet(_ context.Context, address string) (*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mem := range m.members {
		if mem.WalletAddress == address {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// FindMemberByWalletAndNationalID implements Store.
func (m *Memory) FindMemberByWalletAndNationalID(_ context.Context, address, nationalID string) (*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mem := range m.members {
		if mem.WalletAddress == address && mem.NationalID == nationalID {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// MarkMemberChainRegistered implements Store.
func (m *Memory) MarkMemberChainRegistered(_ context.Context, id uuid.UUID, txDigest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return ErrNotFound
	}
	mem.ChainRegistered = true
	mem.ChainTxDigest = txDigest
	mem.UpdatedAt = time.Now().UTC()
	return nil
}

// ── Saccos ───────────────────────────────────────────────────────────────────

// CreateSacco implements Store.
func (m *Memory) CreateSacco(_ context.Context, s *Sacco) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	m.saccos[s.ID] = &cp
	return nil
}

// GetSacco implements Store.
func (m *Memory) GetSacco(_ context.Context, id uuid.UUID) (*Sacco, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.saccos[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// FindSaccoByLicense implements Store.
func (m *Memory) FindSaccoByLicense(_ context.Context, licenseNo string) (*Sacco, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.saccos {
		if s.LicenseNo == licenseNo {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// MarkSaccoChainRegistered implements Store.
func (m *Memory) MarkSaccoChainRegistered(_ context.Context, id uuid.UUID, txDigest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saccos[id]
	if !ok {
		return ErrNotFound
	}
	s.ChainRegistered = true
	s.ChainTxDigest = txDigest
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ── Credit scores ────────────────────────────────────────────────────────────

// CreateScore implements Store.
func (m *Memory) CreateScore(_ context.Context, s *CreditScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.AnchorState == "" {
		s.AnchorState = AnchorNone
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	m.scores[s.ID] = &cp
	return nil
}

// GetScore implements Store.
func (m *Memory) GetScore(_ context.Context, id uuid.UUID) (*CreditScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// ListScoresByMember implements Store. Newest first.
func (m *Memory) ListScoresByMember(_ context.Context, memberID uuid.UUID) ([]*CreditScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*CreditScore
	for _, s := range m.scores {
		if s.MemberID == memberID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkScoresPendingVerification implements Store.
func (m *Memory) MarkScoresPendingVerification(_ context.Context, memberID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.scores {
		if s.MemberID == memberID && s.AnchorState == AnchorNone {
			s.AnchorState = AnchorPending
			s.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// SetScoreHash implements Store.
func (m *Memory) SetScoreHash(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[id]
	if !ok {
		return ErrNotFound
	}
	if s.AnchorState == AnchorDone {
		if s.OnChainHash != hash {
			return ErrHashConflict
		}
		return nil
	}
	s.OnChainHash = hash
	s.AnchorState = AnchorDone
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ── Transactions ─────────────────────────────────────────────────────────────

// CreateTransaction implements Store.
func (m *Memory) CreateTransaction(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	m.transactions[t.ID] = &cp
	return nil
}

// ListTransactionsByMember implements Store. Newest first.
func (m *Memory) ListTransactionsByMember(_ context.Context, memberID uuid.UUID, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Transaction
	for _, t := range m.transactions {
		if t.MemberID == memberID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Checkpoint ───────────────────────────────────────────────────────────────

// LoadCheckpoint implements Store.
func (m *Memory) LoadCheckpoint(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoint, nil
}

// SaveCheckpoint implements Store.
func (m *Memory) SaveCheckpoint(_ context.Context, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = digest
	return nil
}
