package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/saccochain/ledgersync/internal/commitment"
	"github.com/saccochain/ledgersync/internal/store"
	"go.uber.org/zap"
)

func TestComputeScore_roundTrip(t *testing.T) {
	var gotPath string
	var gotFeatures Features
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotFeatures); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"credit_score": 712,
			"risk_level":   "LOW",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	score, err := c.ComputeScore(context.Background(), Features{
		RepaymentHistory: 0.9,
		SavingsBalance:   1500,
		TransactionCount: 42,
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/score" {
		t.Errorf("posted to %q, want /api/score", gotPath)
	}
	if gotFeatures.TransactionCount != 42 {
		t.Errorf("feature vector mangled in transit: %+v", gotFeatures)
	}
	if score.Value != 712 || score.Risk != commitment.RiskLow {
		t.Errorf("got score %+v", score)
	}
}

func TestComputeScore_rejectsOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"credit_score": 9000, "risk_level": "LOW"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	if _, err := c.ComputeScore(context.Background(), Features{}); err == nil {
		t.Fatal("out-of-range score must be rejected")
	}
}

func TestComputeScore_rejectsUnknownRisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"credit_score": 700, "risk_level": "BANANAS"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	if _, err := c.ComputeScore(context.Background(), Features{}); err == nil {
		t.Fatal("unknown risk level must be rejected")
	}
}

func TestComputeScore_surfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.ComputeScore(context.Background(), Features{})
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("service error body lost: %v", err)
	}
}

func TestBuildFeatures(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := &store.Member{
		Email: "wanjiku@example.com", Name: "Wanjiku",
		NationalID: "12345678", WalletAddress: "0xabc", SaccoID: "sacco_umoja",
	}
	if err := s.CreateMember(ctx, m); err != nil {
		t.Fatal(err)
	}

	add := func(typ store.TxType, status store.TxStatus, cents int64) {
		t.Helper()
		if err := s.CreateTransaction(ctx, &store.Transaction{
			MemberID: m.ID, Type: typ, Status: status, AmountCents: cents,
		}); err != nil {
			t.Fatal(err)
		}
	}
	add(store.TxDeposit, store.TxCompleted, 200_00)
	add(store.TxDeposit, store.TxCompleted, 100_00)
	add(store.TxWithdrawal, store.TxCompleted, 50_00)
	add(store.TxLoan, store.TxCompleted, 500_00)
	add(store.TxRepayment, store.TxCompleted, 100_00)
	add(store.TxRepayment, store.TxFailed, 100_00)  // default
	add(store.TxDeposit, store.TxPending, 1_000_00) // excluded

	now := time.Now().Add(90 * 24 * time.Hour)
	f, err := BuildFeatures(ctx, s, m.ID, now)
	if err != nil {
		t.Fatal(err)
	}

	if f.SavingsBalance != 250 {
		t.Errorf("savings balance: got %v, want 250", f.SavingsBalance)
	}
	if f.LoanBalance != 400 {
		t.Errorf("loan balance: got %v, want 400", f.LoanBalance)
	}
	if f.TransactionCount != 5 {
		t.Errorf("transaction count: got %d, want 5 (pending and failed excluded)", f.TransactionCount)
	}
	if f.DefaultCount != 1 {
		t.Errorf("default count: got %d, want 1", f.DefaultCount)
	}
	if f.RepaymentHistory != 1 {
		t.Errorf("repayment history: got %v, want 1 (one loan, one repayment)", f.RepaymentHistory)
	}
	if f.AccountAgeMonths < 2 || f.AccountAgeMonths > 3 {
		t.Errorf("account age: got %d months, want ~3", f.AccountAgeMonths)
	}
}

func TestBuildFeatures_noLoansMeansCleanHistory(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := &store.Member{
		Email: "amani@example.com", Name: "Amani",
		NationalID: "87654321", WalletAddress: "0xdef", SaccoID: "sacco_umoja",
	}
	if err := s.CreateMember(ctx, m); err != nil {
		t.Fatal(err)
	}

	f, err := BuildFeatures(ctx, s, m.ID, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if f.RepaymentHistory != 1 {
		t.Errorf("no loans should score a clean repayment history, got %v", f.RepaymentHistory)
	}
}
