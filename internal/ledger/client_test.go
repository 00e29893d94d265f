package ledger

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/saccochain/ledgersync/internal/commitment"
	"go.uber.org/zap"
)

// rpcHandler routes stubbed JSON-RPC methods for tests.
type rpcHandler map[string]func(params json.RawMessage) (any, *rpcError)

func stubNode(t *testing.T, handlers rpcHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}

		fn, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected rpc method %q", req.Method)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		result, rpcErr := fn(req.Params)
		w.Header().Set("Content-Type", "application/json")
		if rpcErr != nil {
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "error": rpcErr}) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result}) //nolint:errcheck
	}))
}

func testSigner(t *testing.T) *Signer {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatal(err)
	}
	s, err := NewSigner(base64.StdEncoding.EncodeToString(seed))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestClient(t *testing.T, srv *httptest.Server) *RPCClient {
	t.Helper()
	return NewRPCClient(Config{
		Endpoint:  srv.URL,
		Network:   "testnet",
		PackageID: "0xpkg",
	}, testSigner(t), zap.NewNop())
}

var ctx = context.Background()

func TestRegisterSacco_returnsDigest(t *testing.T) {
	var gotTarget string
	srv := stubNode(t, rpcHandler{
		"ledger_executeTransaction": func(params json.RawMessage) (any, *rpcError) {
			var p executeParams
			if err := json.Unmarshal(params, &p); err != nil {
				t.Fatal(err)
			}
			gotTarget = p.Tx.Target
			if p.Signature == "" || p.PublicKey == "" {
				t.Error("expected signed transaction")
			}
			return executeResult{
				Digest: "DigestAAA",
				Status: struct {
					Success bool   `json:"success"`
					Error   string `json:"error"`
				}{Success: true},
			}, nil
		},
	})
	defer srv.Close()

	digest, err := newTestClient(t, srv).RegisterSacco(ctx, "sacco_umoja", "Umoja SACCO", "LIC-001")
	if err != nil {
		t.Fatal(err)
	}
	if digest != "DigestAAA" {
		t.Errorf("digest: got %q", digest)
	}
	if gotTarget != "0xpkg::sacco_registry::register_sacco" {
		t.Errorf("target: got %q", gotTarget)
	}
}

func TestExecute_contractRejectionPreservesReason(t *testing.T) {
	srv := stubNode(t, rpcHandler{
		"ledger_executeTransaction": func(json.RawMessage) (any, *rpcError) {
			return executeResult{
				Digest: "DigestBBB",
				Status: struct {
					Success bool   `json:"success"`
					Error   string `json:"error"`
				}{Success: false, Error: "MoveAbort: sacco already registered"},
			}, nil
		},
	})
	defer srv.Close()

	_, err := newTestClient(t, srv).RegisterSacco(ctx, "sacco_umoja", "Umoja", "LIC-001")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatal("expected *RejectedError")
	}
	if rej.Reason != "MoveAbort: sacco already registered" {
		t.Errorf("reason mangled: %q", rej.Reason)
	}
}

func TestCall_transportFailureIsUnavailable(t *testing.T) {
	srv := stubNode(t, rpcHandler{})
	srv.Close() // connection refused from here on

	_, err := newTestClient(t, srv).QueryTransactions(ctx, TransactionQuery{Limit: 10})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCall_nodeSideErrorCodeIsUnavailable(t *testing.T) {
	srv := stubNode(t, rpcHandler{
		"ledger_queryTransactions": func(json.RawMessage) (any, *rpcError) {
			return nil, &rpcError{Code: -32603, Message: "internal error"}
		},
	})
	defer srv.Close()

	_, err := newTestClient(t, srv).QueryTransactions(ctx, TransactionQuery{Limit: 10})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("internal rpc error should map to ErrUnavailable, got %v", err)
	}
}

func TestTransientRPCCode_excludesNotFound(t *testing.T) {
	if transientRPCCode(rpcCodeNotFound) {
		t.Error("not-found sits in the server band but must not trigger backoff")
	}
	for _, code := range []int{-32603, -32000, -32050, -32099} {
		if !transientRPCCode(code) {
			t.Errorf("code %d should be transient", code)
		}
	}
	for _, code := range []int{-32602, -32601, -32700, 0, 100} {
		if transientRPCCode(code) {
			t.Errorf("code %d should not be transient", code)
		}
	}
}

func TestGetTransaction_unknownDigestIsNotFound(t *testing.T) {
	srv := stubNode(t, rpcHandler{
		"ledger_getTransaction": func(json.RawMessage) (any, *rpcError) {
			return nil, &rpcError{Code: rpcCodeNotFound, Message: "transaction not found"}
		},
	})
	defer srv.Close()

	_, err := newTestClient(t, srv).GetTransaction(ctx, "NoSuchDigest")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreCreditScoreHash_rejectsMalformedHash(t *testing.T) {
	srv := stubNode(t, rpcHandler{})
	defer srv.Close()

	c := newTestClient(t, srv)
	if _, err := c.StoreCreditScoreHash(ctx, "0xabc", "nothex", "sacco_umoja"); err == nil {
		t.Error("expected error for non-hex hash")
	}
	if _, err := c.StoreCreditScoreHash(ctx, "0xabc", "deadbeef", "sacco_umoja"); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestGetHashRecords_filtersAndDecodes(t *testing.T) {
	srv := stubNode(t, rpcHandler{
		"ledger_getOwnedObjects": func(json.RawMessage) (any, *rpcError) {
			return map[string]any{
				"data": []any{
					map[string]any{"data": map[string]any{
						"objectId": "0xobj1",
						"type":     "0xpkg::sacco_registry::CreditRecord",
						"content": map[string]any{"fields": map[string]any{
							"credit_score": 712,
							"risk_level":   "LOW",
							"timestamp":    1741944413000,
							"sacco_id":     "sacco_umoja",
							"score_hash":   []int{0xde, 0xad, 0xbe, 0xef},
						}},
					}},
					map[string]any{"data": map[string]any{
						"objectId": "0xobj2",
						"type":     "0xpkg::sacco_registry::LoanAgreement",
						"content":  map[string]any{"fields": map[string]any{}},
					}},
				},
				"nextCursor":  "cursor-2",
				"hasNextPage": true,
			}, nil
		},
	})
	defer srv.Close()

	page, err := newTestClient(t, srv).GetHashRecords(ctx, "0xowner", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected 1 credit record, got %d", len(page.Records))
	}
	rec := page.Records[0]
	if rec.ScoreHash != "deadbeef" {
		t.Errorf("score hash: got %q", rec.ScoreHash)
	}
	if rec.CreditScore != 712 || rec.RiskLevel != "LOW" || rec.SaccoID != "sacco_umoja" {
		t.Errorf("record fields wrong: %+v", rec)
	}
	if !page.HasNextPage || page.NextCursor != "cursor-2" {
		t.Error("pagination fields not propagated")
	}
}

func TestNetworkInfo(t *testing.T) {
	srv := stubNode(t, rpcHandler{
		"ledger_getChainIdentifier":   func(json.RawMessage) (any, *rpcError) { return "35834a8a", nil },
		"ledger_getReferenceGasPrice": func(json.RawMessage) (any, *rpcError) { return "1000", nil },
	})
	defer srv.Close()

	info, err := newTestClient(t, srv).NetworkInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.ChainID != "35834a8a" || info.GasPrice != 1000 {
		t.Errorf("network info wrong: %+v", info)
	}
	if info.Network != "testnet" || info.PackageID != "0xpkg" {
		t.Errorf("config fields wrong: %+v", info)
	}
}

func TestEventKind(t *testing.T) {
	cases := map[string]EventKind{
		"0xpkg::sacco_registry::CreditScoreStored": EventCreditScoreStored,
		"0xpkg::sacco_registry::SaccoRegistered":   EventSaccoRegistered,
		"foo::Bar":                                 "Bar",
		"Bare":                                     "Bare",
	}
	for typ, want := range cases {
		if got := (Event{Type: typ}).Kind(); got != want {
			t.Errorf("Kind(%q): got %q, want %q", typ, got, want)
		}
	}
}

func TestByteSlice_bothEncodings(t *testing.T) {
	var fromArray byteSlice
	if err := json.Unmarshal([]byte(`[222,173,190,239]`), &fromArray); err != nil {
		t.Fatal(err)
	}

	var fromB64 byteSlice
	b64 := `"` + base64.StdEncoding.EncodeToString([]byte{0xde, 0xad, 0xbe, 0xef}) + `"`
	if err := json.Unmarshal([]byte(b64), &fromB64); err != nil {
		t.Fatal(err)
	}

	if string(fromArray) != string(fromB64) {
		t.Error("array and base64 decodings disagree")
	}
}

func TestCreateLoanAgreement_computesCommitment(t *testing.T) {
	srv := stubNode(t, rpcHandler{
		"ledger_executeTransaction": func(params json.RawMessage) (any, *rpcError) {
			if !strings.Contains(string(params), "create_loan_agreement") {
				t.Error("expected create_loan_agreement target")
			}
			return executeResult{
				Digest: "DigestLoan",
				Status: struct {
					Success bool   `json:"success"`
					Error   string `json:"error"`
				}{Success: true},
			}, nil
		},
	})
	defer srv.Close()

	terms := commitment.LoanTerms{
		LoanID: "loan_1", SubjectID: "member_1", SaccoID: "sacco_umoja",
		AmountCents: 100_000, InterestBps: 1200, DurationMonths: 12,
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	digest, hash, err := newTestClient(t, srv).CreateLoanAgreement(ctx, terms)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := commitment.LoanHash(terms)
	if hash != want {
		t.Errorf("agreement hash: got %q, want %q", hash, want)
	}
	if digest != "DigestLoan" {
		t.Errorf("digest: got %q", digest)
	}
}
