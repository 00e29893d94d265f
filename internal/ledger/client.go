// Package ledger implements the read/write boundary to the external SACCO
// registry ledger node over JSON-RPC.
//
// Writes are signed move calls against the sacco_registry contract and are
// irreversible once finalized; this client never retries a write. Reads are
// idempotent and paginated with opaque continuation cursors.
package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saccochain/ledgersync/internal/commitment"
	"go.uber.org/zap"
)

// Client is the interface consumed by the listener, the verifier, and the
// HTTP surface. RPCClient is the production implementation.
type Client interface {
	// RegisterSacco submits a SACCO registration and returns the transaction
	// digest. Returns when the node accepts the submission, not when the
	// transaction finalizes; finalization is observed by the event listener.
	RegisterSacco(ctx context.Context, saccoID, name, licenseNo string) (string, error)

	// StoreCreditScoreHash anchors an already-computed commitment hash for a
	// member. The hash must equal commitment.ScoreHash of the record; this
	// method only submits, it never hashes.
	StoreCreditScoreHash(ctx context.Context, memberAddress, scoreHash, saccoID string) (string, error)

	// CreateLoanAgreement computes the loan commitment and submits it.
	// Returns the transaction digest and the agreement hash.
	CreateLoanAgreement(ctx context.Context, terms commitment.LoanTerms) (digest, agreementHash string, err error)

	// QueryTransactions lists transactions touching the configured package.
	QueryTransactions(ctx context.Context, q TransactionQuery) (TransactionPage, error)

	// GetTransaction fetches full transaction detail including events.
	GetTransaction(ctx context.Context, digest string) (*Transaction, error)

	// GetHashRecords pages through HashRecords owned by an address.
	GetHashRecords(ctx context.Context, owner, cursor string) (HashRecordPage, error)

	// GetLoanAgreements pages through LoanAgreements owned by an address.
	GetLoanAgreements(ctx context.Context, owner, cursor string) (LoanAgreementPage, error)

	// NetworkInfo returns node metadata. Health checks only.
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)

	// Network returns the configured network name (e.g. "testnet").
	Network() string
}

// Config holds RPCClient settings.
type Config struct {
	Endpoint  string
	Network   string
	PackageID string
	GasBudget uint64
	Timeout   time.Duration
}

// RPCClient talks JSON-RPC 2.0 to a ledger fullnode.
type RPCClient struct {
	cfg    Config
	signer *Signer
	http   *http.Client
	logger *zap.Logger
}

// NewRPCClient creates an RPCClient. signer may be nil for read-only use;
// write calls then fail.
func NewRPCClient(cfg Config, signer *Signer, logger *zap.Logger) *RPCClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.GasBudget == 0 {
		cfg.GasBudget = 20_000_000
	}
	return &RPCClient{
		cfg:    cfg,
		signer: signer,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Network implements Client.
func (c *RPCClient) Network() string { return c.cfg.Network }

// ── JSON-RPC plumbing ────────────────────────────────────────────────────────

const (
	rpcCodeNotFound = -32001

	rpcCodeInternal    = -32603
	rpcCodeServerFloor = -32099
	rpcCodeServerCeil  = -32000
)

// transientRPCCode reports whether a JSON-RPC error code signals a node-side
// fault worth backing off on: internal errors and the implementation-defined
// server error band. rpcCodeNotFound lives in that band and is excluded.
func transientRPCCode(code int) bool {
	if code == rpcCodeNotFound {
		return false
	}
	return code == rpcCodeInternal ||
		(code >= rpcCodeServerFloor && code <= rpcCodeServerCeil)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip. Transport failures map to
// ErrUnavailable; an rpc "not found" error maps to ErrNotFound.
func (c *RPCClient) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: node returned status %d", ErrUnavailable, method, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read rpc response: %v", ErrUnavailable, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("%w: decode rpc response: %v", ErrUnavailable, err)
	}

	if rpcResp.Error != nil {
		if rpcResp.Error.Code == rpcCodeNotFound ||
			strings.Contains(strings.ToLower(rpcResp.Error.Message), "not found") {
			return fmt.Errorf("%w: %s", ErrNotFound, rpcResp.Error.Message)
		}
		if transientRPCCode(rpcResp.Error.Code) {
			return fmt.Errorf("%w: rpc %s: %s (code %d)",
				ErrUnavailable, method, rpcResp.Error.Message, rpcResp.Error.Code)
		}
		return fmt.Errorf("rpc %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// ── Writes ───────────────────────────────────────────────────────────────────

// txEnvelope is the canonical signed payload of a write. The node recomputes
// the blake2b digest over these exact JSON bytes to verify the signature.
type txEnvelope struct {
	Sender    string `json:"sender"`
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
	GasBudget uint64 `json:"gasBudget"`
}

type executeParams struct {
	Tx        txEnvelope `json:"tx"`
	Signature string     `json:"signature"`
	PublicKey string     `json:"publicKey"`
}

type executeResult struct {
	Digest string `json:"digest"`
	Status struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	} `json:"status"`
}

// execute signs and submits a move call. A contract-level refusal surfaces
// as *RejectedError with the node's reason string unmodified.
func (c *RPCClient) execute(ctx context.Context, function string, args []any) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("ledger client has no signer configured")
	}

	env := txEnvelope{
		Sender:    c.signer.Address(),
		Target:    c.cfg.PackageID + "::sacco_registry::" + function,
		Arguments: args,
		GasBudget: c.cfg.GasBudget,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal tx envelope: %w", err)
	}

	params := executeParams{
		Tx:        env,
		Signature: c.signer.Sign(payload),
		PublicKey: c.signer.PublicKeyB64(),
	}

	var res executeResult
	if err := c.call(ctx, "ledger_executeTransaction", params, &res); err != nil {
		return "", err
	}
	if !res.Status.Success {
		return "", &RejectedError{Reason: res.Status.Error}
	}

	c.logger.Info("ledger write submitted",
		zap.String("target", env.Target),
		zap.String("digest", res.Digest),
	)
	return res.Digest, nil
}

// RegisterSacco implements Client.
func (c *RPCClient) RegisterSacco(ctx context.Context, saccoID, name, licenseNo string) (string, error) {
	if saccoID == "" || licenseNo == "" {
		return "", fmt.Errorf("sacco id and license number are required")
	}
	return c.execute(ctx, "register_sacco", []any{
		[]byte(saccoID), []byte(name), []byte(licenseNo),
	})
}

// StoreCreditScoreHash implements Client.
func (c *RPCClient) StoreCreditScoreHash(ctx context.Context, memberAddress, scoreHash, saccoID string) (string, error) {
	hashBytes, err := hex.DecodeString(scoreHash)
	if err != nil || len(hashBytes) != 32 {
		return "", fmt.Errorf("score hash must be 32-byte hex: %q", scoreHash)
	}
	if saccoID == "" {
		saccoID = "default"
	}
	return c.execute(ctx, "store_credit_score", []any{
		memberAddress, []byte(saccoID), hashBytes,
	})
}

// CreateLoanAgreement implements Client.
func (c *RPCClient) CreateLoanAgreement(ctx context.Context, terms commitment.LoanTerms) (string, string, error) {
	agreementHash, err := commitment.LoanHash(terms)
	if err != nil {
		return "", "", err
	}
	hashBytes, _ := hex.DecodeString(agreementHash)

	digest, err := c.execute(ctx, "create_loan_agreement", []any{
		[]byte(terms.SaccoID),
		terms.AmountCents,
		terms.InterestBps,
		terms.DurationMonths,
		hashBytes,
	})
	if err != nil {
		return "", "", err
	}
	return digest, agreementHash, nil
}

// ── Reads ────────────────────────────────────────────────────────────────────

type queryTransactionsParams struct {
	Filter struct {
		MovePackage string `json:"movePackage"`
	} `json:"filter"`
	Cursor     string `json:"cursor,omitempty"`
	Descending bool   `json:"descendingOrder"`
	Limit      int    `json:"limit"`
}

// QueryTransactions implements Client.
func (c *RPCClient) QueryTransactions(ctx context.Context, q TransactionQuery) (TransactionPage, error) {
	params := queryTransactionsParams{
		Cursor:     q.Cursor,
		Descending: q.Descending,
		Limit:      q.Limit,
	}
	params.Filter.MovePackage = c.cfg.PackageID
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var page TransactionPage
	if err := c.call(ctx, "ledger_queryTransactions", params, &page); err != nil {
		return TransactionPage{}, err
	}
	return page, nil
}

type getTransactionParams struct {
	Digest  string `json:"digest"`
	Options struct {
		ShowEvents bool `json:"showEvents"`
	} `json:"options"`
}

// GetTransaction implements Client.
func (c *RPCClient) GetTransaction(ctx context.Context, digest string) (*Transaction, error) {
	params := getTransactionParams{Digest: digest}
	params.Options.ShowEvents = true

	var tx Transaction
	if err := c.call(ctx, "ledger_getTransaction", params, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

type getOwnedObjectsParams struct {
	Owner   string `json:"owner"`
	Cursor  string `json:"cursor,omitempty"`
	Limit   int    `json:"limit"`
	Options struct {
		ShowContent bool `json:"showContent"`
	} `json:"options"`
}

type ownedObject struct {
	Data struct {
		ObjectID string `json:"objectId"`
		Type     string `json:"type"`
		Content  struct {
			Fields json.RawMessage `json:"fields"`
		} `json:"content"`
	} `json:"data"`
}

type ownedObjectsPage struct {
	Data        []ownedObject `json:"data"`
	NextCursor  string        `json:"nextCursor"`
	HasNextPage bool          `json:"hasNextPage"`
}

func (c *RPCClient) getOwnedObjects(ctx context.Context, owner, cursor string) (ownedObjectsPage, error) {
	params := getOwnedObjectsParams{Owner: owner, Cursor: cursor, Limit: 50}
	params.Options.ShowContent = true

	var page ownedObjectsPage
	if err := c.call(ctx, "ledger_getOwnedObjects", params, &page); err != nil {
		return ownedObjectsPage{}, err
	}
	return page, nil
}

type hashRecordFields struct {
	CreditScore int       `json:"credit_score"`
	RiskLevel   string    `json:"risk_level"`
	Timestamp   int64     `json:"timestamp"`
	SaccoID     string    `json:"sacco_id"`
	ScoreHash   byteSlice `json:"score_hash"`
}

// GetHashRecords implements Client. Objects of other types on the same page
// are skipped; undecodable records are logged and skipped rather than
// failing the whole page.
func (c *RPCClient) GetHashRecords(ctx context.Context, owner, cursor string) (HashRecordPage, error) {
	raw, err := c.getOwnedObjects(ctx, owner, cursor)
	if err != nil {
		return HashRecordPage{}, err
	}

	page := HashRecordPage{NextCursor: raw.NextCursor, HasNextPage: raw.HasNextPage}
	for _, obj := range raw.Data {
		if !strings.Contains(obj.Data.Type, "::CreditRecord") {
			continue
		}
		var f hashRecordFields
		if err := json.Unmarshal(obj.Data.Content.Fields, &f); err != nil {
			c.logger.Warn("skipping undecodable hash record",
				zap.String("object_id", obj.Data.ObjectID), zap.Error(err))
			continue
		}
		page.Records = append(page.Records, HashRecord{
			ObjectID:    obj.Data.ObjectID,
			CreditScore: f.CreditScore,
			RiskLevel:   f.RiskLevel,
			Timestamp:   time.UnixMilli(f.Timestamp).UTC(),
			SaccoID:     f.SaccoID,
			ScoreHash:   hex.EncodeToString(f.ScoreHash),
		})
	}
	return page, nil
}

type loanAgreementFields struct {
	LoanAmount     int64  `json:"loan_amount"`
	InterestRate   int    `json:"interest_rate"`
	DurationMonths int    `json:"duration_months"`
	Status         string `json:"status"`
	StartDate      int64  `json:"start_date"`
	SaccoID        string `json:"sacco_id"`
}

// GetLoanAgreements implements Client.
func (c *RPCClient) GetLoanAgreements(ctx context.Context, owner, cursor string) (LoanAgreementPage, error) {
	raw, err := c.getOwnedObjects(ctx, owner, cursor)
	if err != nil {
		return LoanAgreementPage{}, err
	}

	page := LoanAgreementPage{NextCursor: raw.NextCursor, HasNextPage: raw.HasNextPage}
	for _, obj := range raw.Data {
		if !strings.Contains(obj.Data.Type, "::LoanAgreement") {
			continue
		}
		var f loanAgreementFields
		if err := json.Unmarshal(obj.Data.Content.Fields, &f); err != nil {
			c.logger.Warn("skipping undecodable loan agreement",
				zap.String("object_id", obj.Data.ObjectID), zap.Error(err))
			continue
		}
		page.Agreements = append(page.Agreements, LoanAgreement{
			ObjectID:       obj.Data.ObjectID,
			AmountCents:    f.LoanAmount,
			InterestBps:    f.InterestRate,
			DurationMonths: f.DurationMonths,
			Status:         f.Status,
			StartDate:      time.UnixMilli(f.StartDate).UTC(),
			SaccoID:        f.SaccoID,
		})
	}
	return page, nil
}

// NetworkInfo implements Client.
func (c *RPCClient) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var chainID string
	if err := c.call(ctx, "ledger_getChainIdentifier", []any{}, &chainID); err != nil {
		return nil, err
	}

	var gasPriceStr string
	if err := c.call(ctx, "ledger_getReferenceGasPrice", []any{}, &gasPriceStr); err != nil {
		return nil, err
	}
	gasPrice, err := strconv.ParseUint(gasPriceStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse gas price %q: %w", gasPriceStr, err)
	}

	return &NetworkInfo{
		ChainID:   chainID,
		GasPrice:  gasPrice,
		Network:   c.cfg.Network,
		PackageID: c.cfg.PackageID,
	}, nil
}
