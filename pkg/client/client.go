// Package client provides the Go SDK for the ledgersync admin API:
// listener control, chain operations, and the credit score lifecycle.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ListenerStatus mirrors GET /api/v1/listener/status.
type ListenerStatus struct {
	Listening           bool   `json:"isListening"`
	State               string `json:"state"`
	LastProcessedDigest string `json:"lastProcessedDigest"`
	Network             string `json:"network"`
}

// NetworkInfo mirrors GET /api/v1/chain/network.
type NetworkInfo struct {
	ChainID   string `json:"chainId"`
	GasPrice  uint64 `json:"gasPrice"`
	Network   string `json:"network"`
	PackageID string `json:"packageId"`
}

// HashRecord is one anchored credit-score commitment.
type HashRecord struct {
	ObjectID    string    `json:"ObjectID"`
	CreditScore int       `json:"CreditScore"`
	RiskLevel   string    `json:"RiskLevel"`
	Timestamp   time.Time `json:"Timestamp"`
	SaccoID     string    `json:"SaccoID"`
	ScoreHash   string    `json:"ScoreHash"`
}

// HashRecordPage is one page of owned hash records.
type HashRecordPage struct {
	Records     []HashRecord `json:"records"`
	NextCursor  string       `json:"nextCursor"`
	HasNextPage bool         `json:"hasNextPage"`
}

// RegisterSaccoRequest is the payload for RegisterSacco.
type RegisterSaccoRequest struct {
	SaccoID   string `json:"sacco_id"`
	Name      string `json:"name"`
	LicenseNo string `json:"license_no"`
}

// CreateLoanRequest is the payload for CreateLoan.
type CreateLoanRequest struct {
	LoanID         string `json:"loan_id"`
	SubjectID      string `json:"subject_id"`
	SaccoID        string `json:"sacco_id"`
	AmountCents    int64  `json:"amount_cents"`
	InterestBps    int    `json:"interest_bps"`
	DurationMonths int    `json:"duration_months"`
}

// SubmitResult holds the digest of an accepted ledger write.
type SubmitResult struct {
	Digest        string `json:"digest"`
	AgreementHash string `json:"agreement_hash,omitempty"`
	Hash          string `json:"hash,omitempty"`
}

// VerifyResult mirrors POST /api/v1/scores/:id/verify.
type VerifyResult struct {
	Verified bool        `json:"verified"`
	Record   *HashRecord `json:"record,omitempty"`
}

// Client is the ledgersync SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches a pre-obtained admin token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client connected to baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Login exchanges the admin secret for a session token and attaches it to
// all subsequent requests.
func (c *Client) Login(ctx context.Context, secret string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/api/v1/auth/token", map[string]string{"secret": secret}, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.bearerToken = resp.Token
	c.mu.Unlock()
	return nil
}

// ─── Listener ────────────────────────────────────────────────────────────────

// ListenerStatus fetches the event listener's operational snapshot.
func (c *Client) ListenerStatus(ctx context.Context) (*ListenerStatus, error) {
	var status ListenerStatus
	if err := c.get(ctx, "/api/v1/listener/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// StartListener starts the event listener. Idempotent.
func (c *Client) StartListener(ctx context.Context) error {
	return c.post(ctx, "/api/v1/listener/start", nil, nil)
}

// StopListener stops the event listener.
func (c *Client) StopListener(ctx context.Context) error {
	return c.post(ctx, "/api/v1/listener/stop", nil, nil)
}

// ─── Chain ───────────────────────────────────────────────────────────────────

// NetworkInfo fetches ledger node metadata.
func (c *Client) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.get(ctx, "/api/v1/chain/network", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetTransaction fetches a ledger transaction by digest, as raw JSON.
func (c *Client) GetTransaction(ctx context.Context, digest string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/v1/chain/transactions/"+url.PathEscape(digest), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// HashRecords fetches one page of anchored hash records owned by address.
// Pass the returned NextCursor to continue.
func (c *Client) HashRecords(ctx context.Context, address, cursor string) (*HashRecordPage, error) {
	path := "/api/v1/chain/records/" + url.PathEscape(address)
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var page HashRecordPage
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RegisterSacco submits an on-chain SACCO registration.
func (c *Client) RegisterSacco(ctx context.Context, reg RegisterSaccoRequest) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.post(ctx, "/api/v1/chain/saccos", reg, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateLoan commits loan terms on the ledger.
func (c *Client) CreateLoan(ctx context.Context, loan CreateLoanRequest) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.post(ctx, "/api/v1/chain/loans", loan, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── Scores ──────────────────────────────────────────────────────────────────

// ComputeScore computes and stores a fresh credit score for a member.
func (c *Client) ComputeScore(ctx context.Context, memberID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.post(ctx, "/api/v1/members/"+url.PathEscape(memberID)+"/scores/compute", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// AnchorScore anchors a stored score's commitment on the ledger.
func (c *Client) AnchorScore(ctx context.Context, scoreID string) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.post(ctx, "/api/v1/scores/"+url.PathEscape(scoreID)+"/anchor", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyScore checks a stored score against the ledger.
func (c *Client) VerifyScore(ctx context.Context, scoreID string) (*VerifyResult, error) {
	var res VerifyResult
	if err := c.post(ctx, "/api/v1/scores/"+url.PathEscape(scoreID)+"/verify", &struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── HTTP plumbing ───────────────────────────────────────────────────────────

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// do executes an HTTP request, attaching the bearer token if present, and
// decodes the JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	c.mu.Lock()
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error %d: %s", resp.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
