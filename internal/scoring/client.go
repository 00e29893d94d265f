// Package scoring computes member credit scores by delegating to the external
// AI scoring service. The feature vector sent over the wire is assembled from
// the member's stored transaction history.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/saccochain/ledgersync/internal/commitment"
	"go.uber.org/zap"
)

// Features is the input vector the scoring model consumes. Monetary fields
// are in whole currency units, matching what the model was trained on.
type Features struct {
	RepaymentHistory float64 `json:"repayment_history"`
	SavingsBalance   float64 `json:"savings_balance"`
	LoanBalance      float64 `json:"loan_balance"`
	TransactionCount int     `json:"transaction_count"`
	AccountAgeMonths int     `json:"account_age_months"`
	DefaultCount     int     `json:"default_count"`
}

// Score is the model's output.
type Score struct {
	Value int                  `json:"credit_score"`
	Risk  commitment.RiskLevel `json:"risk_level"`
}

// Config holds scoring service settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the scoring service over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a scoring Client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// ComputeScore submits a feature vector and returns the model's score. The
// response is validated before use: an out-of-range score or unknown risk
// level is an error, not a value to persist.
func (c *Client) ComputeScore(ctx context.Context, f Features) (Score, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return Score{}, fmt.Errorf("marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/score", bytes.NewReader(body))
	if err != nil {
		return Score{}, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("scoring service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Score{}, fmt.Errorf("scoring service returned %d: %s", resp.StatusCode, slurp)
	}

	var score Score
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return Score{}, fmt.Errorf("decode score response: %w", err)
	}
	if score.Value < 300 || score.Value > 850 {
		return Score{}, fmt.Errorf("scoring service returned out-of-range score %d", score.Value)
	}
	if !score.Risk.Valid() {
		return Score{}, fmt.Errorf("scoring service returned unknown risk level %q", score.Risk)
	}

	c.logger.Debug("score computed",
		zap.Int("score", score.Value),
		zap.String("risk", string(score.Risk)),
	)
	return score, nil
}
