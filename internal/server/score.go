package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saccochain/ledgersync/internal/commitment"
	"github.com/saccochain/ledgersync/internal/ledger"
	"github.com/saccochain/ledgersync/internal/scoring"
	"github.com/saccochain/ledgersync/internal/store"
	"github.com/saccochain/ledgersync/internal/verify"
	"go.uber.org/zap"
)

// scoreComputer is the scoring service surface ScoreHandler needs, satisfied
// by *scoring.Client.
type scoreComputer interface {
	ComputeScore(ctx context.Context, f scoring.Features) (scoring.Score, error)
}

// recordVerifier is satisfied by *verify.Service.
type recordVerifier interface {
	VerifyRecord(ctx context.Context, address string, rec commitment.ScoreRecord) (verify.Result, error)
}

// ScoreHandler drives the credit score lifecycle: compute, anchor on the
// ledger, and verify against the ledger.
type ScoreHandler struct {
	store    store.Store
	scorer   scoreComputer
	client   ledger.Client
	verifier recordVerifier
	logger   *zap.Logger
}

// NewScoreHandler creates a ScoreHandler.
func NewScoreHandler(st store.Store, scorer scoreComputer, client ledger.Client, verifier recordVerifier, logger *zap.Logger) *ScoreHandler {
	return &ScoreHandler{store: st, scorer: scorer, client: client, verifier: verifier, logger: logger}
}

// Register mounts the score routes on the given router group.
func (h *ScoreHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/members/:id/scores", h.ListScores)
	rg.POST("/members/:id/scores/compute", h.ComputeScore)
	rg.POST("/scores/:id/anchor", h.AnchorScore)
	rg.POST("/scores/:id/verify", h.VerifyScore)
}

// scoreRecord builds the canonical commitment input for a stored score. The
// same derivation is used for anchoring and verification, so the two can
// never disagree on what was hashed.
func scoreRecord(sc *store.CreditScore, m *store.Member) commitment.ScoreRecord {
	return commitment.ScoreRecord{
		Score:      sc.Score,
		Risk:       sc.Risk,
		SubjectID:  m.ID.String(),
		SaccoID:    m.SaccoID,
		ComputedAt: sc.CreatedAt,
	}
}

// loadScoreAndMember resolves a score path parameter to its row and owner.
func (h *ScoreHandler) loadScoreAndMember(c *gin.Context) (*store.CreditScore, *store.Member, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid score id"})
		return nil, nil, false
	}

	sc, err := h.store.GetScore(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "score not found"})
		return nil, nil, false
	}
	if err != nil {
		h.logger.Error("load score", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load score"})
		return nil, nil, false
	}

	m, err := h.store.GetMember(c.Request.Context(), sc.MemberID)
	if err != nil {
		h.logger.Error("load score owner", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load member"})
		return nil, nil, false
	}
	return sc, m, true
}

// ListScores handles GET /members/:id/scores.
func (h *ScoreHandler) ListScores(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}

	scores, err := h.store.ListScoresByMember(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list scores", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scores"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}

// ComputeScore handles POST /members/:id/scores/compute: builds the
// member's feature vector, calls the scoring service, and stores the result
// as a new unanchored score.
func (h *ScoreHandler) ComputeScore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}
	ctx := c.Request.Context()

	features, err := scoring.BuildFeatures(ctx, h.store, id, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		return
	}
	if err != nil {
		h.logger.Error("build features", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build feature vector"})
		return
	}

	score, err := h.scorer.ComputeScore(ctx, features)
	if err != nil {
		h.logger.Error("compute score", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "scoring service failed"})
		return
	}

	row := &store.CreditScore{MemberID: id, Score: score.Value, Risk: score.Risk}
	if err := h.store.CreateScore(ctx, row); err != nil {
		h.logger.Error("persist score", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store score"})
		return
	}

	RecordScoreComputed()
	c.JSON(http.StatusCreated, gin.H{
		"score":    row,
		"features": features,
	})
}

// AnchorScore handles POST /scores/:id/anchor: computes the commitment for
// a stored score and anchors it on the ledger. The local hash column is
// written only after the ledger accepts the submission, so a failed write
// leaves the score unanchored and retryable.
func (h *ScoreHandler) AnchorScore(c *gin.Context) {
	sc, m, ok := h.loadScoreAndMember(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if m.WalletAddress == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "member has no wallet address"})
		return
	}

	hash, err := commitment.ScoreHash(scoreRecord(sc, m))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	digest, err := h.client.StoreCreditScoreHash(ctx, m.WalletAddress, hash, m.SaccoID)
	if err != nil {
		var rejected *ledger.RejectedError
		switch {
		case errors.As(err, &rejected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejected.Reason})
		case errors.Is(err, ledger.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger node unreachable"})
		default:
			h.logger.Error("anchor score", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to anchor score"})
		}
		return
	}

	if err := h.store.SetScoreHash(ctx, sc.ID, hash); err != nil {
		if errors.Is(err, store.ErrHashConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "score already anchored with a different hash"})
			return
		}
		// The ledger write went through; surface the digest so the operator
		// can reconcile manually.
		h.logger.Error("record anchored hash", zap.String("digest", digest), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "anchored on ledger but failed to record locally",
			"digest": digest,
		})
		return
	}

	RecordHashAnchored()
	c.JSON(http.StatusOK, gin.H{
		"digest": digest,
		"hash":   hash,
	})
}

// VerifyScore handles POST /scores/:id/verify: recomputes the commitment
// and checks the ledger for a matching record owned by the member's wallet.
func (h *ScoreHandler) VerifyScore(c *gin.Context) {
	sc, m, ok := h.loadScoreAndMember(c)
	if !ok {
		return
	}

	if m.WalletAddress == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "member has no wallet address"})
		return
	}

	res, err := h.verifier.VerifyRecord(c.Request.Context(), m.WalletAddress, scoreRecord(sc, m))
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger node unreachable"})
			return
		}
		h.logger.Error("verify score", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	RecordVerification(res.Verified)
	c.JSON(http.StatusOK, res)
}
