package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saccochain/ledgersync/internal/commitment"
	"github.com/saccochain/ledgersync/internal/ledger"
	"go.uber.org/zap"
)

// ChainHandler exposes direct ledger reads and writes: SACCO registration,
// loan agreements, network info, and raw transaction lookup.
type ChainHandler struct {
	client ledger.Client
	logger *zap.Logger
}

// NewChainHandler creates a ChainHandler.
func NewChainHandler(client ledger.Client, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{client: client, logger: logger}
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	ch := rg.Group("/chain")
	{
		ch.GET("/network", h.Network)
		ch.GET("/transactions/:digest", h.GetTransaction)
		ch.GET("/records/:address", h.GetHashRecords)
		ch.GET("/loans/:address", h.GetLoanAgreements)
		ch.POST("/saccos", h.RegisterSacco)
		ch.POST("/loans", h.CreateLoan)
	}
}

// ledgerError translates ledger client failures into HTTP responses.
func (h *ChainHandler) ledgerError(c *gin.Context, op string, err error) {
	var rejected *ledger.RejectedError
	switch {
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rejected.Reason})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found on ledger"})
	case errors.Is(err, ledger.ErrUnavailable):
		h.logger.Warn("ledger unreachable", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger node unreachable"})
	default:
		h.logger.Error("ledger call failed", zap.String("op", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger operation failed"})
	}
}

// Network handles GET /chain/network.
func (h *ChainHandler) Network(c *gin.Context) {
	info, err := h.client.NetworkInfo(c.Request.Context())
	if err != nil {
		h.ledgerError(c, "network info", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetTransaction handles GET /chain/transactions/:digest.
func (h *ChainHandler) GetTransaction(c *gin.Context) {
	tx, err := h.client.GetTransaction(c.Request.Context(), c.Param("digest"))
	if err != nil {
		h.ledgerError(c, "get transaction", err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// GetHashRecords handles GET /chain/records/:address?cursor=...
// Returns one page; the caller follows nextCursor for more.
func (h *ChainHandler) GetHashRecords(c *gin.Context) {
	page, err := h.client.GetHashRecords(c.Request.Context(), c.Param("address"), c.Query("cursor"))
	if err != nil {
		h.ledgerError(c, "get hash records", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records":     page.Records,
		"nextCursor":  page.NextCursor,
		"hasNextPage": page.HasNextPage,
	})
}

// GetLoanAgreements handles GET /chain/loans/:address?cursor=...
func (h *ChainHandler) GetLoanAgreements(c *gin.Context) {
	page, err := h.client.GetLoanAgreements(c.Request.Context(), c.Param("address"), c.Query("cursor"))
	if err != nil {
		h.ledgerError(c, "get loan agreements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agreements":  page.Agreements,
		"nextCursor":  page.NextCursor,
		"hasNextPage": page.HasNextPage,
	})
}

type registerSaccoRequest struct {
	SaccoID   string `json:"sacco_id"   binding:"required"`
	Name      string `json:"name"       binding:"required"`
	LicenseNo string `json:"license_no" binding:"required"`
}

// RegisterSacco handles POST /chain/saccos: submits an on-chain SACCO
// registration. The local row is updated later, by the event listener, when
// the SaccoRegistered event is observed.
func (h *ChainHandler) RegisterSacco(c *gin.Context) {
	var req registerSaccoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	digest, err := h.client.RegisterSacco(c.Request.Context(), req.SaccoID, req.Name, req.LicenseNo)
	if err != nil {
		h.ledgerError(c, "register sacco", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"digest":  digest,
		"message": "registration submitted; confirmation arrives via the event listener",
	})
}

type createLoanRequest struct {
	LoanID         string `json:"loan_id"         binding:"required"`
	SubjectID      string `json:"subject_id"      binding:"required"`
	SaccoID        string `json:"sacco_id"        binding:"required"`
	AmountCents    int64  `json:"amount_cents"    binding:"required,gt=0"`
	InterestBps    int    `json:"interest_bps"    binding:"gte=0"`
	DurationMonths int    `json:"duration_months" binding:"required,gt=0"`
}

// CreateLoan handles POST /chain/loans: commits loan terms on the ledger.
func (h *ChainHandler) CreateLoan(c *gin.Context) {
	var req createLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	digest, hash, err := h.client.CreateLoanAgreement(c.Request.Context(), commitment.LoanTerms{
		LoanID:         req.LoanID,
		SubjectID:      req.SubjectID,
		SaccoID:        req.SaccoID,
		AmountCents:    req.AmountCents,
		InterestBps:    req.InterestBps,
		DurationMonths: req.DurationMonths,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, commitment.ErrInvalidRecord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.ledgerError(c, "create loan", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"digest":         digest,
		"agreement_hash": hash,
	})
}
