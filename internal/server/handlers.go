package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/privilegehq/satsgate/internal/catalog"
	"github.com/privilegehq/satsgate/internal/logging"
	"github.com/privilegehq/satsgate/internal/purchase"
)

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Satsgate",
		"description": "Payment-gated resource access settled in bitcoin",
		"version":     "0.1.0",
		"network":     s.cfg.Network,
		"currency":    "sats",
	})
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

func (s *Server) listResources(c *gin.Context) {
	resources, err := s.catalog.List(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list resources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list resources",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"resources": resources,
		"count":     len(resources),
	})
}

func (s *Server) getResource(c *gin.Context) {
	r, err := s.catalog.Resource(c.Request.Context(), c.Param("resourceID"))
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Unknown resource",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to load resource", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load resource",
		})
		return
	}
	c.JSON(http.StatusOK, r)
}

// -----------------------------------------------------------------------------
// Purchases
// -----------------------------------------------------------------------------

type purchaseRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	ResourceID    string `json:"resourceId" binding:"required"`
	TierIndex     *int   `json:"tierIndex" binding:"required"`
	PriceSats     int64  `json:"priceSats" binding:"required"`
}

// createPurchase handles POST /v1/purchases. The response is not sent until
// the attempt settles, which can take up to the dispatch timeout.
func (s *Server) createPurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "walletAddress, resourceId, tierIndex, and priceSats are required",
		})
		return
	}

	sess := purchase.Session{WalletAddress: req.WalletAddress, Connected: true}
	res, err := s.purchases.Buy(c.Request.Context(), sess, req.ResourceID, *req.TierIndex, req.PriceSats)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Unknown resource",
			})
			return
		}
		if res.Success {
			// Confirmed on-chain but the proof write failed. The payment is
			// real; surface the reference so the client can retry recording.
			logging.L(c.Request.Context()).Error("proof write failed after confirmation",
				"reference", res.Reference, "error", err)
			c.JSON(http.StatusInternalServerError, res)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if !res.Success {
		c.JSON(http.StatusPaymentRequired, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// -----------------------------------------------------------------------------
// Access
// -----------------------------------------------------------------------------

// checkAccess handles GET /v1/access/:resourceID?wallet=addr and returns a
// per-tier purchased flag. This is the cheap hint; /v1/access/verify is the
// decision that actually gates content.
func (s *Server) checkAccess(c *gin.Context) {
	wallet := c.Query("wallet")
	sess := purchase.Session{WalletAddress: wallet, Connected: wallet != ""}

	flags, err := s.purchases.CheckAccess(c.Request.Context(), sess, c.Param("resourceID"))
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Unknown resource",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("access check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to check access",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resourceId": c.Param("resourceID"),
		"purchased":  flags,
	})
}

type verifyRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	ResourceID    string `json:"resourceId" binding:"required"`
	TierIndex     *int   `json:"tierIndex" binding:"required"`
}

// verifyAccess handles POST /v1/access/verify.
func (s *Server) verifyAccess(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "walletAddress, resourceId, and tierIndex are required",
		})
		return
	}

	sess := purchase.Session{WalletAddress: req.WalletAddress, Connected: true}
	res, err := s.purchases.VerifyAccess(c.Request.Context(), sess, req.ResourceID, *req.TierIndex)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Unknown resource",
			})
			return
		}
		logging.L(c.Request.Context()).Error("access verification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to verify access",
		})
		return
	}

	if !res.Allowed {
		c.JSON(http.StatusForbidden, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
