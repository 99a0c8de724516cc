package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/peerswapd/peerswap/internal/analytics"
	"github.com/peerswapd/peerswap/internal/approval"
	"github.com/peerswapd/peerswap/internal/dispute"
	"github.com/peerswapd/peerswap/internal/logging"
	"github.com/peerswapd/peerswap/internal/metrics"
	"github.com/peerswapd/peerswap/internal/money"
	"github.com/peerswapd/peerswap/internal/orders"
	"github.com/peerswapd/peerswap/internal/summary"
	"github.com/peerswapd/peerswap/internal/traces"
	"github.com/peerswapd/peerswap/internal/validation"
)

func toAddress(s string) common.Address {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return common.Address{}
}

// actorAddress extracts the caller's wallet address from the request.
// The address travels in the X-Wallet-Address header (preferred) or an
// address/actor query parameter. An empty result means an anonymous
// observer.
func actorAddress(c *gin.Context) (string, bool) {
	addr := c.GetHeader("X-Wallet-Address")
	if addr == "" {
		addr = c.Query("address")
	}
	if addr == "" {
		addr = c.Query("actor")
	}
	if addr == "" {
		return "", true
	}
	addr = validation.SanitizeAddress(addr)
	if !validation.IsValidEthAddress(addr) {
		return "", false
	}
	return addr, true
}

// fetchOrder loads an order and writes the error response on failure.
func (s *Server) fetchOrder(c *gin.Context) (*orders.Order, bool) {
	id := c.Param("id")
	order, err := s.backend.Order(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "order_not_found",
				"message": "No order with this id",
			})
			return nil, false
		}
		logging.L(c.Request.Context()).Error("order fetch failed", "order", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "backend_unavailable",
			"message": "Could not load the order",
		})
		return nil, false
	}
	return order, true
}

// disputeViewHandler handles GET /v1/orders/:id/dispute-view
func (s *Server) disputeViewHandler(c *gin.Context) {
	ctx := c.Request.Context()

	actor, ok := actorAddress(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "actor must be a valid Ethereum address (0x...)",
		})
		return
	}

	order, ok := s.fetchOrder(c)
	if !ok {
		return
	}

	ctx, span := traces.StartSpan(ctx, "dispute.build_view",
		traces.OrderID(order.ID), traces.Actor(actor))
	defer span.End()

	view, err := s.disputes.BuildView(ctx, order, actor)
	if err != nil {
		switch {
		case errors.Is(err, dispute.ErrMissingListing):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "missing_listing",
				"message": "Order has no listing or token data",
			})
		case errors.Is(err, dispute.ErrInvalidAmount):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "invalid_amount",
				"message": "Order token amount is malformed",
			})
		default:
			logging.L(ctx).Error("dispute view failed", "order", order.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Could not build the dispute view",
			})
		}
		return
	}

	actorRef, known := s.identity.CurrentActor(ctx, actor)

	s.recorder.Record(ctx, analytics.EventDisputeViewed, actor, order.ID, "phase="+string(view.Phase))
	if view.Phase != dispute.PhaseNone {
		s.realtimeHub.BroadcastDisputeUpdate(order.ID, order.Buyer.Address, order.Seller.Address, string(view.Phase))
	}

	resp := gin.H{
		"orderId": order.ID,
		"view":    view,
	}
	if known {
		resp["actor"] = actorRef
	}
	c.JSON(http.StatusOK, resp)
}

// orderSummaryHandler handles GET /v1/orders/:id/summary
func (s *Server) orderSummaryHandler(c *gin.Context) {
	ctx := c.Request.Context()

	actor, ok := actorAddress(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "actor must be a valid Ethereum address (0x...)",
		})
		return
	}

	order, ok := s.fetchOrder(c)
	if !ok {
		return
	}

	text := summary.Summarize(order, actor, s.identity.Arbitrator())

	s.recorder.Record(ctx, analytics.EventSummaryViewed, actor, order.ID, "")
	s.realtimeHub.BroadcastOrderCompleted(order.ID, order.Buyer.Address, order.Seller.Address, text)

	c.JSON(http.StatusOK, gin.H{
		"orderId": order.ID,
		"summary": text,
	})
}

// orderEventsHandler handles GET /v1/orders/:id/events
func (s *Server) orderEventsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	since := time.Time{}
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_since",
				"message": "since must be an RFC3339 timestamp",
			})
			return
		}
		since = parsed
	}

	events, err := s.store.ByOrder(ctx, id, since)
	if err != nil {
		logging.L(ctx).Error("event query failed", "order", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not load order events",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId": id,
		"events":  events,
	})
}

// analyticsCountHandler handles GET /v1/analytics/events
func (s *Server) analyticsCountHandler(c *gin.Context) {
	counts, err := s.store.CountByType(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Could not load analytics counts",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// feeQuoteHandler handles GET /v1/fees/quote
func (s *Server) feeQuoteHandler(c *gin.Context) {
	ctx := c.Request.Context()

	amountStr := c.Query("amount")
	if verrs := validation.Validate(
		validation.Required("amount", amountStr),
		validation.ValidAmount("amount", amountStr),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": verrs.Error(),
		})
		return
	}

	decimals := uint8(6)
	if raw := c.Query("decimals"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_decimals",
				"message": "decimals must be an integer between 0 and 255",
			})
			return
		}
		decimals = uint8(parsed)
	}

	rawAmount, ok := money.Parse(amountStr, decimals)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount has more precision than the token allows",
		})
		return
	}

	ctx, span := traces.StartSpan(ctx, "fees.quote", traces.Amount(amountStr))
	defer span.End()

	quote, err := s.feeEngine.Quote(ctx, rawAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a non-negative value",
		})
		return
	}

	actor, _ := actorAddress(c)
	s.recorder.Record(ctx, analytics.EventFeeQuoted, actor, "", "amount="+amountStr)

	if !quote.Known {
		c.JSON(http.StatusOK, gin.H{"known": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"known":          true,
		"fee":            quote.Fee.String(),
		"feeFormatted":   money.Format(quote.Fee, decimals),
		"totalAmount":    quote.TotalAmount.String(),
		"totalFormatted": money.Format(quote.TotalAmount, decimals),
		"partnerFeeBps":  quote.PartnerFeeBps,
		"disputeFeeRate": s.cfg.DisputeFeeRate,
	})
}

// allowanceHandler handles GET /v1/approvals/allowance
func (s *Server) allowanceHandler(c *gin.Context) {
	ctx := c.Request.Context()

	owner, ok := actorAddress(c)
	if !ok || owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "a valid owner wallet address is required",
		})
		return
	}

	// A failed fetch keeps the last known allowance; the state snapshot
	// below is still valid to render.
	_ = s.approvalFlow.RefreshAllowance(ctx, owner)

	state := s.approvalFlow.State()
	resp := gin.H{
		"status":   state.Status,
		"approved": state.Approved(),
	}
	if state.Allowance != nil {
		resp["allowance"] = state.Allowance.String()
	}
	if state.Amount != nil {
		resp["amount"] = state.Amount.String()
	}
	c.JSON(http.StatusOK, resp)
}

// approveRequest is the POST /v1/approvals body.
type approveRequest struct {
	Owner    string `json:"owner" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Decimals *uint8 `json:"decimals"`
}

// approveHandler handles POST /v1/approvals
func (s *Server) approveHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	owner := validation.SanitizeAddress(req.Owner)
	if !validation.IsValidEthAddress(owner) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "owner must be a valid Ethereum address (0x...)",
		})
		return
	}

	decimals := uint8(6)
	if req.Decimals != nil {
		decimals = *req.Decimals
	}
	rawAmount, ok := money.Parse(req.Amount, decimals)
	if !ok || rawAmount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a positive decimal value",
		})
		return
	}

	ctx, span := traces.StartSpan(ctx, "approval.approve",
		traces.Actor(owner), traces.Amount(req.Amount))
	defer span.End()

	result, err := s.approvalFlow.Approve(ctx, owner, rawAmount)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrBusy):
			metrics.ApprovalsTotal.WithLabelValues("busy").Inc()
			c.JSON(http.StatusConflict, gin.H{
				"error":   "approval_in_progress",
				"message": "An approval is already being processed",
			})
		case errors.Is(err, approval.ErrSigningDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "signing_disabled",
				"message": "This deployment has no signing key configured",
			})
		case errors.Is(err, approval.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "amount must be a positive value",
			})
		default:
			logging.L(ctx).Warn("approval attempt failed", "owner", owner, "error", err)
			// The flow has re-enabled; the caller may retry.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "approval_failed",
				"message": "Approval could not be constructed, try again",
				"status":  s.approvalFlow.State().Status,
			})
		}
		return
	}

	s.recorder.Record(ctx, analytics.EventApprovalSubmitted, owner, "", "amount="+req.Amount)
	s.realtimeHub.BroadcastApprovalConfirmed(owner, result.TxHash)

	c.JSON(http.StatusOK, gin.H{
		"txHash":   result.TxHash,
		"status":   s.approvalFlow.State().Status,
		"approved": s.approvalFlow.State().Approved(),
	})
}

// -----------------------------------------------------------------------------
// Health & info
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Checks    []healthStatus `json:"checks,omitempty"`
	Timestamp string         `json:"timestamp"`
}

type healthStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	out := make([]healthStatus, len(statuses))
	for i, st := range statuses {
		out[i] = healthStatus{Name: st.Name, Healthy: st.Healthy, Detail: st.Detail}
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
		Checks:    out,
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
		"name":        "Peerswap",
		"description": "Dispute and settlement orchestration for P2P token trades",
		"version":     "0.1.0",
		"chainId":     s.cfg.ChainID,
		"arbitrator":  s.cfg.ArbitratorAddress,
	})
}
