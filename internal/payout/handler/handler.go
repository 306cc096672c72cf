package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-gifting/internal/auth"
	"ms-gifting/internal/logger"
	"ms-gifting/internal/payout/storage"
	"ms-gifting/internal/utils"

	"github.com/gin-gonic/gin"
)

// PayoutHandler is the worker's small read-only admin surface: support staff
// look up what was (or wasn't) disbursed and why.
type PayoutHandler struct {
	payoutStore storage.Store
	logger      *logger.Logger
}

func NewPayoutHandler(payoutStore storage.Store, logger *logger.Logger) *PayoutHandler {
	return &PayoutHandler{
		payoutStore: payoutStore,
		logger:      logger,
	}
}

// requester identifies who is asking, for the audit log. The admin API sits
// on the internal network; tokens are parsed for attribution, not access
// control.
func (h *PayoutHandler) requester(c *gin.Context) string {
	token, err := auth.ExtractTokenFromRequest(c.Request)
	if err != nil {
		return "anonymous"
	}
	sub, err := auth.ExtractUserIDFromJWT(token)
	if err != nil {
		return "anonymous"
	}
	return sub
}

// GetPayoutByOrder returns the payout record for an order.
func (h *PayoutHandler) GetPayoutByOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	h.logger.Info("API", fmt.Sprintf("Payout lookup for order %s by %s", orderID, h.requester(c)))
	if orderID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request", "order id is required"))
		return
	}

	payout, err := h.payoutStore.GetPayoutByOrderID(orderID)
	if err != nil {
		if errors.Is(err, storage.ErrPayoutNotFound) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Payout not found", "no disbursement attempted for this order"))
			return
		}
		h.logger.Error("API", "Failed to fetch payout: "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch payout", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payout retrieved", payout))
}

// ListPayouts returns a shop's payout history, newest first.
func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	shopID := c.Query("shop_id")
	h.logger.Info("API", fmt.Sprintf("Payout list for shop %s by %s", shopID, h.requester(c)))
	if shopID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request", "shop_id query parameter is required"))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	payouts, err := h.payoutStore.ListPayouts(shopID, limit, offset)
	if err != nil {
		h.logger.Error("API", "Failed to list payouts: "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to list payouts", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payouts retrieved", payouts))
}

// Health reports worker liveness and storage reachability.
func (h *PayoutHandler) Health(c *gin.Context) {
	if err := h.payoutStore.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Storage unavailable", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("OK", nil))
}
