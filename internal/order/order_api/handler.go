package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-gifting/internal/auth"
	"ms-gifting/internal/models"
	"ms-gifting/internal/order"
	"ms-gifting/internal/order/db"
	"ms-gifting/internal/pickupcode"

	"github.com/go-chi/chi/v5"

	"ms-gifting/internal/logger"
)

type Handler struct {
	OrderService *order.OrderService
	Gateway      *order.StripeGateway
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, gateway *order.StripeGateway) *Handler {
	return &Handler{
		OrderService: orderService,
		Gateway:      gateway,
		Logger:       logger.NewLogger(),
	}
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "PlaceOrder: received request")

	var orderReq models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&orderReq); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceOrder: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	buyerID := auth.UserID(r.Context())
	if buyerID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.Logger.Debug("API", fmt.Sprintf("PlaceOrder: shop=%s items=%d buyer=%s", orderReq.ShopID, len(orderReq.Items), buyerID))

	response, err := h.OrderService.CreateOrder(orderReq, buyerID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceOrder: failed to create order: %v", err))
		switch {
		case errors.Is(err, db.ErrShopNotFound):
			http.Error(w, "Shop not found", http.StatusNotFound)
		case errors.Is(err, order.ErrEmptyOrder):
			http.Error(w, "Order must contain items with positive quantity and price", http.StatusBadRequest)
		default:
			http.Error(w, "Could not create order", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceOrder: failed to encode response: %v", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PlaceOrder: order %s created successfully", response.OrderID))
}

// ListMyOrders returns the authenticated buyer's order history.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := auth.UserID(r.Context())
	if buyerID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.OrderService.ListOrdersByBuyer(buyerID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyOrders: failed to list orders: %v", err))
		http.Error(w, "Could not list orders", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyOrders: failed to encode response: %v", err))
	}
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	orderData, err := h.OrderService.GetOrder(orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: order not found: %v", err))
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	// Buyers can only see their own orders; the shop's operators can see
	// orders placed against their shop.
	if orderData.BuyerID != auth.UserID(r.Context()) && orderData.ShopID != auth.ShopID(r.Context()) {
		h.Logger.LogSecurity("ORDER_ACCESS", fmt.Sprintf("User %s denied access to order %s", auth.UserID(r.Context()), orderID))
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orderData); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: failed to encode response: %v", err))
		return
	}
	h.Logger.Info("API", "GetOrder: response sent successfully")
}

// GetPickupQR renders the order's pickup code as a PNG the buyer can present
// at the shop counter.
func (h *Handler) GetPickupQR(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetPickupQR: orderId=%s", orderID))

	orderData, err := h.OrderService.GetOrder(orderID)
	if err != nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	if orderData.BuyerID != auth.UserID(r.Context()) {
		h.Logger.LogSecurity("ORDER_ACCESS", fmt.Sprintf("User %s denied QR for order %s", auth.UserID(r.Context()), orderID))
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	png, err := pickupcode.RenderQR(orderData.PickupCode, pickupcode.DefaultQRSize)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetPickupQR: failed to render QR: %v", err))
		http.Error(w, "Could not render QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("DeleteOrder: orderId=%s", orderID))

	err := h.OrderService.Cancel(orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteOrder: failed to cancel order: %v", err))
		switch {
		case errors.Is(err, db.ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, order.ErrInvalidTransition):
			http.Error(w, "Order can no longer be cancelled", http.StatusConflict)
		default:
			http.Error(w, "Could not cancel order", http.StatusInternalServerError)
		}
		return
	}
	h.Logger.Info("API", "DeleteOrder: order cancelled successfully")

	w.WriteHeader(http.StatusNoContent)
}

// CollectOrder is the shop counter endpoint: an operator presents the
// buyer's pickup code and the order moves to collected.
func (h *Handler) CollectOrder(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "CollectOrder: received request")

	var req models.CollectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CollectOrder: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	shopID := auth.ShopID(r.Context())
	if shopID == "" {
		http.Error(w, "Shop operator token required", http.StatusForbidden)
		return
	}

	collected, err := h.OrderService.Collect(shopID, req.PickupCode)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CollectOrder: collection failed: %v", err))
		switch {
		case errors.Is(err, db.ErrOrderNotFound):
			http.Error(w, "No outstanding order for that pickup code", http.StatusNotFound)
		case errors.Is(err, order.ErrWrongShop):
			http.Error(w, "Pickup code belongs to a different shop", http.StatusForbidden)
		case errors.Is(err, order.ErrNotYetPaid):
			http.Error(w, "Order has not been paid yet", http.StatusConflict)
		case errors.Is(err, order.ErrCodeExpired):
			http.Error(w, "Pickup code has expired", http.StatusGone)
		case errors.Is(err, db.ErrStaleTransition):
			http.Error(w, "Order was already collected", http.StatusConflict)
		default:
			http.Error(w, "Could not collect order", http.StatusInternalServerError)
		}
		return
	}

	response := models.CollectResponse{
		OrderID:     collected.OrderID,
		ShopNet:     collected.ShopNet,
		Currency:    collected.Currency,
		CollectedAt: *collected.CollectedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CollectOrder: failed to encode response: %v", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CollectOrder: order %s collected by shop %s", collected.OrderID, shopID))
}
