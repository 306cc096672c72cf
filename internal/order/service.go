package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-gifting/internal/fees"
	"ms-gifting/internal/logger"
	"ms-gifting/internal/models"
	"ms-gifting/internal/order/db"

	"github.com/google/uuid"
)

// maxCodeAttempts bounds the regenerate-on-collision loop for pickup codes.
const maxCodeAttempts = 5

type DBLayer interface {
	CreateOrder(order models.Order, items []models.OrderLineItem) error
	GetOrderByID(id string) (*models.Order, error)
	GetOrderByPickupCode(code string) (*models.Order, error)
	PickupCodeInUse(code string) (bool, error)
	GetLineItems(orderID string) ([]models.OrderLineItem, error)
	GetOrdersByBuyer(buyerID string) ([]models.Order, error)
	GetShopByID(id string) (*models.Shop, error)
	TransitionStatus(orderID string, from, to models.OrderStatus) error
	MarkPaid(orderID, transactionRef string) error
	MarkCollected(orderID string) error
	UpdatePaymentIntent(orderID, intentID string) error
}

type PaymentGateway interface {
	InitiatePayment(orderID string, buyerTotal int64, currency string) (*PaymentLink, error)
}

type KafkaPublisher interface {
	Publish(topic string, key string, value []byte) error
}

// DedupGuard is the fast-path filter for replayed webhook deliveries. The
// store's conditional write remains authoritative; a guard failure is never
// fatal.
type DedupGuard interface {
	FirstDelivery(transactionRef string) (bool, error)
	Forget(transactionRef string) error
}

type CodeGenerator interface {
	Generate() (string, error)
}

// Topics names the Kafka topics the engine publishes lifecycle events to.
type Topics struct {
	OrderCreated   string
	OrderPaid      string
	OrderCollected string
	OrderCancelled string
}

// OrderService is the lifecycle state machine: it owns every transition
// between pending_payment, paid, collected and cancelled, and emits events
// for downstream consumers (notifications, payout) instead of calling them
// inline.
type OrderService struct {
	DB       DBLayer
	Gateway  PaymentGateway
	Kafka    KafkaPublisher
	Dedup    DedupGuard
	Codes    CodeGenerator
	Fees     fees.Policy
	Topics   Topics
	Currency string
	// CodeTTL is the optional pickup-code validity window measured from
	// order creation. Zero disables expiry.
	CodeTTL time.Duration

	logger *logger.Logger
}

func NewOrderService(dbLayer DBLayer, gateway PaymentGateway, kafka KafkaPublisher, dedup DedupGuard, codes CodeGenerator, feePolicy fees.Policy, topics Topics, currency string, codeTTL time.Duration, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:       dbLayer,
		Gateway:  gateway,
		Kafka:    kafka,
		Dedup:    dedup,
		Codes:    codes,
		Fees:     feePolicy,
		Topics:   topics,
		Currency: currency,
		CodeTTL:  codeTTL,
		logger:   log,
	}
}

// CreateOrder turns a validated cart into a pending_payment order: freezes
// the fee breakdown at today's commission terms, allocates a unique pickup
// code, persists everything, and asks the gateway for a payment link. The
// external gateway call happens after the write, outside any guard.
func (s *OrderService) CreateOrder(req models.OrderRequest, buyerID string) (*models.OrderResponse, error) {
	shop, err := s.DB.GetShopByID(req.ShopID)
	if err != nil {
		return nil, err
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	var subtotal int64
	orderID := uuid.NewString()
	items := make([]models.OrderLineItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.UnitPrice <= 0 {
			return nil, ErrEmptyOrder
		}
		subtotal += item.UnitPrice * int64(item.Quantity)
		items = append(items, models.OrderLineItem{
			LineItemID: uuid.NewString(),
			OrderID:    orderID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	if subtotal <= 0 {
		return nil, ErrEmptyOrder
	}

	now := time.Now()
	breakdown, err := s.Fees.Quote(subtotal, shop.CommissionRateBps, shop.PromoWindow(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fees for shop %s: %w", shop.ShopID, err)
	}

	code, err := s.allocatePickupCode()
	if err != nil {
		return nil, err
	}

	order := models.Order{
		OrderID:       orderID,
		ShopID:        shop.ShopID,
		BuyerID:       buyerID,
		Subtotal:      subtotal,
		Commission:    breakdown.Commission,
		ProcessingFee: breakdown.ProcessingFee,
		BuyerTotal:    breakdown.BuyerTotal,
		ShopNet:       breakdown.ShopNet,
		Currency:      s.Currency,
		PickupCode:    code,
		Status:        models.StatusPendingPayment,
		CreatedAt:     now,
	}

	if err := s.DB.CreateOrder(order, items); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.logger.LogOrder("CREATE", orderID, fmt.Sprintf("subtotal=%d commission=%d shop_net=%d", subtotal, breakdown.Commission, breakdown.ShopNet))

	link, err := s.Gateway.InitiatePayment(orderID, breakdown.BuyerTotal, s.Currency)
	if err != nil {
		// The order stays pending_payment; the buyer can retry checkout or
		// the order is cancelled on abandonment.
		return nil, fmt.Errorf("order %s created but payment initiation failed: %w", orderID, err)
	}
	if err := s.DB.UpdatePaymentIntent(orderID, link.PaymentIntentID); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Failed to attach payment intent %s to order %s: %v", link.PaymentIntentID, orderID, err))
	}

	s.publishEvent(s.Topics.OrderCreated, models.EventOrderCreated, order)

	return &models.OrderResponse{
		OrderID:         orderID,
		ShopID:          shop.ShopID,
		BuyerID:         buyerID,
		PickupCode:      code,
		Subtotal:        subtotal,
		ProcessingFee:   breakdown.ProcessingFee,
		BuyerTotal:      breakdown.BuyerTotal,
		Currency:        s.Currency,
		PaymentIntentID: link.PaymentIntentID,
		ClientSecret:    link.ClientSecret,
	}, nil
}

// allocatePickupCode regenerates on collision with outstanding orders rather
// than ever accepting a duplicate: two live identical codes would let one
// buyer collect another's order.
func (s *OrderService) allocatePickupCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.Codes.Generate()
		if err != nil {
			return "", err
		}
		inUse, err := s.DB.PickupCodeInUse(code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
		s.logger.Warn("ORDER", fmt.Sprintf("Pickup code collision on attempt %d, regenerating", attempt+1))
	}
	return "", ErrCodeSpaceExhausted
}

// HandlePaymentEvent reconciles a verified gateway event with the state
// machine. Replays are safe: the Redis guard short-circuits most of them and
// the conditional write catches the rest, so the caller can always return
// 2xx to the gateway without duplicate side effects.
func (s *OrderService) HandlePaymentEvent(ev *VerifiedPaymentEvent) error {
	if ev.OrderID == "" {
		s.logger.Info("WEBHOOK", fmt.Sprintf("Ignoring event type %s with no order binding", ev.Type))
		return nil
	}

	if !ev.Succeeded {
		return s.cancelAfterFailedPayment(ev.OrderID)
	}

	claimed := false
	if s.Dedup != nil {
		first, err := s.Dedup.FirstDelivery(ev.TransactionRef)
		if err != nil {
			// Guard unavailable; fall through to the authoritative write.
			s.logger.Warn("WEBHOOK", fmt.Sprintf("Dedup guard error for %s: %v", ev.TransactionRef, err))
		} else if !first {
			s.logger.Info("WEBHOOK", fmt.Sprintf("Duplicate delivery of %s, already processed", ev.TransactionRef))
			return nil
		} else {
			claimed = true
		}
	}

	err := s.DB.MarkPaid(ev.OrderID, ev.TransactionRef)
	if errors.Is(err, db.ErrStaleTransition) {
		s.logger.Info("WEBHOOK", fmt.Sprintf("Order %s already past pending_payment, replay is a no-op", ev.OrderID))
		return nil
	}
	if err != nil {
		// The write failed transiently; release the guard so the gateway's
		// retry reaches the conditional write instead of being swallowed as
		// a duplicate.
		if claimed {
			if ferr := s.Dedup.Forget(ev.TransactionRef); ferr != nil {
				s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to release dedup guard for %s: %v", ev.TransactionRef, ferr))
			}
		}
		return fmt.Errorf("failed to confirm payment for order %s: %w", ev.OrderID, err)
	}

	s.logger.LogOrder("PAID", ev.OrderID, fmt.Sprintf("transaction=%s", ev.TransactionRef))

	if updated, err := s.DB.GetOrderByID(ev.OrderID); err == nil {
		s.publishEvent(s.Topics.OrderPaid, models.EventOrderPaid, *updated)
	}
	return nil
}

func (s *OrderService) cancelAfterFailedPayment(orderID string) error {
	err := s.DB.TransitionStatus(orderID, models.StatusPendingPayment, models.StatusCancelled)
	if errors.Is(err, db.ErrStaleTransition) {
		s.logger.Info("WEBHOOK", fmt.Sprintf("Order %s no longer pending, ignoring failed-payment event", orderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cancel order %s after payment failure: %w", orderID, err)
	}

	s.logger.LogOrder("CANCEL", orderID, "payment failed at gateway")
	if updated, err := s.DB.GetOrderByID(orderID); err == nil {
		s.publishEvent(s.Topics.OrderCancelled, models.EventOrderCancelled, *updated)
	}
	return nil
}

// Collect is the paid -> collected transition, triggered by a shop operator
// presenting the buyer's pickup code. The order resolved by the exact code
// must belong to the operator's shop and be exactly paid; everything else is
// a typed failure that changes nothing.
func (s *OrderService) Collect(operatorShopID, pickupCode string) (*models.Order, error) {
	order, err := s.DB.GetOrderByPickupCode(pickupCode)
	if err != nil {
		return nil, err
	}

	// A cancelled order's code is dead; treat it like an unknown code.
	if order.Status == models.StatusCancelled {
		return nil, db.ErrOrderNotFound
	}

	if order.ShopID != operatorShopID {
		s.logger.LogSecurity("COLLECT_WRONG_SHOP", fmt.Sprintf("Operator of shop %s presented code for shop %s", operatorShopID, order.ShopID))
		return nil, ErrWrongShop
	}

	if order.Status == models.StatusPendingPayment {
		return nil, ErrNotYetPaid
	}

	// A re-scan of an already collected order reports stale, the same as
	// losing the conditional write in a race.
	if order.Status == models.StatusCollected {
		return nil, db.ErrStaleTransition
	}

	if s.CodeTTL > 0 && time.Since(order.CreatedAt) > s.CodeTTL {
		return nil, ErrCodeExpired
	}

	if err := s.DB.MarkCollected(order.OrderID); err != nil {
		return nil, err
	}

	s.logger.LogOrder("COLLECT", order.OrderID, fmt.Sprintf("shop=%s code=%s", operatorShopID, pickupCode))

	updated, err := s.DB.GetOrderByID(order.OrderID)
	if err != nil {
		return nil, err
	}

	// The "ready for payout" signal: the payout worker consumes this event.
	s.publishEvent(s.Topics.OrderCollected, models.EventOrderCollected, *updated)
	return updated, nil
}

// Cancel aborts an order before payment confirmation. Once paid, refunds are
// a separate process and the engine refuses.
func (s *OrderService) Cancel(orderID string) error {
	order, err := s.DB.GetOrderByID(orderID)
	if err != nil {
		return err
	}
	if order.Status != models.StatusPendingPayment {
		return ErrInvalidTransition
	}

	err = s.DB.TransitionStatus(orderID, models.StatusPendingPayment, models.StatusCancelled)
	if errors.Is(err, db.ErrStaleTransition) {
		return ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	s.logger.LogOrder("CANCEL", orderID, "cancelled before payment")
	order.Status = models.StatusCancelled
	s.publishEvent(s.Topics.OrderCancelled, models.EventOrderCancelled, *order)
	return nil
}

// GetOrder returns the order with its line items.
func (s *OrderService) GetOrder(orderID string) (*models.OrderWithItems, error) {
	order, err := s.DB.GetOrderByID(orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.DB.GetLineItems(orderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithItems{Order: *order, Items: items}, nil
}

// ListOrdersByBuyer returns a buyer's order history, newest first.
func (s *OrderService) ListOrdersByBuyer(buyerID string) ([]models.Order, error) {
	return s.DB.GetOrdersByBuyer(buyerID)
}

// publishEvent streams a lifecycle event; delivery problems are logged, not
// allowed to fail the transition that already happened.
func (s *OrderService) publishEvent(topic, eventType string, order models.Order) {
	event := models.OrderEvent{
		Type:       eventType,
		OrderID:    order.OrderID,
		ShopID:     order.ShopID,
		BuyerID:    order.BuyerID,
		Status:     order.Status,
		PickupCode: order.PickupCode,
		BuyerTotal: order.BuyerTotal,
		ShopNet:    order.ShopNet,
		Currency:   order.Currency,
		OccurredAt: time.Now(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to marshal %s event for order %s: %v", eventType, order.OrderID, err))
		return
	}

	if err := s.Kafka.Publish(topic, order.OrderID, value); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event for order %s: %v", eventType, order.OrderID, err))
		return
	}
	s.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("%s order=%s", eventType, order.OrderID))
}
