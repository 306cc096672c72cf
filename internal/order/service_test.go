package order_test

import (
	"errors"
	"testing"
	"time"

	"ms-gifting/internal/fees"
	"ms-gifting/internal/logger"
	"ms-gifting/internal/models"
	"ms-gifting/internal/order"
	"ms-gifting/internal/order/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// Mock implementations
type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateOrder(o models.Order, items []models.OrderLineItem) error {
	args := m.Called(o, items)
	return args.Error(0)
}

func (m *MockDBLayer) GetOrderByID(id string) (*models.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) GetOrderByPickupCode(code string) (*models.Order, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) PickupCodeInUse(code string) (bool, error) {
	args := m.Called(code)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) GetLineItems(orderID string) ([]models.OrderLineItem, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OrderLineItem), args.Error(1)
}

func (m *MockDBLayer) GetOrdersByBuyer(buyerID string) ([]models.Order, error) {
	args := m.Called(buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockDBLayer) GetShopByID(id string) (*models.Shop, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Shop), args.Error(1)
}

func (m *MockDBLayer) TransitionStatus(orderID string, from, to models.OrderStatus) error {
	args := m.Called(orderID, from, to)
	return args.Error(0)
}

func (m *MockDBLayer) MarkPaid(orderID, transactionRef string) error {
	args := m.Called(orderID, transactionRef)
	return args.Error(0)
}

func (m *MockDBLayer) MarkCollected(orderID string) error {
	args := m.Called(orderID)
	return args.Error(0)
}

func (m *MockDBLayer) UpdatePaymentIntent(orderID, intentID string) error {
	args := m.Called(orderID, intentID)
	return args.Error(0)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) InitiatePayment(orderID string, buyerTotal int64, currency string) (*order.PaymentLink, error) {
	args := m.Called(orderID, buyerTotal, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.PaymentLink), args.Error(1)
}

type MockKafkaProducer struct {
	mock.Mock
}

func (m *MockKafkaProducer) Publish(topic string, key string, value []byte) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

type MockDedupGuard struct {
	mock.Mock
}

func (m *MockDedupGuard) FirstDelivery(transactionRef string) (bool, error) {
	args := m.Called(transactionRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupGuard) Forget(transactionRef string) error {
	args := m.Called(transactionRef)
	return args.Error(0)
}

type MockCodeGenerator struct {
	mock.Mock
}

func (m *MockCodeGenerator) Generate() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

type serviceMocks struct {
	db      *MockDBLayer
	gateway *MockPaymentGateway
	kafka   *MockKafkaProducer
	dedup   *MockDedupGuard
	codes   *MockCodeGenerator
}

func newTestService() (*order.OrderService, *serviceMocks) {
	mocks := &serviceMocks{
		db:      new(MockDBLayer),
		gateway: new(MockPaymentGateway),
		kafka:   new(MockKafkaProducer),
		dedup:   new(MockDedupGuard),
		codes:   new(MockCodeGenerator),
	}
	topics := order.Topics{
		OrderCreated:   "gifting.order.created",
		OrderPaid:      "gifting.order.paid",
		OrderCollected: "gifting.order.collected",
		OrderCancelled: "gifting.order.cancelled",
	}
	policy := fees.Policy{ProcessingFeeFlat: 150, ProcessingFeeBps: 290}
	svc := order.NewOrderService(mocks.db, mocks.gateway, mocks.kafka, mocks.dedup, mocks.codes, policy, topics, "kes", 0, logger.NewLogger())
	return svc, mocks
}

func testShop() *models.Shop {
	return &models.Shop{
		ShopID:            "shop1",
		Name:              "Mama Njeri Groceries",
		CommissionRateBps: 500,
		PayoutAccountID:   "acct_123",
		PayoutAccountName: "Mama Njeri",
	}
}

// Tests start here
func TestCreateOrder(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetShopByID", "shop1").Return(testShop(), nil)
	m.codes.On("Generate").Return("428613", nil)
	m.db.On("PickupCodeInUse", "428613").Return(false, nil)
	m.db.On("CreateOrder", mock.AnythingOfType("models.Order"), mock.Anything).Return(nil)
	m.gateway.On("InitiatePayment", mock.AnythingOfType("string"), int64(10440), "kes").
		Return(&order.PaymentLink{PaymentIntentID: "pi_123", ClientSecret: "secret"}, nil)
	m.db.On("UpdatePaymentIntent", mock.AnythingOfType("string"), "pi_123").Return(nil)
	m.kafka.On("Publish", "gifting.order.created", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.CreateOrder(models.OrderRequest{
		ShopID: "shop1",
		Items: []models.LineItemRequest{
			{ProductID: "prod1", Quantity: 2, UnitPrice: 2500},
			{ProductID: "prod2", Quantity: 1, UnitPrice: 5000},
		},
	}, "buyer123")

	assert.NoError(t, err)
	// subtotal 10000, commission 5% = 500, fee 150 + 2.9% = 440, total 10440
	assert.Equal(t, int64(10000), resp.Subtotal)
	assert.Equal(t, int64(440), resp.ProcessingFee)
	assert.Equal(t, int64(10440), resp.BuyerTotal)
	assert.Equal(t, "428613", resp.PickupCode)
	assert.Equal(t, "secret", resp.ClientSecret)

	m.db.AssertCalled(t, "CreateOrder", mock.MatchedBy(func(o models.Order) bool {
		return o.Status == models.StatusPendingPayment &&
			o.Commission == 500 &&
			o.ShopNet == 9500 &&
			o.BuyerTotal == 10440
	}), mock.Anything)
	m.kafka.AssertCalled(t, "Publish", "gifting.order.created", mock.Anything, mock.Anything)
}

func TestCreateOrderPromoZeroCommission(t *testing.T) {
	svc, m := newTestService()

	promoStart := time.Now().Add(-time.Hour)
	promoEnd := time.Now().Add(time.Hour)
	shop := testShop()
	shop.PromoStart = &promoStart
	shop.PromoEnd = &promoEnd

	m.db.On("GetShopByID", "shop1").Return(shop, nil)
	m.codes.On("Generate").Return("111111", nil)
	m.db.On("PickupCodeInUse", "111111").Return(false, nil)
	m.db.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	m.gateway.On("InitiatePayment", mock.Anything, mock.Anything, mock.Anything).
		Return(&order.PaymentLink{PaymentIntentID: "pi_123", ClientSecret: "secret"}, nil)
	m.db.On("UpdatePaymentIntent", mock.Anything, mock.Anything).Return(nil)
	m.kafka.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := svc.CreateOrder(models.OrderRequest{
		ShopID: "shop1",
		Items:  []models.LineItemRequest{{ProductID: "prod1", Quantity: 1, UnitPrice: 10000}},
	}, "buyer123")

	assert.NoError(t, err)
	m.db.AssertCalled(t, "CreateOrder", mock.MatchedBy(func(o models.Order) bool {
		return o.Commission == 0 && o.ShopNet == 10000
	}), mock.Anything)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	svc, m := newTestService()
	m.db.On("GetShopByID", "shop1").Return(testShop(), nil)

	_, err := svc.CreateOrder(models.OrderRequest{ShopID: "shop1"}, "buyer123")
	assert.ErrorIs(t, err, order.ErrEmptyOrder)

	_, err = svc.CreateOrder(models.OrderRequest{
		ShopID: "shop1",
		Items:  []models.LineItemRequest{{ProductID: "prod1", Quantity: 0, UnitPrice: 100}},
	}, "buyer123")
	assert.ErrorIs(t, err, order.ErrEmptyOrder)
	m.db.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestCreateOrderUnknownShop(t *testing.T) {
	svc, m := newTestService()
	m.db.On("GetShopByID", "ghost").Return(nil, db.ErrShopNotFound)

	_, err := svc.CreateOrder(models.OrderRequest{
		ShopID: "ghost",
		Items:  []models.LineItemRequest{{ProductID: "prod1", Quantity: 1, UnitPrice: 100}},
	}, "buyer123")
	assert.ErrorIs(t, err, db.ErrShopNotFound)
}

func TestCreateOrderCodeCollisionRetries(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetShopByID", "shop1").Return(testShop(), nil)
	m.codes.On("Generate").Return("777777", nil).Once()
	m.codes.On("Generate").Return("888888", nil).Once()
	m.db.On("PickupCodeInUse", "777777").Return(true, nil)
	m.db.On("PickupCodeInUse", "888888").Return(false, nil)
	m.db.On("CreateOrder", mock.Anything, mock.Anything).Return(nil)
	m.gateway.On("InitiatePayment", mock.Anything, mock.Anything, mock.Anything).
		Return(&order.PaymentLink{PaymentIntentID: "pi_123", ClientSecret: "secret"}, nil)
	m.db.On("UpdatePaymentIntent", mock.Anything, mock.Anything).Return(nil)
	m.kafka.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.CreateOrder(models.OrderRequest{
		ShopID: "shop1",
		Items:  []models.LineItemRequest{{ProductID: "prod1", Quantity: 1, UnitPrice: 100}},
	}, "buyer123")

	assert.NoError(t, err)
	assert.Equal(t, "888888", resp.PickupCode)
}

func TestCreateOrderCodeSpaceExhausted(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetShopByID", "shop1").Return(testShop(), nil)
	m.codes.On("Generate").Return("777777", nil)
	m.db.On("PickupCodeInUse", "777777").Return(true, nil)

	_, err := svc.CreateOrder(models.OrderRequest{
		ShopID: "shop1",
		Items:  []models.LineItemRequest{{ProductID: "prod1", Quantity: 1, UnitPrice: 100}},
	}, "buyer123")
	assert.ErrorIs(t, err, order.ErrCodeSpaceExhausted)
	m.db.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestHandlePaymentEventSuccess(t *testing.T) {
	svc, m := newTestService()
	orderID := uuid.New().String()

	m.dedup.On("FirstDelivery", "pi_abc").Return(true, nil)
	m.db.On("MarkPaid", orderID, "pi_abc").Return(nil)
	m.db.On("GetOrderByID", orderID).Return(&models.Order{
		OrderID: orderID,
		ShopID:  "shop1",
		Status:  models.StatusPaid,
	}, nil)
	m.kafka.On("Publish", "gifting.order.paid", orderID, mock.Anything).Return(nil)

	err := svc.HandlePaymentEvent(&order.VerifiedPaymentEvent{
		Type:           "payment_intent.succeeded",
		Succeeded:      true,
		OrderID:        orderID,
		TransactionRef: "pi_abc",
	})

	assert.NoError(t, err)
	m.db.AssertCalled(t, "MarkPaid", orderID, "pi_abc")
	m.kafka.AssertCalled(t, "Publish", "gifting.order.paid", orderID, mock.Anything)
}

func TestHandlePaymentEventDuplicateDelivery(t *testing.T) {
	svc, m := newTestService()

	m.dedup.On("FirstDelivery", "pi_abc").Return(false, nil)

	err := svc.HandlePaymentEvent(&order.VerifiedPaymentEvent{
		Succeeded:      true,
		OrderID:        "order1",
		TransactionRef: "pi_abc",
	})

	assert.NoError(t, err)
	m.db.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestHandlePaymentEventReplayPastGuard(t *testing.T) {
	svc, m := newTestService()

	// Guard unavailable, conditional write reports the replay instead.
	m.dedup.On("FirstDelivery", "pi_abc").Return(false, errors.New("redis down"))
	m.db.On("MarkPaid", "order1", "pi_abc").Return(db.ErrStaleTransition)

	err := svc.HandlePaymentEvent(&order.VerifiedPaymentEvent{
		Succeeded:      true,
		OrderID:        "order1",
		TransactionRef: "pi_abc",
	})

	assert.NoError(t, err, "replays must be acknowledged, not retried")
	m.kafka.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlePaymentEventTransientFailureReleasesGuard(t *testing.T) {
	svc, m := newTestService()

	// Delivery one claims the guard but the write fails; the guard must be
	// released so the gateway's retry is not swallowed as a duplicate.
	m.dedup.On("FirstDelivery", "pi_abc").Return(true, nil)
	m.dedup.On("Forget", "pi_abc").Return(nil)
	m.db.On("MarkPaid", "order1", "pi_abc").Return(errors.New("connection reset")).Once()
	m.db.On("MarkPaid", "order1", "pi_abc").Return(nil).Once()
	m.db.On("GetOrderByID", "order1").Return(&models.Order{
		OrderID: "order1",
		Status:  models.StatusPaid,
	}, nil)
	m.kafka.On("Publish", "gifting.order.paid", "order1", mock.Anything).Return(nil)

	ev := &order.VerifiedPaymentEvent{
		Succeeded:      true,
		OrderID:        "order1",
		TransactionRef: "pi_abc",
	}

	err := svc.HandlePaymentEvent(ev)
	assert.Error(t, err)
	m.dedup.AssertCalled(t, "Forget", "pi_abc")

	err = svc.HandlePaymentEvent(ev)
	assert.NoError(t, err)
	m.db.AssertNumberOfCalls(t, "MarkPaid", 2)
	m.kafka.AssertCalled(t, "Publish", "gifting.order.paid", "order1", mock.Anything)
}

func TestHandlePaymentEventFailureCancelsOrder(t *testing.T) {
	svc, m := newTestService()

	m.db.On("TransitionStatus", "order1", models.StatusPendingPayment, models.StatusCancelled).Return(nil)
	m.db.On("GetOrderByID", "order1").Return(&models.Order{
		OrderID: "order1",
		Status:  models.StatusCancelled,
	}, nil)
	m.kafka.On("Publish", "gifting.order.cancelled", "order1", mock.Anything).Return(nil)

	err := svc.HandlePaymentEvent(&order.VerifiedPaymentEvent{
		Type:    "payment_intent.payment_failed",
		OrderID: "order1",
	})

	assert.NoError(t, err)
	m.kafka.AssertCalled(t, "Publish", "gifting.order.cancelled", "order1", mock.Anything)
}

func TestHandlePaymentEventIgnoresUnboundTypes(t *testing.T) {
	svc, m := newTestService()

	err := svc.HandlePaymentEvent(&order.VerifiedPaymentEvent{Type: "charge.refunded"})
	assert.NoError(t, err)
	m.db.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
	m.db.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollect(t *testing.T) {
	svc, m := newTestService()
	now := time.Now()
	paid := &models.Order{
		OrderID:    "order1",
		ShopID:     "shop1",
		Status:     models.StatusPaid,
		PickupCode: "428613",
		ShopNet:    9500,
		CreatedAt:  now,
	}
	collectedAt := now.Add(time.Minute)
	collected := &models.Order{
		OrderID:     "order1",
		ShopID:      "shop1",
		Status:      models.StatusCollected,
		PickupCode:  "428613",
		ShopNet:     9500,
		CreatedAt:   now,
		CollectedAt: &collectedAt,
	}

	m.db.On("GetOrderByPickupCode", "428613").Return(paid, nil)
	m.db.On("MarkCollected", "order1").Return(nil)
	m.db.On("GetOrderByID", "order1").Return(collected, nil)
	m.kafka.On("Publish", "gifting.order.collected", "order1", mock.Anything).Return(nil)

	got, err := svc.Collect("shop1", "428613")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusCollected, got.Status)
	assert.Equal(t, int64(9500), got.ShopNet)
	m.kafka.AssertCalled(t, "Publish", "gifting.order.collected", "order1", mock.Anything)
}

func TestCollectWrongShop(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetOrderByPickupCode", "428613").Return(&models.Order{
		OrderID:    "order1",
		ShopID:     "shop1",
		Status:     models.StatusPaid,
		PickupCode: "428613",
	}, nil)

	_, err := svc.Collect("shop2", "428613")
	assert.ErrorIs(t, err, order.ErrWrongShop)
	m.db.AssertNotCalled(t, "MarkCollected", mock.Anything)
}

func TestCollectNotYetPaid(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetOrderByPickupCode", "428613").Return(&models.Order{
		OrderID:    "order1",
		ShopID:     "shop1",
		Status:     models.StatusPendingPayment,
		PickupCode: "428613",
	}, nil)

	_, err := svc.Collect("shop1", "428613")
	assert.ErrorIs(t, err, order.ErrNotYetPaid)
}

func TestCollectUnknownCode(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetOrderByPickupCode", "000000").Return(nil, db.ErrOrderNotFound)

	_, err := svc.Collect("shop1", "000000")
	assert.ErrorIs(t, err, db.ErrOrderNotFound)
}

func TestCollectExpiredCode(t *testing.T) {
	svc, m := newTestService()
	svc.CodeTTL = 14 * 24 * time.Hour

	m.db.On("GetOrderByPickupCode", "428613").Return(&models.Order{
		OrderID:    "order1",
		ShopID:     "shop1",
		Status:     models.StatusPaid,
		PickupCode: "428613",
		CreatedAt:  time.Now().Add(-15 * 24 * time.Hour),
	}, nil)

	_, err := svc.Collect("shop1", "428613")
	assert.ErrorIs(t, err, order.ErrCodeExpired)
	m.db.AssertNotCalled(t, "MarkCollected", mock.Anything)
}

func TestCollectDoubleScan(t *testing.T) {
	svc, m := newTestService()

	// The code resolves to an order already collected by an earlier scan.
	collectedAt := time.Now().Add(-time.Minute)
	m.db.On("GetOrderByPickupCode", "428613").Return(&models.Order{
		OrderID:     "order1",
		ShopID:      "shop1",
		Status:      models.StatusCollected,
		PickupCode:  "428613",
		CreatedAt:   time.Now().Add(-time.Hour),
		CollectedAt: &collectedAt,
	}, nil)

	_, err := svc.Collect("shop1", "428613")
	assert.ErrorIs(t, err, db.ErrStaleTransition)
	m.db.AssertNotCalled(t, "MarkCollected", mock.Anything)
	m.kafka.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectLosesRace(t *testing.T) {
	svc, m := newTestService()

	// The order read as paid, but a concurrent scan won the conditional
	// write first.
	m.db.On("GetOrderByPickupCode", "428613").Return(&models.Order{
		OrderID:    "order1",
		ShopID:     "shop1",
		Status:     models.StatusPaid,
		PickupCode: "428613",
		CreatedAt:  time.Now(),
	}, nil)
	m.db.On("MarkCollected", "order1").Return(db.ErrStaleTransition)

	_, err := svc.Collect("shop1", "428613")
	assert.ErrorIs(t, err, db.ErrStaleTransition)
	m.kafka.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCollectCancelledCode(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetOrderByPickupCode", "428613").Return(&models.Order{
		OrderID:    "order1",
		ShopID:     "shop1",
		Status:     models.StatusCancelled,
		PickupCode: "428613",
	}, nil)

	_, err := svc.Collect("shop1", "428613")
	assert.ErrorIs(t, err, db.ErrOrderNotFound)
	m.db.AssertNotCalled(t, "MarkCollected", mock.Anything)
}

func TestCancelPendingOrder(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetOrderByID", "order1").Return(&models.Order{
		OrderID: "order1",
		Status:  models.StatusPendingPayment,
	}, nil)
	m.db.On("TransitionStatus", "order1", models.StatusPendingPayment, models.StatusCancelled).Return(nil)
	m.kafka.On("Publish", "gifting.order.cancelled", "order1", mock.Anything).Return(nil)

	err := svc.Cancel("order1")
	assert.NoError(t, err)
	m.kafka.AssertCalled(t, "Publish", "gifting.order.cancelled", "order1", mock.Anything)
}

func TestCancelPaidOrderRefused(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetOrderByID", "order1").Return(&models.Order{
		OrderID: "order1",
		Status:  models.StatusPaid,
	}, nil)

	err := svc.Cancel("order1")
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	m.db.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetOrder(t *testing.T) {
	svc, m := newTestService()

	m.db.On("GetOrderByID", "order1").Return(&models.Order{
		OrderID: "order1",
		Status:  models.StatusPaid,
	}, nil)
	m.db.On("GetLineItems", "order1").Return([]models.OrderLineItem{
		{LineItemID: "li1", OrderID: "order1", ProductID: "prod1", Quantity: 2, UnitPrice: 2500},
	}, nil)

	got, err := svc.GetOrder("order1")
	assert.NoError(t, err)
	assert.Equal(t, "order1", got.OrderID)
	assert.Len(t, got.Items, 1)

	m.db.On("GetOrderByID", "missing").Return(nil, db.ErrOrderNotFound)
	_, err = svc.GetOrder("missing")
	assert.ErrorIs(t, err, db.ErrOrderNotFound)
}
