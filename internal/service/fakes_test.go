package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"keyshop-service/internal/gateway"
	"keyshop-service/internal/models"
)

// memStore is an in-memory implementation of the store ports. AllocateKeys
// holds the mutex for the whole claim, mirroring the single-transaction
// guarantee of the real store.
type memStore struct {
	mu sync.Mutex

	products map[int64]*models.Product
	gateways map[int64]*models.Gateway
	orders   map[int64]*models.Order
	keys     map[int64]*models.Key
	txns     map[string]*models.Transaction

	nextOrderID int64
	nextKeyID   int64
	nextTxnID   int64

	ledgerErr error // injected RecordTransaction failure
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]*models.Product),
		gateways: make(map[int64]*models.Gateway),
		orders:   make(map[int64]*models.Order),
		keys:     make(map[int64]*models.Key),
		txns:     make(map[string]*models.Transaction),
	}
}

func (m *memStore) addProduct(p models.Product) {
	m.products[p.ID] = &p
}

func (m *memStore) addGateway(g models.Gateway) {
	m.gateways[g.ID] = &g
}

func (m *memStore) addKeys(productID int64, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < count; i++ {
		m.nextKeyID++
		m.keys[m.nextKeyID] = &models.Key{
			ID:        m.nextKeyID,
			ProductID: productID,
			Secret:    fmt.Sprintf("SECRET-%d", m.nextKeyID),
			Status:    models.KeyStatusUnassigned,
		}
	}
}

func (m *memStore) keyCounts(productID int64) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, k := range m.keys {
		if k.ProductID == productID {
			counts[k.Status]++
		}
	}
	return counts
}

// CatalogStore

func (m *memStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetGatewayByID(ctx context.Context, id int64) (*models.Gateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gateways[id]
	if !ok {
		return nil, models.ErrGatewayNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) ListEnabledGateways(ctx context.Context) ([]models.Gateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var gateways []models.Gateway
	for _, g := range m.gateways {
		if g.Enabled {
			gateways = append(gateways, *g)
		}
	}
	sort.Slice(gateways, func(i, j int) bool { return gateways[i].ID < gateways[j].ID })
	return gateways, nil
}

// OrderStore

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrderID++
	order.ID = m.nextOrderID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrderByTradeNo(ctx context.Context, tradeNo string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.TradeNo == tradeNo {
			cp := *o
			return &cp, nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (m *memStore) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (m *memStore) TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *memStore) SetOrderGateway(ctx context.Context, orderID, gatewayID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.GatewayID = gatewayID
	}
	return nil
}

func (m *memStore) FindExpiredOrders(ctx context.Context, now time.Time) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []models.Order
	for _, o := range m.orders {
		if o.Status == models.OrderStatusAwaitingPayment && o.ExpiresAt.Before(now) {
			expired = append(expired, *o)
		}
	}
	return expired, nil
}

// KeyStore

func (m *memStore) AllocateKeys(ctx context.Context, productID, orderID int64, quantity int) ([]models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, k := range m.keys {
		if k.ProductID == productID && k.Status == models.KeyStatusUnassigned {
			ids = append(ids, id)
		}
	}
	if len(ids) < quantity {
		return nil, models.ErrInsufficientInventory
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ids = ids[:quantity]

	now := time.Now()
	claimed := make([]models.Key, 0, quantity)
	for _, id := range ids {
		k := m.keys[id]
		k.Status = models.KeyStatusAssigned
		k.OrderID = orderID
		k.AssignedAt = &now
		claimed = append(claimed, *k)
	}
	return claimed, nil
}

func (m *memStore) ReleaseKeys(ctx context.Context, keyIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range keyIDs {
		if k, ok := m.keys[id]; ok && k.Status == models.KeyStatusAssigned {
			k.Status = models.KeyStatusUnassigned
			k.OrderID = 0
			k.AssignedAt = nil
		}
	}
	return nil
}

func (m *memStore) RevokeKey(ctx context.Context, keyID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[keyID]
	if !ok {
		return models.ErrKeyNotFound
	}
	k.Status = models.KeyStatusRevoked
	return nil
}

func (m *memStore) ImportKeys(ctx context.Context, productID int64, secrets []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, secret := range secrets {
		m.nextKeyID++
		m.keys[m.nextKeyID] = &models.Key{
			ID:        m.nextKeyID,
			ProductID: productID,
			Secret:    secret,
			Status:    models.KeyStatusUnassigned,
		}
	}
	return len(secrets), nil
}

func (m *memStore) CountUnassignedKeys(ctx context.Context, productID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, k := range m.keys {
		if k.ProductID == productID && k.Status == models.KeyStatusUnassigned {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetKeysByOrderID(ctx context.Context, orderID int64) ([]models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []models.Key
	for _, k := range m.keys {
		if k.OrderID == orderID && k.Status == models.KeyStatusAssigned {
			keys = append(keys, *k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

func (m *memStore) GetKeyByID(ctx context.Context, keyID int64) (*models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[keyID]
	if !ok {
		return nil, models.ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

// LedgerStore

func (m *memStore) RecordTransaction(ctx context.Context, txn *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledgerErr != nil {
		return m.ledgerErr
	}
	key := fmt.Sprintf("%d:%s", txn.GatewayID, txn.AccessCode)
	if _, exists := m.txns[key]; exists {
		return models.ErrDuplicateAccessCode
	}
	m.nextTxnID++
	txn.ID = m.nextTxnID
	txn.CreatedAt = time.Now()
	cp := *txn
	m.txns[key] = &cp
	return nil
}

func (m *memStore) TransactionExists(ctx context.Context, gatewayID int64, accessCode string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.txns[fmt.Sprintf("%d:%s", gatewayID, accessCode)]
	return exists, nil
}

func (m *memStore) GetTransactionsByOrderID(ctx context.Context, orderID int64) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var txns []models.Transaction
	for _, txn := range m.txns {
		if txn.OrderID == orderID {
			txns = append(txns, *txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })
	return txns, nil
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (r *recordingPublisher) record(event interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	return r.record(e)
}
func (r *recordingPublisher) PublishOrderAwaitingPayment(ctx context.Context, e *models.OrderAwaitingPaymentEvent) error {
	return r.record(e)
}
func (r *recordingPublisher) PublishOrderFulfilled(ctx context.Context, e *models.OrderFulfilledEvent) error {
	return r.record(e)
}
func (r *recordingPublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	return r.record(e)
}
func (r *recordingPublisher) PublishOrderExpired(ctx context.Context, e *models.OrderExpiredEvent) error {
	return r.record(e)
}
func (r *recordingPublisher) PublishPaymentNoStock(ctx context.Context, e *models.PaymentNoStockEvent) error {
	return r.record(e)
}

func (r *recordingPublisher) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, e := range r.events {
		switch ev := e.(type) {
		case *models.OrderCreatedEvent:
			types = append(types, ev.EventType)
		case *models.OrderAwaitingPaymentEvent:
			types = append(types, ev.EventType)
		case *models.OrderFulfilledEvent:
			types = append(types, ev.EventType)
		case *models.OrderCancelledEvent:
			types = append(types, ev.EventType)
		case *models.OrderExpiredEvent:
			types = append(types, ev.EventType)
		case *models.PaymentNoStockEvent:
			types = append(types, ev.EventType)
		}
	}
	return types
}

// testEnv wires the services against the in-memory store
type testEnv struct {
	store     *memStore
	publisher *recordingPublisher
	allocator *Allocator
	orders    *OrderService
	callbacks *CallbackProcessor
}

const (
	testProductID = int64(1)
	testGatewayID = int64(1)
	testSecret    = "test-gateway-secret"
)

func newTestEnv(keyCount int) *testEnv {
	ms := newMemStore()
	ms.addProduct(models.Product{
		ID:      testProductID,
		Name:    "Game Pass 30d",
		Price:   1500,
		Enabled: true,
	})
	ms.addGateway(models.Gateway{
		ID:         testGatewayID,
		Name:       "HMACPay Prod",
		Provider:   "hmacpay",
		MerchantID: "merchant-1",
		Secret:     testSecret,
		Enabled:    true,
	})
	ms.addKeys(testProductID, keyCount)

	pub := &recordingPublisher{}
	registry := gateway.NewRegistry(gateway.NewHMACPayAdapter(), gateway.NewEpayAdapter())
	allocator := NewAllocator(ms, nil, time.Second)
	orders := NewOrderService(ms, ms, ms, allocator, registry, pub, 15*time.Minute, "https://shop.example.com/return")
	callbacks := NewCallbackProcessor(ms, ms, ms, allocator, registry, nil, pub)

	return &testEnv{
		store:     ms,
		publisher: pub,
		allocator: allocator,
		orders:    orders,
		callbacks: callbacks,
	}
}

// placeOrder creates an order and moves it to AWAITING_PAYMENT on the test gateway
func (env *testEnv) placeOrder(ctx context.Context, quantity int) (*models.Order, error) {
	resp, err := env.orders.Create(ctx, &CreateOrderRequest{
		ProductID: testProductID,
		Quantity:  quantity,
		Email:     "buyer@example.com",
	})
	if err != nil {
		return nil, err
	}
	if _, err := env.orders.SelectGateway(ctx, resp.OrderID, testGatewayID); err != nil {
		return nil, err
	}
	return env.store.GetOrderByID(ctx, resp.OrderID)
}

// signedCallback builds a valid hmacpay success payload for an order
func signedCallback(tradeNo, accessCode string, amount int64, status string) []byte {
	payload := fmt.Sprintf("%s|%s|%d|%s", tradeNo, accessCode, amount, status)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(payload))
	raw, _ := json.Marshal(map[string]interface{}{
		"trade_no":    tradeNo,
		"access_code": accessCode,
		"amount":      amount,
		"status":      status,
		"signature":   hex.EncodeToString(mac.Sum(nil)),
	})
	return raw
}
