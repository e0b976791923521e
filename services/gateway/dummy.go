package gatewaysvc

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/bursar/core/finance"
)

// DummyGateway settles every order the first time its status is asked. Used in DEV & tests.
type DummyGateway struct {
	baseURL string

	mu     sync.Mutex
	orders map[string]finance.GatewayStatus
}

var _ finance.Gateway = (*DummyGateway)(nil)

func NewDummyGateway(baseURL string) *DummyGateway {
	return &DummyGateway{baseURL: baseURL, orders: make(map[string]finance.GatewayStatus)}
}

func (gw *DummyGateway) CreateOrder(_ context.Context, order finance.GatewayOrder) (finance.GatewayCheckout, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.orders[order.ID] = finance.GatewaySettled
	return finance.GatewayCheckout{
		Token:       uuid.New().String(),
		RedirectURL: gw.baseURL + "/dummy-checkout/" + order.ID,
	}, nil
}

// Fail makes the next status check of orderID answer "failed".
func (gw *DummyGateway) Fail(orderID string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.orders[orderID] = finance.GatewayFailed
}

func (gw *DummyGateway) OrderStatus(_ context.Context, orderID string) (finance.GatewayStatus, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if status, ok := gw.orders[orderID]; ok {
		return status, nil
	}
	return finance.GatewayPending, nil
}
