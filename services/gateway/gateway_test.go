package gatewaysvc

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"unicode/utf8"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
	testutil "github.com/trezcool/bursar/tests"
)

type fakeSnap struct {
	req *snap.Request
	err *midtrans.Error
}

func (f *fakeSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &snap.Response{Token: "snap-token", RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/" + req.TransactionDetails.OrderID}, nil
}

type fakeStatus struct {
	resp *coreapi.TransactionStatusResponse
	err  *midtrans.Error
}

func (f fakeStatus) CheckTransaction(string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	return f.resp, f.err
}

func TestMidtransGateway_CreateOrder(t *testing.T) {
	fs := &fakeSnap{}
	gw := &MidtransGateway{snap: fs}

	checkout, err := gw.CreateOrder(context.Background(), finance.GatewayOrder{
		ID:          "order-1",
		StudentID:   "s1",
		StudentName: "Tom",
		Lines: []finance.CollectLine{
			{StudentFeeID: "sf1", Amount: testutil.Dec("150000")},
			{StudentFeeID: "sf2", Amount: testutil.Dec("50000.00")},
		},
		Amount: testutil.Dec("200000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "snap-token", checkout.Token)
	assert.Contains(t, checkout.RedirectURL, "order-1")

	assert.Equal(t, "order-1", fs.req.TransactionDetails.OrderID)
	assert.Equal(t, int64(200000), fs.req.TransactionDetails.GrossAmt)
	require.Len(t, *fs.req.Items, 2)
	assert.Equal(t, int64(50000), (*fs.req.Items)[1].Price)

	// the gross charged must be what gets collected later
	fs.req = nil
	_, err = gw.CreateOrder(context.Background(), finance.GatewayOrder{
		ID: "order-fractional",
		Lines: []finance.CollectLine{
			{StudentFeeID: "sf1", Amount: testutil.Dec("100.5")},
			{StudentFeeID: "sf2", Amount: testutil.Dec("100.5")},
		},
		Amount: testutil.Dec("201"),
	})
	require.Error(t, err)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "lines[0].amount", verr.Fields[0].Field)
	assert.Nil(t, fs.req, "nothing is sent to midtrans")

	fs.err = &midtrans.Error{Message: "access denied", StatusCode: http.StatusUnauthorized}
	_, err = gw.CreateOrder(context.Background(), finance.GatewayOrder{
		ID:    "order-2",
		Lines: []finance.CollectLine{{StudentFeeID: "sf1", Amount: testutil.Dec("1")}},
	})
	assert.Error(t, err)

	_, err = gw.CreateOrder(context.Background(), finance.GatewayOrder{
		ID:    "order-3",
		Lines: []finance.CollectLine{{StudentFeeID: "sf1", Amount: testutil.Dec("0.2")}},
	})
	assert.Error(t, err)
}

func Test_truncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{name: "short", s: "Tom", n: 10, want: "Tom"},
		{name: "ascii", s: "Thomas", n: 3, want: "Tho"},
		{name: "inside a rune", s: "Zoë Ñandú", n: 3, want: "Zo"},
		{name: "on a rune boundary", s: "Zoë Ñandú", n: 4, want: "Zoë"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.s, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestMidtransGateway_OrderStatus(t *testing.T) {
	tests := []struct {
		name        string
		transaction string
		fraud       string
		err         *midtrans.Error
		want        finance.GatewayStatus
		wantErr     bool
	}{
		{name: "settlement", transaction: "settlement", want: finance.GatewaySettled},
		{name: "card accepted", transaction: "capture", fraud: "accept", want: finance.GatewaySettled},
		{name: "card challenged", transaction: "capture", fraud: "challenge", want: finance.GatewayPending},
		{name: "card denied by fraud check", transaction: "capture", fraud: "deny", want: finance.GatewayFailed},
		{name: "pending", transaction: "pending", want: finance.GatewayPending},
		{name: "expired", transaction: "expire", want: finance.GatewayFailed},
		{name: "cancelled", transaction: "cancel", want: finance.GatewayFailed},
		{name: "not paid yet", err: &midtrans.Error{StatusCode: http.StatusNotFound}, want: finance.GatewayPending},
		{name: "midtrans down", err: &midtrans.Error{StatusCode: http.StatusInternalServerError, Message: "oops"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := fakeStatus{err: tt.err}
			if tt.err == nil {
				status.resp = &coreapi.TransactionStatusResponse{TransactionStatus: tt.transaction, FraudStatus: tt.fraud}
			}
			gw := &MidtransGateway{status: status}

			got, err := gw.OrderStatus(context.Background(), "order-1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDummyGateway(t *testing.T) {
	gw := NewDummyGateway("http://localhost:8000")
	ctx := context.Background()

	status, err := gw.OrderStatus(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, finance.GatewayPending, status)

	checkout, err := gw.CreateOrder(ctx, finance.GatewayOrder{ID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/dummy-checkout/o1", checkout.RedirectURL)
	status, _ = gw.OrderStatus(ctx, "o1")
	assert.Equal(t, finance.GatewaySettled, status)

	gw.Fail("o1")
	status, _ = gw.OrderStatus(ctx, "o1")
	assert.Equal(t, finance.GatewayFailed, status)
}
