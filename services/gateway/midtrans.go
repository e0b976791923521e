package gatewaysvc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
)

type (
	snapAPI interface {
		CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
	}

	statusAPI interface {
		CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
	}

	// MidtransGateway opens Snap checkouts and polls the Core API for their status.
	MidtransGateway struct {
		snap   snapAPI
		status statusAPI
	}
)

var _ finance.Gateway = (*MidtransGateway)(nil)

func NewMidtransGateway(conf core.MidtransConfig) *MidtransGateway {
	env := midtrans.Sandbox
	if conf.UseProduction {
		env = midtrans.Production
	}
	var (
		sc snap.Client
		cc coreapi.Client
	)
	sc.New(conf.ServerKey, env)
	cc.New(conf.ServerKey, env)
	return &MidtransGateway{snap: &sc, status: &cc}
}

// CreateOrder uses the order id as Midtrans order id. Midtrans charges whole currency units,
// so a fractional line is rejected rather than charged a different amount than later collected.
func (gw *MidtransGateway) CreateOrder(_ context.Context, order finance.GatewayOrder) (finance.GatewayCheckout, error) {
	items := make([]midtrans.ItemDetails, len(order.Lines))
	var gross int64
	for i, line := range order.Lines {
		if !line.Amount.IsInteger() {
			return finance.GatewayCheckout{}, core.NewValidationError(nil, core.FieldError{
				Field: fmt.Sprintf("lines[%d].amount", i),
				Error: "must be a whole amount for online payments",
			})
		}
		price := line.Amount.IntPart()
		items[i] = midtrans.ItemDetails{
			ID:    line.StudentFeeID,
			Name:  truncate("Fee "+line.StudentFeeID, 50),
			Price: price,
			Qty:   1,
		}
		gross += price
	}
	if gross <= 0 {
		return finance.GatewayCheckout{}, errors.New("gateway orders need a positive amount")
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{OrderID: order.ID, GrossAmt: gross},
		CustomerDetail:     &midtrans.CustomerDetails{FName: truncate(order.StudentName, 50)},
		Items:              &items,
		CustomField1:       truncate(order.StudentID, 40),
	}
	resp, merr := gw.snap.CreateTransaction(req)
	if merr != nil {
		return finance.GatewayCheckout{}, errors.Wrap(merr, "midtrans snap")
	}
	return finance.GatewayCheckout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// OrderStatus maps the Midtrans transaction status. An order the payer did not act upon yet is pending.
func (gw *MidtransGateway) OrderStatus(_ context.Context, orderID string) (finance.GatewayStatus, error) {
	resp, merr := gw.status.CheckTransaction(orderID)
	if merr != nil {
		if merr.StatusCode == http.StatusNotFound {
			return finance.GatewayPending, nil
		}
		return "", errors.Wrap(merr, "midtrans status")
	}
	return mapStatus(resp.TransactionStatus, resp.FraudStatus), nil
}

func mapStatus(transaction, fraud string) finance.GatewayStatus {
	switch strings.ToLower(transaction) {
	case "settlement":
		return finance.GatewaySettled
	case "capture":
		switch strings.ToLower(fraud) {
		case "accept", "":
			return finance.GatewaySettled
		case "challenge":
			return finance.GatewayPending
		}
		return finance.GatewayFailed
	case "deny", "cancel", "expire", "failure":
		return finance.GatewayFailed
	default:
		// pending, authorize, refunds of other orders...
		return finance.GatewayPending
	}
}

// truncate keeps at most n bytes of s without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
