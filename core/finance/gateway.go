package finance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var errNoGateway = errors.New("no payment gateway configured")

// CreateGatewayOrder checks the lines like Collect does, without writing anything on the
// obligations, and opens an order at the gateway.
func (svc *Service) CreateGatewayOrder(ctx context.Context, caller Caller, no NewGatewayOrder) (GatewayOrder, error) {
	if svc.gateway == nil {
		return GatewayOrder{}, errNoGateway
	}
	if err := no.Validate(svc.validate); err != nil {
		return GatewayOrder{}, err
	}

	fees := make(map[string]StudentFee, len(no.Lines))
	amount := decimal.Zero
	for _, line := range no.Lines {
		sf, err := svc.repo.GetStudentFee(ctx, line.StudentFeeID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return GatewayOrder{}, err
		}
		if err == nil {
			fees[sf.ID] = sf
		}
		amount = amount.Add(line.Amount)
	}
	if err := checkLines(caller, no.Lines, fees); err != nil {
		return GatewayOrder{}, err
	}

	first := fees[no.Lines[0].StudentFeeID]
	now := svc.timestamp()
	order := GatewayOrder{
		ID:          newID(),
		StudentID:   first.StudentID,
		StudentName: first.StudentName,
		Lines:       no.Lines,
		Amount:      amount,
		Status:      GatewayPending,
		CreatedBy:   caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	checkout, err := svc.gateway.CreateOrder(ctx, order)
	if err != nil {
		return GatewayOrder{}, errors.Wrap(err, "opening gateway order")
	}
	order.Token = checkout.Token
	order.RedirectURL = checkout.RedirectURL

	if err := svc.repo.RunInTx(ctx, func(tx Tx) error { return tx.CreateGatewayOrder(ctx, order) }); err != nil {
		return GatewayOrder{}, err
	}
	return order, nil
}

// ConfirmGatewayOrder asks the gateway where the order stands. A settled order is collected
// with the order id as transaction reference, so confirming twice never collects twice.
func (svc *Service) ConfirmGatewayOrder(ctx context.Context, caller Caller, id string) (GatewayOrder, error) {
	if svc.gateway == nil {
		return GatewayOrder{}, errNoGateway
	}
	order, err := svc.repo.GetGatewayOrder(ctx, id)
	if err != nil {
		return GatewayOrder{}, err
	}
	if err := caller.mustAccess(order.StudentID); err != nil {
		return GatewayOrder{}, err
	}
	if order.Status != GatewayPending {
		return order, nil
	}

	status, err := svc.gateway.OrderStatus(ctx, id)
	if err != nil {
		return GatewayOrder{}, errors.Wrap(err, "checking gateway order")
	}

	switch status {
	case GatewaySettled:
		res, err := svc.collect(ctx, caller, CollectRequest{
			Lines:          order.Lines,
			Mode:           ModeOnline,
			TransactionRef: order.ID,
			Remarks:        "online payment",
		})
		if err != nil {
			if Kind(err) == KindInternal || Kind(err) == KindConcurrencyConflict {
				return GatewayOrder{}, err
			}
			// paid at the gateway but not collectable anymore: needs a manual refund
			svc.logger.Error(fmt.Sprintf("gateway order %s settled but could not be collected", id), err, caller)
			return svc.closeOrder(ctx, id, GatewayFailed, "", "settled but not collected: "+err.Error())
		}
		return svc.closeOrder(ctx, id, GatewaySettled, res.Receipt.Number, "")
	case GatewayFailed:
		return svc.closeOrder(ctx, id, GatewayFailed, "", "payment not completed at the gateway")
	default:
		return order, nil
	}
}

func (svc *Service) closeOrder(ctx context.Context, id string, status GatewayStatus, receipt, reason string) (GatewayOrder, error) {
	var order GatewayOrder
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		var err error
		if order, err = tx.LockGatewayOrder(ctx, id); err != nil {
			return err
		}
		if order.Status != GatewayPending {
			return nil
		}
		order.Status = status
		order.ReceiptNumber = receipt
		order.FailureReason = reason
		order.UpdatedAt = svc.timestamp()
		return tx.UpdateGatewayOrder(ctx, order)
	})
	if err != nil {
		return GatewayOrder{}, err
	}
	return order, nil
}

func (svc *Service) GetGatewayOrder(ctx context.Context, caller Caller, id string) (GatewayOrder, error) {
	order, err := svc.repo.GetGatewayOrder(ctx, id)
	if err != nil {
		return GatewayOrder{}, err
	}
	if err := caller.mustAccess(order.StudentID); err != nil {
		return GatewayOrder{}, err
	}
	return order, nil
}
