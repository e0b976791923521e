package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/finance"
	exportsvc "github.com/trezcool/bursar/services/export"
)

func registerPaymentRoutes(g *echo.Group, api *financeApi) {
	g.POST("/collections", api.collect, adminMiddleware())
	g.GET("/receipts/:number", api.retrieveReceipt)

	gw := g.Group("/gateway/orders")
	gw.POST("", api.createGatewayOrder)
	gw.GET("/:id", api.retrieveGatewayOrder)
	gw.POST("/:id/confirm", api.confirmGatewayOrder)

	lg := g.Group("/ledger", adminMiddleware())
	lg.GET("", api.queryLedger)
	lg.GET("/balance", api.balance)
	lg.GET("/export", api.exportLedger)
	lg.POST("/entries", api.postEntry)
	lg.POST("/expenses", api.recordExpense)
	lg.POST("/:id/reverse", api.reverseEntry)
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// Collections

func (api *financeApi) collect(ctx echo.Context) error {
	var data finance.CollectRequest
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to CollectRequest")
	}
	res, err := api.svc.Collect(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "collecting payment")
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

func (api *financeApi) retrieveReceipt(ctx echo.Context) error {
	rcpt, err := api.svc.GetReceipt(ctx.Request().Context(), callerOf(ctx), ctx.Param("number"))
	if err != nil {
		return errors.Wrap(err, "retrieving receipt")
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

// Gateway

func (api *financeApi) createGatewayOrder(ctx echo.Context) error {
	var data finance.NewGatewayOrder
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewGatewayOrder")
	}
	order, err := api.svc.CreateGatewayOrder(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating gateway order")
	}
	return ctx.JSON(http.StatusCreated, order)
}

func (api *financeApi) retrieveGatewayOrder(ctx echo.Context) error {
	order, err := api.svc.GetGatewayOrder(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving gateway order")
	}
	return ctx.JSON(http.StatusOK, order)
}

func (api *financeApi) confirmGatewayOrder(ctx echo.Context) error {
	order, err := api.svc.ConfirmGatewayOrder(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "confirming gateway order")
	}
	return ctx.JSON(http.StatusOK, order)
}

// Ledger

func ledgerFilter(ctx echo.Context) (finance.LedgerFilter, error) {
	q := newQuery(ctx)
	filter := finance.LedgerFilter{
		From:     q.Date("from"),
		To:       q.Date("to"),
		Type:     finance.EntryType(q.String("type")),
		Category: q.String("category"),
		Page:     q.Page(),
	}
	return filter, q.Err()
}

func (api *financeApi) queryLedger(ctx echo.Context) error {
	filter, err := ledgerFilter(ctx)
	if err != nil {
		return err
	}
	page, err := api.svc.ListLedger(ctx.Request().Context(), callerOf(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying ledger")
	}
	if page.Entries == nil {
		page.Entries = []finance.LedgerEntry{}
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *financeApi) balance(ctx echo.Context) error {
	balance, err := api.svc.Balance(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting balance")
	}
	return ctx.JSON(http.StatusOK, balanceResponse{Balance: balance.StringFixed(2)})
}

func (api *financeApi) exportLedger(ctx echo.Context) error {
	filter, err := ledgerFilter(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = api.svc.ExportLedger(ctx.Request().Context(), callerOf(ctx), filter, api.exporter, &buf); err != nil {
		return errors.Wrap(err, "exporting ledger")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "ledger.xlsx"))
	return ctx.Blob(http.StatusOK, exportsvc.XLSXType, buf.Bytes())
}

func (api *financeApi) postEntry(ctx echo.Context) error {
	var data finance.Posting
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to Posting")
	}
	entry, err := api.svc.Post(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "posting ledger entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *financeApi) recordExpense(ctx echo.Context) error {
	var data finance.NewExpense
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewExpense")
	}
	entry, err := api.svc.RecordExpense(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "recording expense")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *financeApi) reverseEntry(ctx echo.Context) error {
	var data finance.ReverseEntry
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to ReverseEntry")
	}
	entry, err := api.svc.Reverse(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reversing ledger entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}
