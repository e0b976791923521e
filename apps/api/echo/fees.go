package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/finance"
)

type financeApi struct {
	svc      *finance.Service
	exporter finance.LedgerExporter
}

func registerFinanceAPI(g *echo.Group, svc *finance.Service, exporter finance.LedgerExporter) {
	api := financeApi{svc: svc, exporter: exporter}

	// catalog
	ft := g.Group("/fee-types")
	ft.GET("", api.queryFeeTypes)
	ft.POST("", api.createFeeType, adminMiddleware())
	ft.GET("/:id", api.retrieveFeeType)
	ft.PUT("/:id", api.updateFeeType, adminMiddleware())

	fs := g.Group("/fee-structures")
	fs.GET("", api.queryFeeStructures)
	fs.POST("", api.createFeeStructure, adminMiddleware())
	fs.GET("/:id", api.retrieveFeeStructure)
	fs.PUT("/:id", api.updateFeeStructure, adminMiddleware())
	fs.POST("/:id/assign", api.assignStructure, adminMiddleware())

	// obligations
	sf := g.Group("/student-fees")
	sf.POST("", api.instantiateFee, adminMiddleware())
	sf.GET("/:id", api.retrieveStudentFee)
	sf.DELETE("/:id", api.destroyStudentFee, adminMiddleware())
	sf.GET("/:id/discounts", api.queryAppliedDiscounts)
	sf.POST("/:id/discounts", api.applyDiscount, adminMiddleware())
	sf.POST("/:id/recompute-discounts", api.recomputeDiscounts, adminMiddleware())
	sf.GET("/:id/payments", api.queryPayments)
	sf.GET("/:id/reminders", api.queryReminderLogs)

	st := g.Group("/students/:id")
	st.GET("/fees", api.queryStudentFees)
	st.GET("/receipts", api.queryReceipts)

	registerPaymentRoutes(g, &api)
	registerDunningRoutes(g, &api)
}

func callerOf(ctx echo.Context) finance.Caller {
	caller, _ := getContextCaller(ctx) // guaranteed by callerMiddleware
	return caller
}

// Catalog

func (api *financeApi) queryFeeTypes(ctx echo.Context) error {
	fts, err := api.svc.ListFeeTypes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying fee types")
	}
	if fts == nil {
		fts = []finance.FeeType{}
	}
	return ctx.JSON(http.StatusOK, fts)
}

func (api *financeApi) createFeeType(ctx echo.Context) error {
	var data finance.NewFeeType
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewFeeType")
	}
	ft, err := api.svc.CreateFeeType(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating fee type")
	}
	return ctx.JSON(http.StatusCreated, ft)
}

func (api *financeApi) retrieveFeeType(ctx echo.Context) error {
	ft, err := api.svc.GetFeeType(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving fee type")
	}
	return ctx.JSON(http.StatusOK, ft)
}

func (api *financeApi) updateFeeType(ctx echo.Context) error {
	var data finance.UpdateFeeType
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to UpdateFeeType")
	}
	ft, err := api.svc.UpdateFeeType(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee type")
	}
	return ctx.JSON(http.StatusOK, ft)
}

func (api *financeApi) queryFeeStructures(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := finance.StructureFilter{
		AcademicYear: q.String("academic_year"),
		Class:        q.String("class"),
		FeeTypeID:    q.String("fee_type_id"),
		ActiveOnly:   q.Bool("active"),
	}
	if err := q.Err(); err != nil {
		return err
	}

	structures, err := api.svc.ListFeeStructures(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying fee structures")
	}
	if structures == nil {
		structures = []finance.FeeStructure{}
	}
	return ctx.JSON(http.StatusOK, structures)
}

func (api *financeApi) createFeeStructure(ctx echo.Context) error {
	var data finance.NewFeeStructure
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewFeeStructure")
	}
	fs, err := api.svc.CreateFeeStructure(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating fee structure")
	}
	return ctx.JSON(http.StatusCreated, fs)
}

func (api *financeApi) retrieveFeeStructure(ctx echo.Context) error {
	fs, err := api.svc.GetFeeStructure(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving fee structure")
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *financeApi) updateFeeStructure(ctx echo.Context) error {
	var data finance.UpdateFeeStructure
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to UpdateFeeStructure")
	}
	fs, err := api.svc.UpdateFeeStructure(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee structure")
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *financeApi) assignStructure(ctx echo.Context) error {
	var data finance.AssignStructure
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to AssignStructure")
	}
	report, err := api.svc.AssignStructure(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "assigning fee structure")
	}
	return ctx.JSON(http.StatusOK, report)
}

// Obligations

func (api *financeApi) instantiateFee(ctx echo.Context) error {
	var data finance.InstantiateFee
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to InstantiateFee")
	}
	sf, err := api.svc.Instantiate(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "instantiating fee")
	}
	return ctx.JSON(http.StatusCreated, sf)
}

func (api *financeApi) retrieveStudentFee(ctx echo.Context) error {
	sf, err := api.svc.GetStudentFee(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving student fee")
	}
	return ctx.JSON(http.StatusOK, sf)
}

func (api *financeApi) destroyStudentFee(ctx echo.Context) error {
	if err := api.svc.DeleteStudentFee(ctx.Request().Context(), callerOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student fee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *financeApi) queryAppliedDiscounts(ctx echo.Context) error {
	discounts, err := api.svc.ListAppliedDiscounts(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying applied discounts")
	}
	if discounts == nil {
		discounts = []finance.AppliedDiscount{}
	}
	return ctx.JSON(http.StatusOK, discounts)
}

func (api *financeApi) applyDiscount(ctx echo.Context) error {
	var data finance.NewDiscount
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewDiscount")
	}
	sf, err := api.svc.ApplyDiscount(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "applying discount")
	}
	return ctx.JSON(http.StatusOK, sf)
}

func (api *financeApi) recomputeDiscounts(ctx echo.Context) error {
	sf, err := api.svc.RecomputeDiscounts(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "recomputing discounts")
	}
	return ctx.JSON(http.StatusOK, sf)
}

func (api *financeApi) queryPayments(ctx echo.Context) error {
	payments, err := api.svc.ListPayments(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []finance.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *financeApi) queryReminderLogs(ctx echo.Context) error {
	logs, err := api.svc.ListReminderLogs(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying reminder logs")
	}
	if logs == nil {
		logs = []finance.ReminderLog{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *financeApi) queryStudentFees(ctx echo.Context) error {
	list, err := api.svc.ListStudentFees(
		ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), newQuery(ctx).String("academic_year"),
	)
	if err != nil {
		return errors.Wrap(err, "querying student fees")
	}
	if list.Fees == nil {
		list.Fees = []finance.StudentFee{}
	}
	return ctx.JSON(http.StatusOK, list)
}

func (api *financeApi) queryReceipts(ctx echo.Context) error {
	rcpts, err := api.svc.ListReceipts(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying receipts")
	}
	if rcpts == nil {
		rcpts = []finance.Receipt{}
	}
	return ctx.JSON(http.StatusOK, rcpts)
}
