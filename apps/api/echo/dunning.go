package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
)

func registerDunningRoutes(g *echo.Group, api *financeApi) {
	out := g.Group("/outstanding")
	out.GET("", api.queryOutstanding)
	out.GET("/aging", api.agingSummary)

	g.POST("/reminders", api.sendReminders, adminMiddleware())

	er := g.Group("/escalation-rules")
	er.GET("", api.queryEscalationRules)
	er.POST("", api.createEscalationRule, adminMiddleware())
	er.DELETE("/:id", api.destroyEscalationRule, adminMiddleware())

	cg := g.Group("/concessions")
	cg.GET("", api.queryConcessions)
	cg.POST("", api.createConcession)
	cg.GET("/:id", api.retrieveConcession)
	cg.POST("/:id/approve", api.approveConcession, adminMiddleware())
	cg.POST("/:id/reject", api.rejectConcession, adminMiddleware())

	dr := g.Group("/discount-rules")
	dr.GET("", api.queryDiscountRules)
	dr.POST("", api.createDiscountRule, adminMiddleware())
	dr.PUT("/:id/active", api.setDiscountRuleActive, adminMiddleware())

	ip := g.Group("/installment-plans")
	ip.GET("", api.queryPlans)
	ip.POST("", api.createPlan, adminMiddleware())
	ip.GET("/:id", api.retrievePlan)
}

type (
	RemindRequest struct {
		StudentIDs []string `json:"student_ids"`
	}

	ActiveRequest struct {
		IsActive *bool `json:"is_active"`
	}

	ApprovalResponse struct {
		Concession finance.ConcessionRequest `json:"concession"`
		Fees       []finance.StudentFee      `json:"fees"`
	}
)

// Outstanding dues

func outstandingFilter(ctx echo.Context) (finance.OutstandingFilter, error) {
	q := newQuery(ctx)
	filter := finance.OutstandingFilter{
		Class:          q.String("class"),
		Section:        q.String("section"),
		StudentIDs:     q.Strings("student_id"),
		MinDaysOverdue: q.Int("min_days"),
		Page:           q.Page(),
	}
	return filter, q.Err()
}

func (api *financeApi) queryOutstanding(ctx echo.Context) error {
	filter, err := outstandingFilter(ctx)
	if err != nil {
		return err
	}
	report, err := api.svc.ListOutstanding(ctx.Request().Context(), callerOf(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying outstanding dues")
	}
	if report.Dues == nil {
		report.Dues = []finance.OutstandingDue{}
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *financeApi) agingSummary(ctx echo.Context) error {
	filter, err := outstandingFilter(ctx)
	if err != nil {
		return err
	}
	report, err := api.svc.AgingSummary(ctx.Request().Context(), callerOf(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "summarizing aging")
	}
	return ctx.JSON(http.StatusOK, report)
}

// Reminders

func (api *financeApi) sendReminders(ctx echo.Context) error {
	var data RemindRequest
	if ctx.Request().ContentLength != 0 {
		if err := bindJSON(ctx, &data); err != nil {
			return errors.Wrap(err, "binding to RemindRequest")
		}
	}
	report, err := api.svc.SendReminders(ctx.Request().Context(), callerOf(ctx), data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "sending reminders")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *financeApi) queryEscalationRules(ctx echo.Context) error {
	rules, err := api.svc.ListEscalationRules(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying escalation rules")
	}
	if rules == nil {
		rules = []finance.EscalationRule{}
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *financeApi) createEscalationRule(ctx echo.Context) error {
	var data finance.NewEscalationRule
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewEscalationRule")
	}
	rule, err := api.svc.CreateEscalationRule(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating escalation rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

func (api *financeApi) destroyEscalationRule(ctx echo.Context) error {
	if err := api.svc.DeleteEscalationRule(ctx.Request().Context(), callerOf(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting escalation rule")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Concessions

func (api *financeApi) queryConcessions(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := finance.ConcessionFilter{
		StudentID: q.String("student_id"),
		Status:    finance.ConcessionStatus(q.String("status")),
	}
	crs, err := api.svc.ListConcessions(ctx.Request().Context(), callerOf(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying concessions")
	}
	if crs == nil {
		crs = []finance.ConcessionRequest{}
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *financeApi) createConcession(ctx echo.Context) error {
	var data finance.NewConcession
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewConcession")
	}
	cr, err := api.svc.CreateConcession(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating concession")
	}
	return ctx.JSON(http.StatusCreated, cr)
}

func (api *financeApi) retrieveConcession(ctx echo.Context) error {
	cr, err := api.svc.GetConcession(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving concession")
	}
	return ctx.JSON(http.StatusOK, cr)
}

func (api *financeApi) approveConcession(ctx echo.Context) error {
	cr, fees, err := api.svc.ApproveConcession(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving concession")
	}
	if fees == nil {
		fees = []finance.StudentFee{}
	}
	return ctx.JSON(http.StatusOK, ApprovalResponse{Concession: cr, Fees: fees})
}

func (api *financeApi) rejectConcession(ctx echo.Context) error {
	var data finance.RejectConcession
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to RejectConcession")
	}
	cr, err := api.svc.RejectConcession(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting concession")
	}
	return ctx.JSON(http.StatusOK, cr)
}

// Discount rules

func (api *financeApi) queryDiscountRules(ctx echo.Context) error {
	q := newQuery(ctx)
	activeOnly := q.Bool("active")
	if err := q.Err(); err != nil {
		return err
	}
	rules, err := api.svc.ListDiscountRules(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying discount rules")
	}
	if rules == nil {
		rules = []finance.DiscountRule{}
	}
	return ctx.JSON(http.StatusOK, rules)
}

func (api *financeApi) createDiscountRule(ctx echo.Context) error {
	var data finance.NewDiscountRule
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewDiscountRule")
	}
	rule, err := api.svc.CreateDiscountRule(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating discount rule")
	}
	return ctx.JSON(http.StatusCreated, rule)
}

func (api *financeApi) setDiscountRuleActive(ctx echo.Context) error {
	var data ActiveRequest
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to ActiveRequest")
	}
	if data.IsActive == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: "this field is required"})
	}
	rule, err := api.svc.SetDiscountRuleActive(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"), *data.IsActive)
	if err != nil {
		return errors.Wrap(err, "updating discount rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

// Installment plans

func (api *financeApi) queryPlans(ctx echo.Context) error {
	plans, err := api.svc.ListPlans(ctx.Request().Context(), callerOf(ctx), newQuery(ctx).String("structure_id"))
	if err != nil {
		return errors.Wrap(err, "querying installment plans")
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *financeApi) createPlan(ctx echo.Context) error {
	var data finance.NewInstallmentPlan
	if err := bindJSON(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to NewInstallmentPlan")
	}
	plan, err := api.svc.CreatePlan(ctx.Request().Context(), callerOf(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating installment plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *financeApi) retrievePlan(ctx echo.Context) error {
	plan, err := api.svc.GetPlan(ctx.Request().Context(), callerOf(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving installment plan")
	}
	return ctx.JSON(http.StatusOK, plan)
}
