package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/protocol"
)

type protocolApi struct {
	deps ServerDeps
}

func registerProtocolAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := protocolApi{deps: deps}

	pg := g.Group("/protocols", jwt)
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
	pg.GET("/:id/signatures", api.signatures)
	pg.POST("/:id/signature-code", api.requestSignature, reviewerMiddleware())
	pg.POST("/:id/sign", api.sign, reviewerMiddleware())
	pg.POST("/:id/reject", api.reject, adminMiddleware())
	pg.POST("/:id/annul", api.annul, adminMiddleware())

	// course completion sign-off
	eg := g.Group("/enrollments", jwt)
	eg.GET("/:id/completion-eligibility", api.completionEligibility)
	eg.POST("/:id/completion-code", api.requestCompletionCode)
	eg.POST("/:id/complete", api.confirmCompletion)

	// standalone test completion sign-off
	ag := g.Group("/attempts", jwt)
	ag.POST("/:id/completion-code", api.requestAttemptCompletionCode)
	ag.POST("/:id/complete", api.confirmAttemptCompletion)
}

// Handlers

func (api *protocolApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(protocol.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []protocol.Protocol{})
	}
	// students only see their own protocols
	if !(claims.IsAdmin() || claims.IsReviewer()) {
		filter.StudentID = claims.Subject
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	protocols, err := api.deps.ProtocolSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying protocols")
	}
	if protocols == nil {
		protocols = []protocol.Protocol{}
	}
	return ctx.JSON(http.StatusOK, protocols)
}

func (api *protocolApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	prt, err := api.deps.ProtocolSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding protocol")
	}
	if prt.StudentID != claims.Subject && !(claims.IsAdmin() || claims.IsReviewer()) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, prt)
}

func (api *protocolApi) signatures(ctx echo.Context) error {
	signatures, err := api.deps.ProtocolSvc.Signatures(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying signatures")
	}
	if signatures == nil {
		signatures = []protocol.Signature{}
	}
	return ctx.JSON(http.StatusOK, signatures)
}

func (api *protocolApi) completionEligibility(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	enr, err := api.deps.CourseSvc.GetEnrollment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding enrollment")
	}
	if enr.StudentID != claims.Subject && !claims.IsAdmin() {
		return errHttpNotFound
	}

	if err = api.deps.ProtocolSvc.CanRequestSignoff(ctx.Request().Context(), enr.ID); err != nil {
		return errors.Wrap(err, "checking sign-off eligibility")
	}
	return ctx.JSON(http.StatusOK, EligibilityResponse{Eligible: true})
}

func (api *protocolApi) requestCompletionCode(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	delivery, err := api.deps.ProtocolSvc.RequestCompletionCode(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "requesting completion code")
	}
	return ctx.JSON(http.StatusOK, delivery)
}

func (api *protocolApi) confirmCompletion(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data ConfirmCodeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmCodeRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	prt, err := api.deps.ProtocolSvc.ConfirmCompletion(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data.Code)
	if err != nil {
		return errors.Wrap(err, "confirming completion")
	}
	return ctx.JSON(http.StatusOK, prt)
}

func (api *protocolApi) requestAttemptCompletionCode(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	delivery, err := api.deps.ProtocolSvc.RequestAttemptCompletionCode(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "requesting attempt completion code")
	}
	return ctx.JSON(http.StatusOK, delivery)
}

func (api *protocolApi) confirmAttemptCompletion(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data ConfirmCodeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmCodeRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	prt, err := api.deps.ProtocolSvc.ConfirmAttemptCompletion(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data.Code)
	if err != nil {
		return errors.Wrap(err, "confirming attempt completion")
	}
	return ctx.JSON(http.StatusOK, prt)
}

func (api *protocolApi) requestSignature(ctx echo.Context) error {
	reviewer, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	delivery, err := api.deps.ProtocolSvc.RequestSignature(ctx.Request().Context(), reviewer, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "requesting signature code")
	}
	return ctx.JSON(http.StatusOK, delivery)
}

func (api *protocolApi) sign(ctx echo.Context) error {
	reviewer, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data ConfirmCodeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmCodeRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	prt, err := api.deps.ProtocolSvc.Sign(ctx.Request().Context(), reviewer, ctx.Param("id"), data.Code)
	if err != nil {
		return errors.Wrap(err, "signing protocol")
	}
	return ctx.JSON(http.StatusOK, prt)
}

func (api *protocolApi) reject(ctx echo.Context) error {
	admin, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data ReasonRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReasonRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	prt, err := api.deps.ProtocolSvc.Reject(ctx.Request().Context(), admin, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting protocol")
	}
	return ctx.JSON(http.StatusOK, prt)
}

func (api *protocolApi) annul(ctx echo.Context) error {
	admin, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data ReasonRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReasonRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	prt, err := api.deps.ProtocolSvc.Annul(ctx.Request().Context(), admin, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "annulling protocol")
	}
	return ctx.JSON(http.StatusOK, prt)
}

type (
	ConfirmCodeRequest struct {
		Code string `json:"code" validate:"required,otp"`
	}

	ReasonRequest struct {
		Reason string `json:"reason" validate:"required"`
	}

	EligibilityResponse struct {
		Eligible bool `json:"eligible"`
	}
)

func (cr *ConfirmCodeRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(cr)
}

func (rr *ReasonRequest) Validate(validate *validator.Validate) error {
	rr.Reason = core.CleanString(rr.Reason)
	return validate.Struct(rr)
}
