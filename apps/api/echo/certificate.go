package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/unicover/lms/core/certificate"
)

type certificateApi struct {
	deps ServerDeps
}

func registerCertificateAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := certificateApi{deps: deps}

	// public QR-code lookup, no auth
	g.GET("/verify/:number", api.verify)

	cg := g.Group("/certificates", jwt)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id/file", api.attachFile, adminMiddleware())
}

// Handlers

// verify is the endpoint behind the QR code printed on certificates.
func (api *certificateApi) verify(ctx echo.Context) error {
	crt, err := api.deps.CertificateSvc.Verify(ctx.Request().Context(), ctx.Param("number"))
	if err != nil {
		return errors.Wrap(err, "verifying certificate")
	}
	return ctx.JSON(http.StatusOK, crt)
}

func (api *certificateApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	studentID := claims.Subject
	if claims.IsAdmin() {
		if qID := ctx.QueryParam("student_id"); qID != "" {
			studentID = qID
		}
	}

	certs, err := api.deps.CertificateSvc.QueryByStudent(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "querying certificates")
	}
	if certs == nil {
		certs = []certificate.Certificate{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (api *certificateApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	crt, err := api.deps.CertificateSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding certificate")
	}
	if crt.StudentID != claims.Subject && !claims.IsAdmin() {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, crt)
}

func (api *certificateApi) attachFile(ctx echo.Context) error {
	staff, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data AttachFileRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttachFileRequest")
	}
	if err = data.Validate(api.deps.Validate); err != nil {
		return err
	}

	crt, err := api.deps.CertificateSvc.AttachFile(ctx.Request().Context(), staff, ctx.Param("id"), data.FileURL)
	if err != nil {
		return errors.Wrap(err, "attaching certificate file")
	}
	return ctx.JSON(http.StatusOK, crt)
}

type AttachFileRequest struct {
	FileURL string `json:"file_url" validate:"required,url"`
}

func (ar *AttachFileRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(ar)
}
