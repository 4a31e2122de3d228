package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/certificate"
	"github.com/unicover/lms/core/course"
	"github.com/unicover/lms/core/exam"
	"github.com/unicover/lms/core/notification"
	"github.com/unicover/lms/core/protocol"
	"github.com/unicover/lms/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// errStatusCodes maps domain sentinel errors to HTTP statuses.
var errStatusCodes = map[error]int{
	core.ErrInvalidOTP: http.StatusBadRequest,

	user.ErrNotFound:               http.StatusNotFound,
	course.ErrNotFound:             http.StatusNotFound,
	course.ErrLessonNotFound:       http.StatusNotFound,
	course.ErrEnrollmentNotFound:   http.StatusNotFound,
	course.ErrVerificationNotFound: http.StatusNotFound,
	exam.ErrNotFound:               http.StatusNotFound,
	exam.ErrAttemptNotFound:        http.StatusNotFound,
	exam.ErrVerificationNotFound:   http.StatusNotFound,
	protocol.ErrNotFound:           http.StatusNotFound,
	protocol.ErrSignatureNotFound:  http.StatusNotFound,
	certificate.ErrNotFound:        http.StatusNotFound,
	notification.ErrNotFound:       http.StatusNotFound,

	course.ErrNotEnrolled:     http.StatusForbidden,
	exam.ErrPermission:        http.StatusForbidden,
	protocol.ErrPermission:    http.StatusForbidden,
	certificate.ErrPermission: http.StatusForbidden,

	exam.ErrCompleted:     http.StatusConflict,
	protocol.ErrClosed:    http.StatusConflict,
	certificate.ErrExists: http.StatusConflict,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(deps ServerDeps, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := errStatusCodes[cause]; ok {
			code = status
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(deps.Translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *core.NotEligibleError:
				code = http.StatusBadRequest
				message = origErr.Reason
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Phone = claims.Phone
					usr.Email = claims.Email
				}
				deps.Logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
