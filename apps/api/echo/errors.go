package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var errInvalidRequest = "invalid request"

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
			if _, ok := message.(string); !ok {
				message = http.StatusText(code)
			}
		case *core.AuthError:
			code = http.StatusUnauthorized
			message = origErr.Message
		case *core.ForbiddenError:
			code = http.StatusForbidden
			message = origErr.Message
		case *core.NotFoundError:
			code = http.StatusNotFound
			message = origErr.Error()
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = echo.Map{
				"error":   errInvalidRequest,
				"details": core.TranslateValidationErrors(origErr, translator),
			}
		case *core.ValidationError:
			code = http.StatusBadRequest
			details := origErr.Fields
			if details == nil {
				details = []core.FieldError{}
			}
			msg := errInvalidRequest
			if len(details) == 0 && origErr.Err != nil {
				msg = origErr.Error()
			}
			message = echo.Map{"error": msg, "details": details}
		case *core.InvariantError:
			code = http.StatusBadRequest
			details := origErr.Details
			if details == nil {
				details = map[string]interface{}{}
			}
			message = echo.Map{"error": origErr.Message, "reason": origErr.Reason, "details": details}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var person core.Person
			if claims, ok := contextClaims(ctx); ok {
				person = core.Person{ID: claims.UserID, Email: claims.Email, TenantID: claims.TenantID}
			}
			logger.Error(msg, errors.Wrap(err, msg), person, map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			})

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				message = err.Error()
			}
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
