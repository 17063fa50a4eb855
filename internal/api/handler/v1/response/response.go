package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Err struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	Message        string `json:"error"`
}

func (e *Err) Error() string {
	return e.Message
}

// RenderErr writes e as {"error": "..."} and aborts the chain. 5xx causes are
// logged and never sent to the client.
func RenderErr(ctx *gin.Context, e *Err) {
	if e.HTTPStatusCode >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(e.Err),
		)
	}

	ctx.AbortWithStatusJSON(e.HTTPStatusCode, e)
}

func newErr(status int, err error) *Err {
	return &Err{
		Err:            err,
		HTTPStatusCode: status,
		Message:        err.Error(),
	}
}

func ErrBadRequest(err error) *Err {
	return newErr(http.StatusBadRequest, err)
}

func ErrWrongCredentials(err error) *Err {
	return newErr(http.StatusUnauthorized, err)
}

func ErrUnauthorized(err error) *Err {
	return newErr(http.StatusUnauthorized, err)
}

func ErrPermissionDenied(err error) *Err {
	return newErr(http.StatusForbidden, err)
}

func ErrNotFound(resource, key string, value any) *Err {
	return newErr(http.StatusNotFound, fmt.Errorf("%s with %s %v not found", resource, key, value))
}

// ErrMissing is a 404 carrying err's own message.
func ErrMissing(err error) *Err {
	return newErr(http.StatusNotFound, err)
}

func ErrConflict(err error) *Err {
	return newErr(http.StatusConflict, err)
}

func ErrGone(err error) *Err {
	return newErr(http.StatusGone, err)
}

func ErrTooManyRequests(err error) *Err {
	return newErr(http.StatusTooManyRequests, err)
}

func ErrInternalServerError(err error) *Err {
	return &Err{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		Message:        "internal server error",
	}
}
