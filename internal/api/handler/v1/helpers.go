package v1

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-loyalty/points-api/internal/api/handler/v1/response"
	"github.com/campus-loyalty/points-api/internal/api/middleware"
	"github.com/campus-loyalty/points-api/internal/domain"
)

var errNoUserInContext = errors.New("no authenticated user")

func getUserFromContext(ctx *gin.Context) (domain.User, *response.Err) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return domain.User{}, response.ErrUnauthorized(errNoUserInContext)
	}

	return user, nil
}

func parseIDParam(ctx *gin.Context, name string) (uint, *response.Err) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, response.ErrBadRequest(errors.New(name + " must be a positive integer"))
	}

	return uint(id), nil
}
