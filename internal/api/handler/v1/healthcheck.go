package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-loyalty/points-api/internal/api/handler/v1/response"
)

// HandleHealthcheck godoc
// @Summary      Healthcheck
// @Tags         healthcheck
// @Produce      json
// @Success      200  {object}  response.HealthcheckResponse
// @Router       /healthz [get]
func HandleHealthcheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, response.HealthcheckResponse{Status: "ok"})
}
