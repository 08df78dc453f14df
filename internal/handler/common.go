package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"swarm-deploy/internal/model"
	"swarm-deploy/pkg/utils"
)

// errorResponse maps a service error to its HTTP status and body. Validation
// errors are the caller's fault; everything else is reported as 500.
func errorResponse(err error) (int, model.ErrorResponse) {
	resp := model.ErrorResponse{
		Success: false,
		Message: err.Error(),
	}
	de, ok := utils.AsDeployError(err)
	if !ok {
		return http.StatusInternalServerError, resp
	}
	resp.Message = de.Message
	resp.Details = de.Details
	resp.Kind = string(de.Kind)
	resp.Code = de.Code
	if de.Kind == utils.KindValidation {
		return http.StatusBadRequest, resp
	}
	return http.StatusInternalServerError, resp
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Success: false,
		Message: "invalid request parameters",
		Details: err.Error(),
		Kind:    string(utils.KindValidation),
	})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
