package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/service"
)

type SSHHandler struct {
	sshService *service.SSHService
}

func NewSSHHandler(sshService *service.SSHService) *SSHHandler {
	return &SSHHandler{
		sshService: sshService,
	}
}

func (h *SSHHandler) TestConnection(c *gin.Context) {
	var req model.SSHTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.sshService.TestConnection(&req)
	if err != nil {
		status, resp := errorResponse(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(readinessStatus(result), result)
}

func (h *SSHHandler) BatchTestConnection(c *gin.Context) {
	var req model.BatchSSHTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.sshService.BatchTestConnection(&req))
}

// readinessStatus is 200 for a swarm manager ready to deploy, 502 when the
// host could not be reached and 409 when it is up but cannot take a stack.
func readinessStatus(r *model.SSHTestResponse) int {
	switch {
	case r.Success:
		return http.StatusOK
	case !r.Reachable:
		return http.StatusBadGateway
	default:
		return http.StatusConflict
	}
}
