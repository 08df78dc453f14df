package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"swarm-deploy/internal/model"
	"swarm-deploy/internal/pkg/logger"
	"swarm-deploy/internal/service"
)

const writeWait = 10 * time.Second

type DeployHandler struct {
	tasks    *service.TaskService
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewDeployHandler serves deployment tasks. Log streams are accepted from the
// given origins and from clients that send no Origin header.
func NewDeployHandler(tasks *service.TaskService, allowOrigins []string, logger *logger.Logger) *DeployHandler {
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = true
	}
	return &DeployHandler{
		tasks:  tasks,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *DeployHandler) Deploy(c *gin.Context) {
	var req model.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	taskID, err := h.tasks.Start(&req)
	switch {
	case errors.Is(err, service.ErrStackBusy):
		c.JSON(http.StatusConflict, model.DeployResponse{
			Success: false,
			TaskID:  taskID,
			Message: err.Error(),
		})
		return
	case err != nil:
		status, resp := errorResponse(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusAccepted, model.DeployResponse{
		Success: true,
		TaskID:  taskID,
		Message: "deployment started",
	})
}

func (h *DeployHandler) Progress(c *gin.Context) {
	taskID := c.Param("taskId")
	progress, ok := h.tasks.Progress(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: service.ErrTaskNotFound.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Stream sends the task log over a websocket, one text message per line, and
// finishes with the task progress as a JSON message once the task is done.
func (h *DeployHandler) Stream(c *gin.Context) {
	taskID := c.Param("taskId")
	backlog, lines, cancel, err := h.tasks.Subscribe(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	defer cancel()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "task", taskID, "error", err.Error())
		return
	}
	defer ws.Close()

	// the client never sends anything; reading only notices when it goes away
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(line string) error {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteMessage(websocket.TextMessage, []byte(line))
	}
	for _, line := range backlog {
		if err := send(line); err != nil {
			return
		}
	}
	for line := range lines {
		if err := send(line); err != nil {
			h.logger.Debugw("log stream closed by client", "task", taskID, "error", err.Error())
			return
		}
	}

	progress, ok := h.tasks.Progress(taskID)
	if !ok {
		return
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(progress); err != nil {
		return
	}
	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, progress.Status))
}
