package handler

import (
	"net/http"
	"strconv"

	"affluence/internal/middleware"
	"affluence/internal/service"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	svc *service.TaskService
}

func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

func (h *TaskHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), true)
	if err != nil {
		respondError(c, "task", "failed to list tasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *TaskHandler) Complete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	res, err := h.svc.Complete(c.Request.Context(), middleware.GetUserID(c), uint(id))
	if err != nil {
		respondError(c, "task", "task completion failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": res.Balance, "transaction": res.Transaction})
}
