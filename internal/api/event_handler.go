package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"textnovel/internal/api/middleware"
	"textnovel/internal/broadcast"
	"textnovel/internal/service"
)

// EventHandler 负责事件聚合相关的 API。
type EventHandler struct {
	events *service.EventService
}

func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// GET /api/events
func (h *EventHandler) ListEvents(c *gin.Context) {
	items, err := h.events.List(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// POST /api/events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req service.CreateEventInput
	if !bindJSON(c, &req) {
		return
	}
	event, err := h.events.Create(requestContext(c), req)
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// GET /api/events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	event, err := h.events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// PUT /api/events/:id
// 缺省字段保持不变；characters 出现时整体替换角色列表。
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	var req service.UpdateEventInput
	if !bindJSON(c, &req) {
		return
	}
	event, err := h.events.Update(requestContext(c), c.Param("id"), req)
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// DELETE /api/events/:id
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	if err := h.events.Delete(requestContext(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// requestContext 把 Correlation ID 作为变更来源带入服务层。
func requestContext(c *gin.Context) context.Context {
	return broadcast.WithOrigin(c.Request.Context(), middleware.GetCorrelationID(c))
}
