package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"textnovel/internal/service"
)

// TextHandler 负责事件内文本的 API。
type TextHandler struct {
	texts *service.TextService
}

func NewTextHandler(texts *service.TextService) *TextHandler {
	return &TextHandler{texts: texts}
}

// GET /api/events/:id/texts
func (h *TextHandler) ListTexts(c *gin.Context) {
	texts, err := h.texts.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, texts)
}

// POST /api/events/:id/texts
func (h *TextHandler) CreateText(c *gin.Context) {
	var req service.CreateTextInput
	if !bindJSON(c, &req) {
		return
	}
	text, err := h.texts.Create(requestContext(c), c.Param("id"), req)
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, text)
}

// PUT /api/texts/:id
func (h *TextHandler) UpdateText(c *gin.Context) {
	var req service.UpdateTextInput
	if !bindJSON(c, &req) {
		return
	}
	text, err := h.texts.Update(requestContext(c), c.Param("id"), req)
	if err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, text)
}

// DELETE /api/texts/:id
func (h *TextHandler) DeleteText(c *gin.Context) {
	if err := h.texts.Delete(requestContext(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PUT /api/texts/reorder
func (h *TextHandler) ReorderTexts(c *gin.Context) {
	h.reorder(c, "")
}

// PUT /api/events/:id/texts/reorder
// 与 /api/texts/reorder 相同，但要求所有文本属于路径中的事件。
func (h *TextHandler) ReorderEventTexts(c *gin.Context) {
	h.reorder(c, c.Param("id"))
}

func (h *TextHandler) reorder(c *gin.Context, eventID string) {
	var req service.ReorderInput
	if !bindJSON(c, &req) {
		return
	}
	if err := h.texts.Reorder(requestContext(c), eventID, req); err != nil {
		Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "texts reordered"})
}
