package middleware

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"textnovel/internal/errcode"
)

// RecoveryMiddleware 捕获 panic 并返回统一的 INTERNAL_ERROR，不向客户端暴露堆栈。
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		LoggerFromContext(c).Error("panic recovered", slog.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   errcode.Internal,
			"message": "internal server error",
		})
	})
}
