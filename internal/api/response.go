package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"textnovel/internal/api/middleware"
	"textnovel/internal/errcode"
)

type errorBody struct {
	Error   errcode.Code `json:"error"`
	Message string       `json:"message"`
}

// Error 把任意错误写成 {"error": CODE, "message": ...}。内部错误只记录日志，不返回细节。
func Error(c *gin.Context, err error) {
	coded := errcode.From(err)
	if coded.Code == errcode.Internal {
		middleware.LoggerFromContext(c).Error("request failed", slog.Any("error", err))
	}
	c.AbortWithStatusJSON(coded.Code.Status(), errorBody{Error: coded.Code, Message: coded.Message})
}

// bindJSON 解析请求体，失败时写入 VALIDATION_ERROR 并返回 false。
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		Error(c, errcode.Validationf(describeBindError(err)))
		return false
	}
	return true
}

func describeBindError(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return fmt.Sprintf("request body must be a JSON %s", jsonKind(typeErr.Type.Kind().String()))
		}
		return fmt.Sprintf("%s must be %s", typeErr.Field, jsonKind(typeErr.Type.Kind().String()))
	case errors.As(err, &syntaxErr):
		return "request body is not valid JSON"
	default:
		return "invalid request body"
	}
}

func jsonKind(kind string) string {
	switch kind {
	case "slice", "array":
		return "an array"
	case "struct", "map":
		return "an object"
	case "string":
		return "a string"
	case "bool":
		return "a boolean"
	case "ptr":
		return "a value"
	default:
		return "a number"
	}
}
