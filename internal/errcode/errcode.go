package errcode

import (
	"errors"
	"net/http"
)

// Code 是返回给客户端的错误码。
// 约定：
// - VALIDATION_ERROR：输入缺失或格式错误（400）
// - NOT_FOUND：引用的资源不存在（404）
// - FILE_UPLOAD_ERROR：上传文件缺失、过大或类型不允许（400）
// - RATE_LIMITED：上传过于频繁（429）
// - INTERNAL_ERROR：系统错误，不向客户端暴露细节（500）
type Code string

const (
	Validation Code = "VALIDATION_ERROR"
	NotFound   Code = "NOT_FOUND"
	FileUpload Code = "FILE_UPLOAD_ERROR"
	RateLimit  Code = "RATE_LIMITED"
	Internal   Code = "INTERNAL_ERROR"
)

// Status 返回错误码对应的 HTTP 状态码。
func (c Code) Status() int {
	switch c {
	case Validation, FileUpload:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case RateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error 是服务层返回的结构化错误。Err 仅用于日志。
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func Validationf(msg string) *Error { return New(Validation, msg) }
func NotFoundf(msg string) *Error   { return New(NotFound, msg) }
func Uploadf(msg string) *Error     { return New(FileUpload, msg) }

// InternalWrap 包装未预期的错误，客户端只会看到 msg。
func InternalWrap(msg string, err error) *Error { return Wrap(Internal, msg, err) }

// From 将任意错误归一为 *Error，未知错误视为内部错误。
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return InternalWrap("internal server error", err)
}
