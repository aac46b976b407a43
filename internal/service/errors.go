// Package service 承载校验与业务规则，把仓储错误翻译为对外的错误码。
package service

import (
	"errors"

	"textnovel/internal/errcode"
	"textnovel/internal/novel"
)

var (
	errEventNotFound = errcode.NotFoundf("event not found")
	errTextNotFound  = errcode.NotFoundf("text not found")
	errImageNotFound = errcode.NotFoundf("image not found")
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, novel.ErrEventNotFound):
		return errEventNotFound
	case errors.Is(err, novel.ErrTextNotFound):
		return errTextNotFound
	case errors.Is(err, novel.ErrImageNotFound):
		return errImageNotFound
	case errors.Is(err, novel.ErrTextsSpanEvents):
		return errcode.Validationf("textIds must all belong to the same event")
	case errors.Is(err, novel.ErrDuplicateTextID):
		return errcode.Validationf("textIds must not contain duplicates")
	}
	var coded *errcode.Error
	if errors.As(err, &coded) {
		return coded
	}
	return errcode.InternalWrap("internal server error", err)
}
