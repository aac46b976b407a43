package novel

import "errors"

var (
	ErrEventNotFound = errors.New("event not found")
	ErrTextNotFound  = errors.New("text not found")
	ErrImageNotFound = errors.New("image not found")

	// ErrTextsSpanEvents 表示一次重排提交的文本不属于同一个事件。
	ErrTextsSpanEvents = errors.New("texts belong to different events")
	// ErrDuplicateTextID 表示重排列表中出现重复 ID。
	ErrDuplicateTextID = errors.New("duplicate text id in reorder list")
)
