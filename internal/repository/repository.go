// Package repository 负责事件聚合的持久化：文本的有序列表、
// 事件与角色的嵌套写入，以及图片元数据。
package repository

import (
	"context"

	"textnovel/internal/novel"
)

// EventRepository 管理事件聚合。
type EventRepository interface {
	CreateEvent(ctx context.Context, title string, description *string) (novel.Event, error)
	ListEvents(ctx context.Context) ([]novel.EventSummary, error)
	GetEvent(ctx context.Context, id string) (novel.Event, error)
	// UpdateEvent 在一个事务内写入标量字段并按需整体替换角色列表。
	UpdateEvent(ctx context.Context, id string, patch novel.EventPatch) (novel.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// TextRepository 管理事件内的有序文本。
type TextRepository interface {
	CreateText(ctx context.Context, in novel.NewText) (novel.Text, error)
	ListTexts(ctx context.Context, eventID string) ([]novel.Text, error)
	UpdateText(ctx context.Context, id string, patch novel.TextPatch) (novel.Text, error)
	// DeleteText 删除文本并返回被删除的记录。
	DeleteText(ctx context.Context, id string) (novel.Text, error)
	// ReorderTexts 按 ids 的顺序把 order 重写为 0..n-1，全部成功或全部回滚，
	// 返回文本所属的事件 ID（空列表返回 eventID 本身）。
	// eventID 非空时要求该事件存在（空列表同样校验），且所有文本属于该事件。
	ReorderTexts(ctx context.Context, eventID string, ids []string) (string, error)
}

// ImageRepository 管理图片元数据。
type ImageRepository interface {
	CreateImage(ctx context.Context, img novel.Image) (novel.Image, error)
	GetImage(ctx context.Context, id string) (novel.Image, error)
	// DeleteImage 删除记录并返回被删除的图片，便于调用方清理对象存储。
	DeleteImage(ctx context.Context, id string) (novel.Image, error)
}

// Store 聚合全部仓储接口，GormRepository 与 MemoryRepository 均实现它。
type Store interface {
	EventRepository
	TextRepository
	ImageRepository
}

func backgroundURL(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	url := novel.ImageURL(*id)
	return &url
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
