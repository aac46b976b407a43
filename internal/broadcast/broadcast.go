// Package broadcast 通过 Redis Pub/Sub 向正在编辑同一事件的客户端推送变更通知。
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// 变更类型，字段名与前端解析保持一致。
const (
	EventUpdated   = "event.updated"
	EventDeleted   = "event.deleted"
	TextCreated    = "text.created"
	TextUpdated    = "text.updated"
	TextDeleted    = "text.deleted"
	TextsReordered = "texts.reordered"
)

// Change 是推送给客户端的一条变更通知。
type Change struct {
	Type    string    `json:"type"`
	EventID string    `json:"eventId"`
	TextIDs []string  `json:"textIds,omitempty"`
	Origin  string    `json:"origin,omitempty"`
	At      time.Time `json:"at"`
}

// Channel 返回某个事件的 Redis 频道名。
func Channel(eventID string) string {
	return "event-changes:" + eventID
}

// Notifier 发布变更通知。通知是尽力而为的，失败不影响写操作本身。
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

// Nop 丢弃所有通知。
type Nop struct{}

func (Nop) Notify(context.Context, Change) {}

// Publisher 把通知发布到 Redis。
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Notify 实现 Notifier。
func (p *Publisher) Notify(ctx context.Context, change Change) {
	if change.EventID == "" {
		return
	}
	if change.At.IsZero() {
		change.At = p.now()
	}
	if change.Origin == "" {
		change.Origin = OriginFromContext(ctx)
	}
	if err := p.publish(ctx, change); err != nil {
		p.logger.Warn("publish event change failed",
			slog.String("event_id", change.EventID),
			slog.String("type", change.Type),
			slog.Any("error", err),
		)
	}
}

func (p *Publisher) publish(ctx context.Context, change Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	channel := Channel(change.EventID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", channel, err)
	}
	return nil
}

type originKey struct{}

// WithOrigin 记录触发变更的请求 ID，客户端据此忽略自己发出的修改。
func WithOrigin(ctx context.Context, origin string) context.Context {
	if origin == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext 读取 WithOrigin 写入的请求 ID。
func OriginFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(originKey{}).(string); ok {
		return v
	}
	return ""
}
