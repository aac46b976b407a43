package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/hibiken/asynq"

	"textnovel/internal/tasks"
)

const imageKeyPrefix = "images/"

// ObjectDeleter 是清理任务依赖的对象存储能力。
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, objectKey string) error
}

// ImagePurgeHandler 消费 image:purge 任务，删除已下线图片的原文件。
type ImagePurgeHandler struct {
	storage ObjectDeleter
	logger  *slog.Logger
}

// NewImagePurgeHandler 创建任务处理器。
func NewImagePurgeHandler(storage ObjectDeleter, logger *slog.Logger) *ImagePurgeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImagePurgeHandler{storage: storage, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *ImagePurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ImagePurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode image purge payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("image_id", payload.ImageID),
		slog.String("object_key", payload.ObjectKey),
	)
	if payload.ObjectKey == "" {
		log.Warn("image purge task without object key, skipping")
		return nil
	}
	if !isImageObjectKey(payload.ObjectKey) {
		log.Error("refusing to purge object outside the image prefix")
		return fmt.Errorf("invalid object key %q: %w", payload.ObjectKey, asynq.SkipRetry)
	}

	if err := h.storage.DeleteObject(ctx, payload.ObjectKey); err != nil {
		if isFinalAsynqAttempt(ctx) {
			log.Error("purge image object failed, giving up", slog.Any("error", err))
		} else {
			log.Warn("purge image object failed, will retry", slog.Any("error", err))
		}
		return err
	}

	log.Info("image object purged")
	return nil
}

// isImageObjectKey 只允许删除 images/ 下由上传接口生成的对象。
func isImageObjectKey(key string) bool {
	if !utf8.ValidString(key) || len(key) > 200 {
		return false
	}
	name, ok := strings.CutPrefix(key, imageKeyPrefix)
	if !ok || name == "" {
		return false
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return false
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
