package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeImagePurge = "image:purge"
)

// ImagePurgePayload 描述删除图片后需要清理的对象。
type ImagePurgePayload struct {
	ImageID       string `json:"image_id"`
	ObjectKey     string `json:"object_key"`
	CorrelationID string `json:"correlation_id"`
}

// NewImagePurgeTask 构造一个清理图片对象的任务。
func NewImagePurgeTask(imageID, objectKey, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ImagePurgePayload{
		ImageID:       imageID,
		ObjectKey:     objectKey,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeImagePurge, payload), nil
}
