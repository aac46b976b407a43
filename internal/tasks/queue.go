package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Queue 把后台任务投递到 asynq。
type Queue struct {
	client *asynq.Client
}

func NewQueue(client *asynq.Client) *Queue {
	return &Queue{client: client}
}

// EnqueueImagePurge 投递对象清理任务，失败时最多重试 5 次。
func (q *Queue) EnqueueImagePurge(ctx context.Context, imageID, objectKey, correlationID string) error {
	task, err := NewImagePurgeTask(imageID, objectKey, correlationID)
	if err != nil {
		return fmt.Errorf("build image purge task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue image purge: %w", err)
	}
	return nil
}
