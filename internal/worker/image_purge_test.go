package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textnovel/internal/tasks"
)

type fakeDeleter struct {
	deleted []string
	err     error
}

func (d *fakeDeleter) DeleteObject(_ context.Context, objectKey string) error {
	if d.err != nil {
		return d.err
	}
	d.deleted = append(d.deleted, objectKey)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestImagePurgeDeletesObject(t *testing.T) {
	deleter := &fakeDeleter{}
	h := NewImagePurgeHandler(deleter, quietLogger())

	task, err := tasks.NewImagePurgeTask("img-1", "images/img-1.png", "corr-1")
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"images/img-1.png"}, deleter.deleted)
}

func TestImagePurgeSkipsRetryOnBadPayload(t *testing.T) {
	h := NewImagePurgeHandler(&fakeDeleter{}, quietLogger())

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeImagePurge, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestImagePurgeReturnsStorageError(t *testing.T) {
	boom := errors.New("minio unavailable")
	h := NewImagePurgeHandler(&fakeDeleter{err: boom}, quietLogger())

	task, err := tasks.NewImagePurgeTask("img-1", "images/img-1.png", "")
	require.NoError(t, err)
	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), boom)
}

func TestImagePurgeIgnoresEmptyKey(t *testing.T) {
	deleter := &fakeDeleter{}
	h := NewImagePurgeHandler(deleter, quietLogger())

	task, err := tasks.NewImagePurgeTask("img-1", "", "")
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Empty(t, deleter.deleted)
}

func TestImagePurgeRefusesForeignKeys(t *testing.T) {
	deleter := &fakeDeleter{}
	h := NewImagePurgeHandler(deleter, quietLogger())

	for _, key := range []string{"backups/db.sql", "images/../secrets.png", "images/a/b.png", "images/readme.txt", "images/"} {
		task, err := tasks.NewImagePurgeTask("img-1", key, "")
		require.NoError(t, err)
		err = h.ProcessTask(context.Background(), task)
		require.Error(t, err, key)
		assert.ErrorIs(t, err, asynq.SkipRetry, key)
	}
	assert.Empty(t, deleter.deleted)
}

func TestIsImageObjectKey(t *testing.T) {
	assert.True(t, isImageObjectKey("images/0b6f5a8e-8f5c-4b8e-9d59-2a1f3f0b1c2d.png"))
	assert.True(t, isImageObjectKey("images/x.JPEG"))
	assert.False(t, isImageObjectKey("images/x.svg"))
	assert.False(t, isImageObjectKey("images\\x.png"))
}
