package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"textnovel/internal/broadcast"
	"textnovel/internal/errcode"
	"textnovel/internal/novel"
	"textnovel/internal/repository"
	"textnovel/internal/scan"
	"textnovel/internal/storage"
)

// ObjectStore 是图片服务依赖的对象存储能力，由 storage.Client 实现。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	OpenObject(ctx context.Context, objectKey string) (io.ReadCloser, int64, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// Scanner 在上传前检查文件内容，由 scan.ClamdScanner 实现。
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// PurgeQueue 异步清理已删除图片的对象，由 tasks.Queue 实现。
type PurgeQueue interface {
	EnqueueImagePurge(ctx context.Context, imageID, objectKey, correlationID string) error
}

// UploadInput 是一次图片上传。Content 需要可回绕，以便嗅探类型和扫描后再上传。
type UploadInput struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// ImageOptions 汇总图片服务的可选依赖与限制。
type ImageOptions struct {
	MaxBytes         int64
	AllowedMIMETypes []string
	Scanner          Scanner
	Queue            PurgeQueue
	Logger           *slog.Logger
}

// ImageService 负责图片的上传、读取与删除。
type ImageService struct {
	repo     repository.ImageRepository
	objects  ObjectStore
	scanner  Scanner
	queue    PurgeQueue
	logger   *slog.Logger
	maxBytes int64
	allowed  []string
}

func NewImageService(repo repository.ImageRepository, objects ObjectStore, opts ImageOptions) *ImageService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{
		repo:     repo,
		objects:  objects,
		scanner:  opts.Scanner,
		queue:    opts.Queue,
		logger:   logger,
		maxBytes: opts.MaxBytes,
		allowed:  opts.AllowedMIMETypes,
	}
}

// Upload 校验大小和真实类型，可选地做病毒扫描，然后写入对象存储并登记元数据。
func (s *ImageService) Upload(ctx context.Context, in UploadInput) (novel.Image, error) {
	if in.Content == nil {
		return novel.Image{}, errcode.Uploadf("no file uploaded")
	}
	if in.Size <= 0 {
		return novel.Image{}, errcode.Uploadf("uploaded file is empty")
	}
	if s.maxBytes > 0 && in.Size > s.maxBytes {
		return novel.Image{}, errcode.Uploadf(fmt.Sprintf("file exceeds the %d byte limit", s.maxBytes))
	}

	detected, err := mimetype.DetectReader(in.Content)
	if err != nil {
		return novel.Image{}, errcode.InternalWrap("failed to read upload", err)
	}
	mimeType, ok := s.matchAllowed(detected)
	if !ok {
		return novel.Image{}, errcode.Uploadf("only image files are allowed (jpeg, png, gif, webp)")
	}

	if s.scanner != nil {
		if err := rewind(in.Content); err != nil {
			return novel.Image{}, err
		}
		if err := s.scanner.Scan(ctx, in.Content); err != nil {
			if errors.Is(err, scan.ErrInfected) {
				return novel.Image{}, errcode.Uploadf("malicious file detected")
			}
			return novel.Image{}, errcode.InternalWrap("failed to scan file", err)
		}
	}
	if err := rewind(in.Content); err != nil {
		return novel.Image{}, err
	}

	id := uuid.NewString()
	objectKey := "images/" + id + detected.Extension()
	if _, err := s.objects.UploadFile(ctx, objectKey, in.Content, in.Size, mimeType); err != nil {
		return novel.Image{}, errcode.InternalWrap("failed to store file", err)
	}

	img, err := s.repo.CreateImage(ctx, novel.Image{
		ID:          id,
		Filename:    cleanFilename(in.Filename, id+detected.Extension()),
		OriginalURL: novel.ImageURL(id),
		FilePath:    objectKey,
		FileSize:    in.Size,
		MimeType:    mimeType,
	})
	if err != nil {
		if delErr := s.objects.DeleteObject(ctx, objectKey); delErr != nil {
			s.logger.Warn("remove orphaned image object failed",
				slog.String("object_key", objectKey),
				slog.Any("error", delErr),
			)
		}
		return novel.Image{}, translate(err)
	}
	return img, nil
}

// Open 返回图片元数据与对象内容，调用方负责关闭 reader。
func (s *ImageService) Open(ctx context.Context, id string) (novel.Image, io.ReadCloser, int64, error) {
	if !isID(id) {
		return novel.Image{}, nil, 0, errImageNotFound
	}
	img, err := s.repo.GetImage(ctx, id)
	if err != nil {
		return novel.Image{}, nil, 0, translate(err)
	}
	body, size, err := s.objects.OpenObject(ctx, img.FilePath)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			return novel.Image{}, nil, 0, errImageNotFound
		}
		return novel.Image{}, nil, 0, errcode.InternalWrap("failed to read file", err)
	}
	return img, body, size, nil
}

// Delete 删除元数据，再异步清理对象；队列不可用时直接删除。
// 引用该图片的事件与角色不会被修改。
func (s *ImageService) Delete(ctx context.Context, id string) error {
	if !isID(id) {
		return errImageNotFound
	}
	img, err := s.repo.DeleteImage(ctx, id)
	if err != nil {
		return translate(err)
	}

	log := s.logger.With(slog.String("image_id", img.ID), slog.String("object_key", img.FilePath))
	if s.queue != nil {
		err := s.queue.EnqueueImagePurge(ctx, img.ID, img.FilePath, broadcast.OriginFromContext(ctx))
		if err == nil {
			return nil
		}
		log.Warn("enqueue image purge failed, deleting inline", slog.Any("error", err))
	}
	if err := s.objects.DeleteObject(ctx, img.FilePath); err != nil {
		log.Error("delete image object failed", slog.Any("error", err))
	}
	return nil
}

func (s *ImageService) matchAllowed(detected *mimetype.MIME) (string, bool) {
	for _, allowed := range s.allowed {
		if detected.Is(allowed) {
			return allowed, true
		}
	}
	return "", false
}

func rewind(r io.Seeker) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return errcode.InternalWrap("failed to read upload", err)
	}
	return nil
}

func cleanFilename(name, fallback string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
