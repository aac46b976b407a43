package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"textnovel/internal/api/middleware"
	"textnovel/internal/errcode"
	"textnovel/internal/service"
)

// 表单字段与文件之外的 multipart 开销上限。
const multipartOverhead = 1 << 20

// ImageHandler 负责图片上传与访问。
type ImageHandler struct {
	images   *service.ImageService
	maxBytes int64
	limiter  *uploadLimiter
}

// NewImageHandler 返回 ImageHandler 实例。redisClient 为 nil 或 ratePerMinute 为 0 时不限流。
func NewImageHandler(images *service.ImageService, maxBytes int64, redisClient *redis.Client, ratePerMinute int) *ImageHandler {
	h := &ImageHandler{images: images, maxBytes: maxBytes}
	if redisClient != nil && ratePerMinute > 0 {
		h.limiter = newUploadLimiter(redisClient, ratePerMinute)
	}
	return h
}

// POST /api/images/upload
// multipart 字段名为 image。
func (h *ImageHandler) UploadImage(c *gin.Context) {
	if !h.allowUpload(c) {
		return
	}

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}
	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(c, errcode.Uploadf(fmt.Sprintf("file exceeds the %d byte limit", h.maxBytes)))
			return
		}
		Error(c, errcode.Uploadf("no file uploaded (expected multipart field \"image\")"))
		return
	}

	fileReader, err := file.Open()
	if err != nil {
		Error(c, errcode.InternalWrap("failed to open file", err))
		return
	}
	defer fileReader.Close()

	img, err := h.images.Upload(requestContext(c), service.UploadInput{
		Filename: file.Filename,
		Size:     file.Size,
		Content:  fileReader,
	})
	if err != nil {
		Error(c, err)
		return
	}

	middleware.LoggerFromContext(c).Info("image uploaded",
		slog.String("image_id", img.ID),
		slog.Int64("size", img.FileSize),
		slog.String("mime_type", img.MimeType),
	)
	c.JSON(http.StatusCreated, gin.H{"id": img.ID, "url": img.OriginalURL})
}

// GET /api/images/:id
func (h *ImageHandler) GetImage(c *gin.Context) {
	img, body, size, err := h.images.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, size, img.MimeType, body, map[string]string{
		"Cache-Control":       "public, max-age=31536000, immutable",
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", img.Filename),
	})
}

// DELETE /api/images/:id
func (h *ImageHandler) DeleteImage(c *gin.Context) {
	if err := h.images.Delete(requestContext(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// allowUpload 按客户端 IP 限制上传频率。Redis 不可用时放行。
func (h *ImageHandler) allowUpload(c *gin.Context) bool {
	if h.limiter == nil {
		return true
	}
	ok, err := h.limiter.allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		middleware.LoggerFromContext(c).Warn("upload rate counter unavailable", slog.Any("error", err))
		return true
	}
	if !ok {
		c.Header("Retry-After", "60")
		Error(c, errcode.New(errcode.RateLimit, "too many uploads, try again later"))
		return false
	}
	return true
}
