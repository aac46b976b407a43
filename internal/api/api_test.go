package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textnovel/internal/broadcast"
	"textnovel/internal/config"
	"textnovel/internal/novel"
	"textnovel/internal/repository"
	"textnovel/internal/service"
	"textnovel/internal/storage"
)

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (s *fakeStorage) OpenObject(_ context.Context, objectKey string) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.uploaded[objectKey]
	if !ok {
		return nil, 0, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type testServer struct {
	router  *gin.Engine
	storage *fakeStorage
	redis   *redis.Client
	mr      *miniredis.Miniredis
	cfg     *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{Port: 3001, AllowedOrigins: []string{"*"}},
		Upload: config.UploadConfig{
			MaxBytes:         1024,
			AllowedMIMETypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryRepository()
	notifier := broadcast.NewPublisher(redisClient, logger)
	objects := newFakeStorage()

	svc := Services{
		Events: service.NewEventService(repo, notifier),
		Texts:  service.NewTextService(repo, notifier),
		Images: service.NewImageService(repo, objects, service.ImageOptions{
			MaxBytes:         cfg.Upload.MaxBytes,
			AllowedMIMETypes: cfg.Upload.AllowedMIMETypes,
			Logger:           logger,
		}),
	}

	router := NewRouter(cfg, logger)
	RegisterRoutes(router, cfg, svc, redisClient)
	return &testServer{router: router, storage: objects, redis: redisClient, mr: mr, cfg: cfg}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body=%s", w.Body.String())
	return out
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	require.Equal(t, status, w.Code, "body=%s", w.Body.String())
	body := decode[errorBody](t, w)
	assert.Equal(t, code, string(body.Error))
	assert.NotEmpty(t, body.Message)
	return body
}

func TestChapterOneScenario(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(t, http.MethodPost, "/api/events", map[string]any{"title": "Chapter 1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	event := decode[novel.Event](t, w)
	assert.Empty(t, event.Texts)
	assert.Empty(t, event.Characters)

	ids := map[string]string{}
	for _, content := range []string{"A", "B", "C"} {
		w = s.do(t, http.MethodPost, "/api/events/"+event.ID+"/texts", map[string]any{"content": content})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		ids[content] = decode[novel.Text](t, w).ID
	}

	w = s.do(t, http.MethodPut, "/api/texts/reorder", map[string]any{"textIds": []string{ids["C"], ids["A"], ids["B"]}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/events/"+event.ID+"/texts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	texts := decode[[]novel.Text](t, w)
	require.Len(t, texts, 3)
	for i, want := range []string{"C", "A", "B"} {
		assert.Equal(t, want, texts[i].Content)
		assert.Equal(t, i, texts[i].Order)
	}

	w = s.do(t, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summaries := decode[[]novel.EventSummary](t, w)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].TextCount)
}

func TestCreateEventRequiresTitle(t *testing.T) {
	s := newTestServer(t, testConfig())
	requireError(t, s.do(t, http.MethodPost, "/api/events", map[string]any{"title": ""}), http.StatusBadRequest, "VALIDATION_ERROR")
	requireError(t, s.do(t, http.MethodPost, "/api/events", map[string]any{}), http.StatusBadRequest, "VALIDATION_ERROR")
	requireError(t, s.do(t, http.MethodPost, "/api/events", "{"), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestReorderRequiresArray(t *testing.T) {
	s := newTestServer(t, testConfig())
	body := requireError(t, s.do(t, http.MethodPut, "/api/texts/reorder", `{"textIds":"abc"}`), http.StatusBadRequest, "VALIDATION_ERROR")
	assert.Equal(t, "textIds must be an array", body.Message)
	requireError(t, s.do(t, http.MethodPut, "/api/texts/reorder", `{}`), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestScopedReorderRejectsForeignTexts(t *testing.T) {
	s := newTestServer(t, testConfig())
	first := decode[novel.Event](t, s.do(t, http.MethodPost, "/api/events", map[string]any{"title": "one"}))
	second := decode[novel.Event](t, s.do(t, http.MethodPost, "/api/events", map[string]any{"title": "two"}))
	text := decode[novel.Text](t, s.do(t, http.MethodPost, "/api/events/"+first.ID+"/texts", map[string]any{"content": "hi"}))

	w := s.do(t, http.MethodPut, "/api/events/"+second.ID+"/texts/reorder", map[string]any{"textIds": []string{text.ID}})
	requireError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = s.do(t, http.MethodPut, "/api/events/"+first.ID+"/texts/reorder", map[string]any{"textIds": []string{text.ID}})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUpdateTextKeepsSpeaker(t *testing.T) {
	s := newTestServer(t, testConfig())
	event := decode[novel.Event](t, s.do(t, http.MethodPost, "/api/events", map[string]any{"title": "Chapter 1"}))

	w := s.do(t, http.MethodPut, "/api/events/"+event.ID, map[string]any{
		"characters": []map[string]any{{"name": "Aoi", "position": "left"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	event = decode[novel.Event](t, w)
	require.Len(t, event.Characters, 1)
	speaker := event.Characters[0].ID

	text := decode[novel.Text](t, s.do(t, http.MethodPost, "/api/events/"+event.ID+"/texts", map[string]any{"content": "hello", "characterId": speaker}))

	w = s.do(t, http.MethodPut, "/api/texts/"+text.ID, map[string]any{"content": "X"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[novel.Text](t, w)
	assert.Equal(t, "X", updated.Content)
	require.NotNil(t, updated.CharacterID)
	assert.Equal(t, speaker, *updated.CharacterID)

	w = s.do(t, http.MethodPut, "/api/texts/"+text.ID, map[string]any{"characterId": ""})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, decode[novel.Text](t, w).CharacterID)
}

func TestEventLifecycleAndNotFound(t *testing.T) {
	s := newTestServer(t, testConfig())
	event := decode[novel.Event](t, s.do(t, http.MethodPost, "/api/events", map[string]any{"title": "gone soon"}))
	text := decode[novel.Text](t, s.do(t, http.MethodPost, "/api/events/"+event.ID+"/texts", map[string]any{"content": "line"}))

	w := s.do(t, http.MethodDelete, "/api/events/"+event.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	requireError(t, s.do(t, http.MethodGet, "/api/events/"+event.ID, nil), http.StatusNotFound, "NOT_FOUND")
	requireError(t, s.do(t, http.MethodDelete, "/api/events/"+event.ID, nil), http.StatusNotFound, "NOT_FOUND")
	requireError(t, s.do(t, http.MethodPut, "/api/texts/"+text.ID, map[string]any{"content": "x"}), http.StatusNotFound, "NOT_FOUND")
	requireError(t, s.do(t, http.MethodGet, "/api/events/not-an-id", nil), http.StatusNotFound, "NOT_FOUND")

	w = s.do(t, http.MethodGet, "/api/events/"+event.ID+"/texts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestUnknownRouteAndCorrelationID(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	requireError(t, w, http.StatusNotFound, "NOT_FOUND")
	assert.Equal(t, "corr-123", w.Header().Get("X-Correlation-ID"))

	w = s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestPanicsBecomeInternalError(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.router.GET("/boom", func(*gin.Context) { panic("secret database password") })

	w := s.do(t, http.MethodGet, "/boom", nil)
	body := requireError(t, w, http.StatusInternalServerError, "INTERNAL_ERROR")
	assert.NotContains(t, body.Message, "secret")
}

func TestCORSAllowsAnyOriginWithoutCredentials(t *testing.T) {
	s := newTestServer(t, testConfig())
	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "https://editor.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	return s.uploadVia(t, "", field, filename, content)
}

// uploadVia 在 forwardedFor 非空时附带 X-Forwarded-For。
func (s *testServer) uploadVia(t *testing.T, forwardedFor, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
	req.Header.Set("Content-Type", contentType)
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestImageUploadServeAndDelete(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.upload(t, "image", "bg.png", pngBytes)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]string](t, w)
	assert.Equal(t, "/api/images/"+created["id"], created["url"])

	w = s.do(t, http.MethodGet, created["url"], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, w.Body.Bytes())

	w = s.do(t, http.MethodDelete, created["url"], nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, s.storage.deleted, 1)

	requireError(t, s.do(t, http.MethodGet, created["url"], nil), http.StatusNotFound, "NOT_FOUND")
	requireError(t, s.do(t, http.MethodDelete, created["url"], nil), http.StatusNotFound, "NOT_FOUND")
}

func TestImageUploadRejections(t *testing.T) {
	s := newTestServer(t, testConfig())

	requireError(t, s.upload(t, "file", "bg.png", pngBytes), http.StatusBadRequest, "FILE_UPLOAD_ERROR")
	requireError(t, s.upload(t, "image", "notes.png", []byte("just some text")), http.StatusBadRequest, "FILE_UPLOAD_ERROR")
	requireError(t, s.upload(t, "image", "big.png", append(pngBytes, bytes.Repeat([]byte{1}, 2048)...)), http.StatusBadRequest, "FILE_UPLOAD_ERROR")
	assert.Empty(t, s.storage.uploaded)
}

func TestImageUploadRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.RatePerMinute = 2
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		w := s.upload(t, "image", "bg.png", pngBytes)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := s.upload(t, "image", "bg.png", pngBytes)
	requireError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestImageUploadRateLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.RatePerMinute = 2
	s := newTestServer(t, cfg)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := s.uploadVia(t, fmt.Sprintf("10.0.0.%d", i+1), "image", "bg.png", pngBytes)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestImageUploadRateLimitUsesTrustedProxyHeader(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.RatePerMinute = 1
	// httptest 请求的 RemoteAddr 为 192.0.2.1
	cfg.API.TrustedProxies = []string{"192.0.2.0/24"}
	s := newTestServer(t, cfg)

	for i := 0; i < 3; i++ {
		w := s.uploadVia(t, fmt.Sprintf("10.0.0.%d", i+1), "image", "bg.png", pngBytes)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := s.uploadVia(t, "10.0.0.1", "image", "bg.png", pngBytes)
	requireError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
}

func TestScopedReorderOfUnknownEvent(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(t, http.MethodPut, "/api/events/"+uuid.NewString()+"/texts/reorder", map[string]any{"textIds": []string{}})
	requireError(t, w, http.StatusNotFound, "NOT_FOUND")

	event := decode[novel.Event](t, s.do(t, http.MethodPost, "/api/events", map[string]any{"title": "empty"}))
	w = s.do(t, http.MethodPut, "/api/events/"+event.ID+"/texts/reorder", map[string]any{"textIds": []string{}})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealthUnderAPIPrefix(t *testing.T) {
	s := newTestServer(t, testConfig())
	for _, path := range []string{"/health", "/api/health"} {
		w := s.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	}
}

func TestRoutesWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Upload.RatePerMinute = 1
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemoryRepository()
	svc := Services{
		Events: service.NewEventService(repo, broadcast.Nop{}),
		Texts:  service.NewTextService(repo, broadcast.Nop{}),
		Images: service.NewImageService(repo, newFakeStorage(), service.ImageOptions{
			MaxBytes:         cfg.Upload.MaxBytes,
			AllowedMIMETypes: cfg.Upload.AllowedMIMETypes,
			Logger:           logger,
		}),
	}
	router := NewRouter(cfg, logger)
	RegisterRoutes(router, cfg, svc, nil)
	s := &testServer{router: router, cfg: cfg}

	for i := 0; i < 3; i++ {
		w := s.upload(t, "image", "bg.png", pngBytes)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	event := decode[novel.Event](t, s.do(t, http.MethodPost, "/api/events", map[string]any{"title": "offline"}))
	requireError(t, s.do(t, http.MethodGet, "/api/events/"+event.ID+"/ws", nil), http.StatusNotFound, "NOT_FOUND")
}
