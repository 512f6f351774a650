package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/config"
	"github.com/icoforge/icoforge/internal/http/middleware"
	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/internal/services/metrics"
	"github.com/icoforge/icoforge/internal/services/pipeline"
	"github.com/icoforge/icoforge/internal/services/queue"
	"github.com/icoforge/icoforge/internal/services/ratelimit"
	"github.com/icoforge/icoforge/internal/services/sanitizer"
	"github.com/icoforge/icoforge/internal/services/workerpool"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">
	<rect x="8" y="8" width="48" height="48" fill="#c0392b"/>
</svg>`

const scriptSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">
	<script>alert(1)</script>
	<rect width="64" height="64" fill="red"/>
</svg>`

type testApp struct {
	router *gin.Engine
	pool   *workerpool.Pool
	queue  *queue.Queue
}

func newTestApp(t *testing.T, maxRequests int) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	cfg := &config.Config{
		Server: config.ServerConfig{CORSOrigin: "*"},
		Admin:  config.AdminConfig{Password: "hunter2"},
		Upload: config.UploadConfig{MaxFileSize: 10 * 1024 * 1024},
	}

	q := queue.New(10, 5*time.Second, logger)
	pool := workerpool.New(q, pipeline.New(logger), 1, logger)
	pool.Start()

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), time.Hour, maxRequests, time.Minute, logger)
	sink := metrics.NewSink(metrics.NoopStore{}, logger)

	convertHandler := NewConvertHandler(sanitizer.New(logger), q, sink, logger, cfg)
	adminHandler := NewAdminHandler(metrics.NoopStore{}, logger)

	router := gin.New()
	router.POST("/api/v1/convert", middleware.RateLimit(limiter, logger), convertHandler.Convert)
	admin := router.Group("/api/v1/admin", middleware.AdminAuth(cfg.Admin.Password))
	admin.GET("/stats/summary", adminHandler.GetSummary)

	t.Cleanup(func() {
		q.Shutdown()
		pool.Shutdown()
	})

	return &testApp{router: router, pool: pool, queue: q}
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func doConvert(app *testApp, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestConvertSVGToICO(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "logo.svg", []byte(testSVG), nil)
	rec := doConvert(app, body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/x-icon", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="logo.ico"`, rec.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, rec.Header().Get("X-Processing-Time-Ms"))
	assert.Equal(t, []byte{0, 0, 1, 0}, rec.Body.Bytes()[:4])
}

func TestConvertAllReturnsZip(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "logo.svg", []byte(testSVG), map[string]string{"format": "all"})
	rec := doConvert(app, body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="logo.zip"`, rec.Header().Get("Content-Disposition"))
}

func TestConvertBothAliasesAll(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "logo.svg", []byte(testSVG), map[string]string{"format": "both"})
	rec := doConvert(app, body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
}

func TestConvertMissingFile(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "", nil, map[string]string{"format": "ico"})
	rec := doConvert(app, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "No file provided", resp.Error)
}

func TestConvertUnsupportedExtension(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "photo.jpg", []byte("not an image"), nil)
	rec := doConvert(app, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Contains(t, resp.Error, "SVG or PNG")
}

func TestConvertRejectsScriptSVG(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "evil.svg", []byte(scriptSVG), nil)
	rec := doConvert(app, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
}

func TestConvertRejectsOutOfRangeScale(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "logo.svg", []byte(testSVG), map[string]string{"scale": "10"})
	rec := doConvert(app, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Contains(t, resp.Error, "scale")
}

func encodeTestPNG(t *testing.T, side int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestConvertPNGSource(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "mark.png", encodeTestPNG(t, 64), map[string]string{
		"format":       "png",
		"outputSize":   "32",
		"sourceWidth":  "64",
		"sourceHeight": "64",
	})
	rec := doConvert(app, body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="mark.png"`, rec.Header().Get("Content-Disposition"))

	decoded, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 32, decoded.Bounds().Dx())
	assert.Equal(t, 32, decoded.Bounds().Dy())
}

func TestConvertPNGRequiresDeclaredDimensions(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "mark.png", encodeTestPNG(t, 64), map[string]string{"format": "png"})
	rec := doConvert(app, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Contains(t, resp.Error, "sourceWidth")
}

func TestConvertPNGRejectsMismatchedDimensions(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "mark.png", encodeTestPNG(t, 64), map[string]string{
		"format":       "png",
		"sourceWidth":  "128",
		"sourceHeight": "128",
	})
	rec := doConvert(app, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Contains(t, resp.Error, "do not match")
}

func TestConvertRejectsInvalidPNG(t *testing.T) {
	app := newTestApp(t, 100)

	body, ct := multipartUpload(t, "fake.png", []byte("definitely not a png"), nil)
	rec := doConvert(app, body, ct)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
}

func TestConvertRateLimited(t *testing.T) {
	app := newTestApp(t, 1)

	body, ct := multipartUpload(t, "logo.svg", []byte(testSVG), nil)
	rec := doConvert(app, body, ct)
	require.Equal(t, http.StatusOK, rec.Code)

	body, ct = multipartUpload(t, "logo.svg", []byte(testSVG), nil)
	rec = doConvert(app, body, ct)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
}

func TestAdminRequiresPassword(t *testing.T) {
	app := newTestApp(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/summary", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/summary", nil)
	req.Header.Set("X-Admin-Password", "wrong")
	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/summary", nil)
	req.Header.Set("X-Admin-Password", "hunter2")
	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
}
