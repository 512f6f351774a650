package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/config"
	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/internal/services/metrics"
	"github.com/icoforge/icoforge/internal/services/queue"
	"github.com/icoforge/icoforge/internal/services/sanitizer"
	"github.com/icoforge/icoforge/pkg/utils"
)

const fileParamKey = "file"

type ConvertHandler struct {
	sanitizer *sanitizer.Sanitizer
	queue     *queue.Queue
	metrics   *metrics.Sink
	logger    *zap.Logger
	config    *config.Config
}

func NewConvertHandler(
	san *sanitizer.Sanitizer,
	q *queue.Queue,
	sink *metrics.Sink,
	logger *zap.Logger,
	cfg *config.Config,
) *ConvertHandler {
	return &ConvertHandler{
		sanitizer: san,
		queue:     q,
		metrics:   sink,
		logger:    logger,
		config:    cfg,
	}
}

// Convert accepts an SVG or PNG upload, sanitizes it, queues the conversion
// and streams the resulting artifact back as an attachment.
func (h *ConvertHandler) Convert(c *gin.Context) {
	start := time.Now()

	job, err := h.buildJob(c)
	if err != nil {
		h.respondError(c, start, err)
		if job != nil {
			h.recordMetric(c, job, start, nil, err)
		}
		return
	}

	future, err := h.queue.Enqueue(job)
	if err != nil {
		h.respondError(c, start, err)
		h.recordMetric(c, job, start, nil, err)
		return
	}

	// The deadline timer guarantees settlement within the job timeout, so
	// waiting without a secondary timeout cannot hang.
	<-future.Done()
	artifacts, err := future.Result()

	c.Header("X-Processing-Time-Ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10))

	if err != nil {
		h.respondError(c, start, err)
		h.recordMetric(c, job, start, nil, err)
		return
	}

	artifact := artifacts[0]
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Data(http.StatusOK, artifact.MIMEType, artifact.Data)

	h.recordMetric(c, job, start, &artifact, nil)
}

// buildJob validates the upload and assembles the job inputs. A nil job is
// returned only before the upload could be identified at all.
func (h *ConvertHandler) buildJob(c *gin.Context) (*models.Job, error) {
	file, header, err := c.Request.FormFile(fileParamKey)
	if err != nil {
		return nil, apperrors.New(apperrors.KindBadInput, "No file provided")
	}
	defer file.Close()

	if header.Size > h.config.Upload.MaxFileSize {
		return nil, apperrors.Newf(apperrors.KindTooLarge,
			"File exceeds the %d byte limit", h.config.Upload.MaxFileSize)
	}

	sourceType, err := detectSourceType(header.Filename)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(file, h.config.Upload.MaxFileSize+1))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindBadInput, "Failed to read upload", err)
	}
	if int64(len(data)) > h.config.Upload.MaxFileSize {
		return nil, apperrors.Newf(apperrors.KindTooLarge,
			"File exceeds the %d byte limit", h.config.Upload.MaxFileSize)
	}

	job := &models.Job{
		SourceType:       sourceType,
		OriginalFilename: header.Filename,
	}

	if sourceType == models.SourceSVG {
		if err := sanitizer.QuickSafe(data); err != nil {
			return job, err
		}
	}
	result, err := h.sanitizer.Sanitize(data, sourceType)
	if err != nil {
		return job, err
	}
	job.SourceBytes = result.SafeBytes

	if sourceType == models.SourcePNG {
		declared, err := parseSourceDimensions(c)
		if err != nil {
			return job, err
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(job.SourceBytes))
		if err != nil {
			return job, apperrors.Wrap(apperrors.KindInvalidSource, "The file is not a valid PNG", err)
		}
		if declared.Width != cfg.Width || declared.Height != cfg.Height {
			return job, apperrors.Newf(apperrors.KindBadInput,
				"sourceWidth/sourceHeight (%dx%d) do not match the PNG (%dx%d)",
				declared.Width, declared.Height, cfg.Width, cfg.Height)
		}
		job.SourceDimensions = &models.Dimensions{Width: cfg.Width, Height: cfg.Height}
	}

	opts, err := parseOptions(c)
	if err != nil {
		return job, err
	}
	job.Options = opts

	return job, nil
}

// parseSourceDimensions reads the sourceWidth/sourceHeight fields a PNG
// upload must declare.
func parseSourceDimensions(c *gin.Context) (*models.Dimensions, error) {
	width, err := parsePositiveField(c, "sourceWidth")
	if err != nil {
		return nil, err
	}
	height, err := parsePositiveField(c, "sourceHeight")
	if err != nil {
		return nil, err
	}
	return &models.Dimensions{Width: width, Height: height}, nil
}

func parsePositiveField(c *gin.Context, field string) (int, error) {
	v := c.PostForm(field)
	if v == "" {
		return 0, apperrors.Newf(apperrors.KindBadInput, "%s is required for PNG input", field)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, apperrors.Newf(apperrors.KindBadInput, "%s must be a positive integer", field)
	}
	return n, nil
}

func detectSourceType(filename string) (models.SourceType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".svg":
		return models.SourceSVG, nil
	case ".png":
		return models.SourcePNG, nil
	default:
		return "", apperrors.New(apperrors.KindBadInput, "Unsupported file type. Upload an SVG or PNG")
	}
}

// parseOptions reads the form fields, applying documented defaults for any
// field that is absent. "both" is accepted as a legacy alias for "all".
func parseOptions(c *gin.Context) (models.ConversionOptions, error) {
	opts := models.DefaultOptions()

	if v := c.PostForm("format"); v != "" {
		if v == "both" {
			v = string(models.FormatAll)
		}
		opts.Format = models.OutputFormat(v)
	}

	var err error
	if opts.ScalePercent, err = parseFloatField(c, "scale", opts.ScalePercent); err != nil {
		return opts, err
	}
	if opts.CornerRadiusPercent, err = parseFloatField(c, "cornerRadius", opts.CornerRadiusPercent); err != nil {
		return opts, err
	}

	if v := c.PostForm("backgroundRemovalMode"); v != "" {
		opts.BackgroundRemoval = models.BackgroundRemovalMode(v)
	}
	opts.BackgroundRemovalColor = c.PostForm("backgroundRemovalColor")

	if opts.PNG.Size, err = parseIntField(c, "outputSize", opts.PNG.Size); err != nil {
		return opts, err
	}
	if opts.PNG.DPI, err = parseIntField(c, "pngDpi", opts.PNG.DPI); err != nil {
		return opts, err
	}
	if v := c.PostForm("pngColorspace"); v != "" {
		opts.PNG.Colorspace = v
	}
	if opts.PNG.ColorDepth, err = parseIntField(c, "pngColorDepth", opts.PNG.ColorDepth); err != nil {
		return opts, err
	}

	if err := opts.Validate(); err != nil {
		return opts, apperrors.Wrap(apperrors.KindBadInput, err.Error(), err)
	}
	return opts, nil
}

func parseFloatField(c *gin.Context, field string, defaultVal float64) (float64, error) {
	v := c.PostForm(field)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, apperrors.Newf(apperrors.KindBadInput, "%s must be a number", field)
	}
	return f, nil
}

func parseIntField(c *gin.Context, field string, defaultVal int) (int, error) {
	v := c.PostForm(field)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.Newf(apperrors.KindBadInput, "%s must be an integer", field)
	}
	return n, nil
}

// respondError maps the error to its status code and returns the envelope.
// Internal causes go to logs; clients only see the safe message.
func (h *ConvertHandler) respondError(c *gin.Context, start time.Time, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("conversion failed", zap.Error(err))
	} else {
		h.logger.Debug("conversion rejected", zap.Error(err))
	}

	c.Header("X-Processing-Time-Ms", strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	c.JSON(status, models.APIResponse{
		Success: false,
		Error:   apperrors.UserMessage(err),
	})
}

func (h *ConvertHandler) recordMetric(c *gin.Context, job *models.Job, start time.Time, artifact *models.Artifact, convErr error) {
	metric := &models.ConversionMetric{
		ID:           uuid.New().String(),
		IdentityHash: utils.IdentityHash(c.ClientIP()),
		InputFormat:  string(job.SourceType),
		OutputFormat: string(job.Options.Format),
		InputBytes:   int64(len(job.SourceBytes)),
		ProcessingMs: time.Since(start).Milliseconds(),
		Success:      convErr == nil,
		CreatedAt:    time.Now(),
	}

	if artifact != nil {
		size := int64(len(artifact.Data))
		metric.OutputBytes = &size
	}
	if convErr != nil {
		msg := apperrors.UserMessage(convErr)
		metric.ErrorMessage = &msg
	}
	if encoded, err := json.Marshal(job.Options); err == nil {
		metric.ConversionOptions = string(encoded)
	} else {
		metric.ConversionOptions = "{}"
	}

	h.metrics.Record(metric)
}
