// Package pipeline renders uploaded vector or raster sources into
// size-exact PNG buffers and packs them into platform icon containers.
package pipeline

import (
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/pkg/utils"
)

const (
	mimeICO  = "image/x-icon"
	mimeICNS = "image/icns"
	mimePNG  = "image/png"
	mimeSVG  = "image/svg+xml"
	mimeZIP  = "application/zip"
)

// maxBundlePNGSize caps the standalone PNG included in "all" bundles.
const maxBundlePNGSize = 1024

type Converter struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Converter {
	return &Converter{logger: logger}
}

// Convert runs the full pipeline for one job and returns the ordered
// artifact list. Inputs are treated as an immutable snapshot; no partial
// artifacts are ever returned.
func (c *Converter) Convert(job *models.Job) ([]models.Artifact, error) {
	src, err := c.prepare(job)
	if err != nil {
		return nil, err
	}

	opts := job.Options
	switch opts.Format {
	case models.FormatICO:
		return c.buildICO(src, job, icoSizes, utils.OutputFilename(job.OriginalFilename, "ico"))
	case models.FormatFavicon:
		return c.buildICO(src, job, faviconSizes, "favicon.ico")
	case models.FormatICNS:
		return c.buildICNS(src, job)
	case models.FormatPNG:
		return c.buildPNG(src, job, opts.PNG.Size)
	case models.FormatAll:
		return c.buildBundle(src, job)
	default:
		return nil, apperrors.Newf(apperrors.KindBadInput, "Unsupported format %q", opts.Format)
	}
}

func (c *Converter) prepare(job *models.Job) (source, error) {
	switch job.SourceType {
	case models.SourceSVG:
		return prepareSVG(job.SourceBytes, job.Options)
	case models.SourcePNG:
		return prepareRaster(job.SourceBytes)
	default:
		return nil, apperrors.Newf(apperrors.KindBadInput, "Unsupported source type %q", job.SourceType)
	}
}

func (c *Converter) buildICO(src source, job *models.Job, wantSizes []int, filename string) ([]models.Artifact, error) {
	sizes := filterSizes(wantSizes, src.bound())
	if err := requireSizes(sizes, src.bound(), minSize(wantSizes)); err != nil {
		return nil, err
	}
	pngs, err := renderPNGSet(src, sizes, job.Options.ScalePercent, job.Options.CornerRadiusPercent)
	if err != nil {
		return nil, err
	}
	data, err := packICO(pngs)
	if err != nil {
		return nil, err
	}
	return []models.Artifact{{Data: data, Filename: filename, MIMEType: mimeICO}}, nil
}

func (c *Converter) buildICNS(src source, job *models.Job) ([]models.Artifact, error) {
	want := icnsSizes()
	sizes := filterSizes(want, src.bound())
	if err := requireSizes(sizes, src.bound(), minSize(want)); err != nil {
		return nil, err
	}
	// ICNS renders are inset to match macOS system icon weight.
	scale := job.Options.ScalePercent * icnsInsetFactor
	pngs, err := renderPNGSet(src, sizes, scale, job.Options.CornerRadiusPercent)
	if err != nil {
		return nil, err
	}
	data, err := packICNS(pngs)
	if err != nil {
		return nil, err
	}
	filename := utils.OutputFilename(job.OriginalFilename, "icns")
	return []models.Artifact{{Data: data, Filename: filename, MIMEType: mimeICNS}}, nil
}

func (c *Converter) buildPNG(src source, job *models.Job, size int) ([]models.Artifact, error) {
	sizes := filterSizes([]int{size}, src.bound())
	if err := requireSizes(sizes, src.bound(), size); err != nil {
		return nil, err
	}
	canvas, err := renderAt(src, size, job.Options.ScalePercent, job.Options.CornerRadiusPercent)
	if err != nil {
		return nil, err
	}
	data, err := emitPNG(canvas, size, job.Options.PNG)
	if err != nil {
		return nil, err
	}
	filename := utils.OutputFilename(job.OriginalFilename, "png")
	return []models.Artifact{{Data: data, Filename: filename, MIMEType: mimePNG}}, nil
}

// buildBundle produces every container plus a max-available PNG and the
// original source, zipped together.
func (c *Converter) buildBundle(src source, job *models.Job) ([]models.Artifact, error) {
	if b := src.bound(); b > 0 && b < minSize(faviconSizes) {
		return nil, apperrors.Newf(apperrors.KindSourceTooSmall,
			"Source is %dpx; this format requires at least %dpx", b, minSize(faviconSizes))
	}

	ico, err := c.buildICO(src, job, icoSizes, utils.OutputFilename(job.OriginalFilename, "ico"))
	if err != nil {
		return nil, err
	}
	icns, err := c.buildICNS(src, job)
	if err != nil {
		return nil, err
	}
	favicon, err := c.buildICO(src, job, faviconSizes, "favicon.ico")
	if err != nil {
		return nil, err
	}

	pngSize := maxBundlePNGSize
	if b := src.bound(); b > 0 && b < pngSize {
		pngSize = b
	}
	pngJob := *job
	pngJob.Options.PNG = models.DefaultOptions().PNG
	pngArtifacts, err := c.buildPNG(src, &pngJob, pngSize)
	if err != nil {
		return nil, err
	}

	original := models.Artifact{
		Data:     job.SourceBytes,
		Filename: originalFilename(job),
		MIMEType: sourceMIME(job.SourceType),
	}

	contents := append(append(append(append([]models.Artifact{}, ico...), icns...), favicon...), pngArtifacts...)
	contents = append(contents, original)

	data, err := packZIP(contents)
	if err != nil {
		return nil, err
	}
	bundle := models.Artifact{
		Data:     data,
		Filename: utils.OutputFilename(job.OriginalFilename, "zip"),
		MIMEType: mimeZIP,
	}
	return []models.Artifact{bundle}, nil
}

func originalFilename(job *models.Job) string {
	ext := "svg"
	if job.SourceType == models.SourcePNG {
		ext = "png"
	}
	return utils.OutputFilename(job.OriginalFilename, ext)
}

func sourceMIME(t models.SourceType) string {
	if t == models.SourcePNG {
		return mimePNG
	}
	return mimeSVG
}
