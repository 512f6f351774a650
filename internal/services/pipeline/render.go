package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	"github.com/icoforge/icoforge/internal/apperrors"
)

// source is a prepared upload that can be drawn at any pixel dimension up
// to its bound. A bound of zero means unbounded (vector input).
type source interface {
	// render draws the source with its larger dimension equal to dim.
	render(dim int) (*image.NRGBA, error)
	bound() int
}

// renderAt produces an exact size x size RGBA canvas from src, honoring the
// scale and corner-radius options.
func renderAt(src source, size int, scalePercent, cornerRadiusPercent float64) (*image.NRGBA, error) {
	var canvas *image.NRGBA
	var err error
	if scalePercent <= 100 {
		canvas, err = renderPadded(src, size, scalePercent)
	} else {
		canvas, err = renderCropped(src, size, scalePercent)
	}
	if err != nil {
		return nil, err
	}

	if cornerRadiusPercent > 0 {
		canvas = applyCornerRadius(canvas, cornerRadiusPercent)
	}

	if canvas.Bounds().Dx() != size || canvas.Bounds().Dy() != size {
		canvas = imaging.Resize(canvas, size, size, imaging.Lanczos)
	}
	return canvas, nil
}

// renderPadded shrinks the icon to scale percent of the canvas and centers
// it with transparent padding. The leading side takes the extra pixel when
// padding is asymmetric.
func renderPadded(src source, size int, scalePercent float64) (*image.NRGBA, error) {
	iconSize := int(math.Round(float64(size) * scalePercent / 100))
	if iconSize < 1 {
		iconSize = 1
	}
	img, err := src.render(iconSize)
	if err != nil {
		return nil, err
	}

	canvas := imaging.New(size, size, color.NRGBA{})
	padLeft := int(math.Round(float64(size-img.Bounds().Dx()) / 2))
	padTop := int(math.Round(float64(size-img.Bounds().Dy()) / 2))
	return imaging.Paste(canvas, img, image.Pt(padLeft, padTop)), nil
}

// renderCropped renders larger than the canvas and center-extracts a
// size x size region.
func renderCropped(src source, size int, scalePercent float64) (*image.NRGBA, error) {
	renderSize := int(math.Round(float64(size) * scalePercent / 100))
	if b := src.bound(); b > 0 && renderSize > b {
		renderSize = b
	}
	img, err := src.render(renderSize)
	if err != nil {
		return nil, err
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	side := w
	if h > side {
		side = h
	}
	square := imaging.New(side, side, color.NRGBA{})
	square = imaging.Paste(square, img, image.Pt((side-w)/2, (side-h)/2))

	offset := (side - size) / 2
	if offset < 0 {
		offset = 0
	}
	extract := size
	if offset+extract > side {
		extract = side - offset
	}
	cropped := imaging.Crop(square, image.Rect(offset, offset, offset+extract, offset+extract))

	if cropped.Bounds().Dx() != size || cropped.Bounds().Dy() != size {
		cropped = imaging.Resize(cropped, size, size, imaging.Lanczos)
	}
	return cropped, nil
}

// applyCornerRadius composites a rounded-rectangle alpha mask over the
// canvas with destination-in semantics.
func applyCornerRadius(img *image.NRGBA, radiusPercent float64) *image.NRGBA {
	size := img.Bounds().Dx()
	radius := radiusPercent / 100 * float64(size)
	out := imaging.Clone(img)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			coverage := roundedRectCoverage(float64(x)+0.5, float64(y)+0.5, float64(size), radius)
			if coverage >= 1 {
				continue
			}
			i := out.PixOffset(x, y)
			a := float64(out.Pix[i+3]) * coverage
			out.Pix[i+3] = uint8(math.Round(a))
		}
	}
	return out
}

// roundedRectCoverage returns the mask alpha in [0,1] at point (px,py) for
// a rounded square of the given side and corner radius, with a one-pixel
// smoothed edge.
func roundedRectCoverage(px, py, side, radius float64) float64 {
	// Distance from the nearest corner-circle center, only relevant inside
	// the corner boxes.
	var cx, cy float64
	switch {
	case px < radius && py < radius:
		cx, cy = radius, radius
	case px > side-radius && py < radius:
		cx, cy = side-radius, radius
	case px < radius && py > side-radius:
		cx, cy = radius, side-radius
	case px > side-radius && py > side-radius:
		cx, cy = side-radius, side-radius
	default:
		return 1
	}
	dist := math.Hypot(px-cx, py-cy)
	cov := radius - dist + 0.5
	if cov <= 0 {
		return 0
	}
	if cov >= 1 {
		return 1
	}
	return cov
}

// encodePNG writes the canvas as PNG bytes and verifies the invariant that
// the emitted image is exactly size x size.
func encodePNG(img *image.NRGBA, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to encode the image", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(buf.Bytes()))
	if err != nil || cfg.Width != size || cfg.Height != size {
		return nil, apperrors.Newf(apperrors.KindEncodeFailed,
			"Failed to encode the image at %dx%d", size, size)
	}
	return buf.Bytes(), nil
}

// renderPNGSet renders every requested size to encoded PNG bytes.
func renderPNGSet(src source, sizes []int, scalePercent, cornerRadiusPercent float64) (map[int][]byte, error) {
	out := make(map[int][]byte, len(sizes))
	for _, size := range sizes {
		canvas, err := renderAt(src, size, scalePercent, cornerRadiusPercent)
		if err != nil {
			return nil, err
		}
		data, err := encodePNG(canvas, size)
		if err != nil {
			return nil, err
		}
		out[size] = data
	}
	return out, nil
}
