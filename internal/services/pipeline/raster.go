package pipeline

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/icoforge/icoforge/internal/apperrors"
)

// rasterSource renders a PNG upload. The source is pre-cropped to a
// centered square of its shorter side so every render stays aspect-correct,
// and that side bounds the emitted sizes (no upscaling).
type rasterSource struct {
	square *image.NRGBA
	side   int
}

func prepareRaster(data []byte) (*rasterSource, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSource, "The file is not a valid PNG", err)
	}
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	if side < 1 {
		return nil, apperrors.New(apperrors.KindInvalidSource, "The file is not a valid PNG")
	}
	square := imaging.Fill(img, side, side, imaging.Center, imaging.Lanczos)
	return &rasterSource{square: square, side: side}, nil
}

func (r *rasterSource) bound() int { return r.side }

func (r *rasterSource) render(dim int) (*image.NRGBA, error) {
	if dim == r.side {
		return imaging.Clone(r.square), nil
	}
	return imaging.Resize(r.square, dim, dim, imaging.Lanczos), nil
}
