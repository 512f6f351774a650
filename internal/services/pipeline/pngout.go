package pipeline

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
)

// srgbToP3 is the linear-light sRGB to Display P3 primaries matrix.
var srgbToP3 = [3][3]float64{
	{0.822462, 0.177538, 0.000000},
	{0.033194, 0.966806, 0.000000},
	{0.017083, 0.072397, 0.910520},
}

// emitPNG renders the standalone PNG artifact: colorspace conversion, color
// depth handling, and a pHYs chunk carrying the requested DPI.
func emitPNG(canvas *image.NRGBA, size int, opts models.PNGOptions) ([]byte, error) {
	switch opts.Colorspace {
	case models.ColorspaceP3:
		canvas = convertToP3(canvas)
	case models.ColorspaceCMYK:
		canvas = convertThroughCMYK(canvas)
	}

	var buf bytes.Buffer
	var err error
	switch opts.ColorDepth {
	case 8:
		err = png.Encode(&buf, quantize(canvas))
	case 24:
		err = png.Encode(&buf, flattenOnWhite(canvas))
	default:
		err = png.Encode(&buf, canvas)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to encode the image", err)
	}

	data, err := stampDPI(buf.Bytes(), opts.DPI)
	if err != nil {
		return nil, err
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width != size || cfg.Height != size {
		return nil, apperrors.Newf(apperrors.KindEncodeFailed,
			"Failed to encode the image at %dx%d", size, size)
	}
	return data, nil
}

// convertToP3 maps sRGB pixel values into Display P3 coordinates.
func convertToP3(img *image.NRGBA) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		r := srgbLinear(float64(out.Pix[i]) / 255)
		g := srgbLinear(float64(out.Pix[i+1]) / 255)
		b := srgbLinear(float64(out.Pix[i+2]) / 255)

		pr := srgbToP3[0][0]*r + srgbToP3[0][1]*g + srgbToP3[0][2]*b
		pg := srgbToP3[1][0]*r + srgbToP3[1][1]*g + srgbToP3[1][2]*b
		pb := srgbToP3[2][0]*r + srgbToP3[2][1]*g + srgbToP3[2][2]*b

		out.Pix[i] = gammaByte(pr)
		out.Pix[i+1] = gammaByte(pg)
		out.Pix[i+2] = gammaByte(pb)
	}
	return out
}

func srgbLinear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func gammaByte(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if v <= 0.0031308 {
		v *= 12.92
	} else {
		v = 1.055*math.Pow(v, 1/2.4) - 0.055
	}
	return uint8(math.Round(v * 255))
}

// convertThroughCMYK round-trips each pixel through the CMYK model, which
// matches print-oriented flattening of out-of-gamut colors.
func convertThroughCMYK(img *image.NRGBA) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		c, m, y, k := color.RGBToCMYK(out.Pix[i], out.Pix[i+1], out.Pix[i+2])
		r, g, b := color.CMYKToRGB(c, m, y, k)
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = r, g, b
	}
	return out
}

// quantize reduces the canvas to a 256-color palette with dithering.
func quantize(img *image.NRGBA) *image.Paletted {
	pal := make(color.Palette, 0, 256)
	pal = append(pal, color.NRGBA{})
	pal = append(pal, palette.Plan9[:255]...)
	out := image.NewPaletted(img.Bounds(), pal)
	draw.FloydSteinberg.Draw(out, img.Bounds(), img, image.Point{})
	return out
}

// flattenOnWhite drops the alpha channel by compositing over white; the PNG
// encoder emits fully opaque images as 24-bit truecolor.
func flattenOnWhite(img *image.NRGBA) *image.NRGBA {
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return imaging.Overlay(bg, img, image.Point{}, 1.0)
}

// stampDPI splices a pHYs chunk right after IHDR. The PNG stores pixels per
// meter: dpi / 0.0254, unit flag 1.
func stampDPI(data []byte, dpi int) ([]byte, error) {
	// 8-byte signature + 25-byte IHDR chunk.
	const ihdrEnd = 33
	if len(data) < ihdrEnd {
		return nil, apperrors.New(apperrors.KindEncodeFailed, "Failed to encode the image")
	}

	ppm := uint32(math.Round(float64(dpi) / 0.0254))

	chunk := make([]byte, 21)
	binary.BigEndian.PutUint32(chunk[0:4], 9)
	copy(chunk[4:8], "pHYs")
	binary.BigEndian.PutUint32(chunk[8:12], ppm)
	binary.BigEndian.PutUint32(chunk[12:16], ppm)
	chunk[16] = 1
	crc := crc32.ChecksumIEEE(chunk[4:17])
	binary.BigEndian.PutUint32(chunk[17:21], crc)

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, data[ihdrEnd:]...)
	return out, nil
}
