package models

import (
	"fmt"
	"regexp"
)

// PNGOptions tune the emitted PNG artifact.
type PNGOptions struct {
	Size       int    `json:"size"`
	DPI        int    `json:"dpi"`
	Colorspace string `json:"colorspace"`
	ColorDepth int    `json:"color_depth"`
}

// ConversionOptions are the validated request options carried by a Job.
type ConversionOptions struct {
	Format                OutputFormat          `json:"format"`
	ScalePercent          float64               `json:"scale"`
	CornerRadiusPercent   float64               `json:"corner_radius"`
	BackgroundRemoval     BackgroundRemovalMode `json:"background_removal_mode"`
	BackgroundRemovalColor string               `json:"background_removal_color,omitempty"`
	PNG                   PNGOptions            `json:"png_options"`
}

const (
	ColorspaceSRGB = "srgb"
	ColorspaceP3   = "p3"
	ColorspaceCMYK = "cmyk"
)

// DefaultOptions returns the option set used when a form field is absent.
func DefaultOptions() ConversionOptions {
	return ConversionOptions{
		Format:              FormatICO,
		ScalePercent:        100,
		CornerRadiusPercent: 0,
		BackgroundRemoval:   BgRemovalNone,
		PNG: PNGOptions{
			Size:       512,
			DPI:        72,
			Colorspace: ColorspaceSRGB,
			ColorDepth: 32,
		},
	}
}

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var validCornerRadii = []float64{0, 12.5, 25, 37.5, 50}

// Validate checks every option against its documented bounds.
func (o *ConversionOptions) Validate() error {
	switch o.Format {
	case FormatICO, FormatICNS, FormatFavicon, FormatPNG, FormatAll:
	default:
		return fmt.Errorf("format must be one of ico, icns, favicon, png, all")
	}

	if o.ScalePercent < 50 || o.ScalePercent > 200 {
		return fmt.Errorf("scale must be between 50 and 200, got %g", o.ScalePercent)
	}

	radiusOK := false
	for _, r := range validCornerRadii {
		if o.CornerRadiusPercent == r {
			radiusOK = true
			break
		}
	}
	if !radiusOK {
		return fmt.Errorf("cornerRadius must be one of 0, 12.5, 25, 37.5, 50, got %g", o.CornerRadiusPercent)
	}

	switch o.BackgroundRemoval {
	case BgRemovalNone, BgRemovalSmart:
	case BgRemovalColor:
		if !hexColorPattern.MatchString(o.BackgroundRemovalColor) {
			return fmt.Errorf("backgroundRemovalColor must be a hex color like #rrggbb")
		}
	default:
		return fmt.Errorf("backgroundRemovalMode must be one of none, color, smart")
	}

	if o.PNG.Size < 16 || o.PNG.Size > 2048 {
		return fmt.Errorf("outputSize must be between 16 and 2048, got %d", o.PNG.Size)
	}
	if o.PNG.DPI < 1 || o.PNG.DPI > 600 {
		return fmt.Errorf("pngDpi must be between 1 and 600, got %d", o.PNG.DPI)
	}
	switch o.PNG.Colorspace {
	case ColorspaceSRGB, ColorspaceP3, ColorspaceCMYK:
	default:
		return fmt.Errorf("pngColorspace must be one of srgb, p3, cmyk")
	}
	switch o.PNG.ColorDepth {
	case 8, 24, 32:
	default:
		return fmt.Errorf("pngColorDepth must be one of 8, 24, 32, got %d", o.PNG.ColorDepth)
	}

	return nil
}
