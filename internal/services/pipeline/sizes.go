package pipeline

import (
	"sort"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
)

// icoSizes are the embedded images of a Windows .ico container.
var icoSizes = []int{16, 32, 48, 64, 128, 256}

// faviconSizes are the classic browser favicon entries.
var faviconSizes = []int{16, 32, 48}

// icnsEntry pairs an ICNS chunk tag with its pixel size.
type icnsEntry struct {
	OSType string
	Size   int
}

// icnsTable lists the Apple icon types emitted into an .icns container.
// Retina entries share pixel sizes with standard ones and get identical
// payloads.
var icnsTable = []icnsEntry{
	{"icp4", 16},
	{"icp5", 32},
	{"icp6", 64},
	{"ic07", 128},
	{"ic08", 256},
	{"ic09", 512},
	{"ic10", 1024},
	{"ic11", 32},
	{"ic12", 64},
	{"ic13", 256},
	{"ic14", 512},
}

// icnsSizes returns the unique pixel sizes of the ICNS table, ascending.
func icnsSizes() []int {
	seen := map[int]bool{}
	var sizes []int
	for _, e := range icnsTable {
		if !seen[e.Size] {
			seen[e.Size] = true
			sizes = append(sizes, e.Size)
		}
	}
	sort.Ints(sizes)
	return sizes
}

// targetSizes returns the pixel sizes required by format, before any
// source-bound filtering.
func targetSizes(format models.OutputFormat, pngSize int) []int {
	switch format {
	case models.FormatICO:
		return append([]int(nil), icoSizes...)
	case models.FormatICNS:
		return icnsSizes()
	case models.FormatFavicon:
		return append([]int(nil), faviconSizes...)
	case models.FormatPNG:
		return []int{pngSize}
	default:
		return nil
	}
}

// filterSizes drops sizes a raster source cannot fill without upscaling.
// bound <= 0 means the source is unbounded (vector).
func filterSizes(sizes []int, bound int) []int {
	if bound <= 0 {
		return sizes
	}
	var kept []int
	for _, s := range sizes {
		if s <= bound {
			kept = append(kept, s)
		}
	}
	return kept
}

// requireSizes fails with SourceTooSmall when filtering removed every size.
func requireSizes(sizes []int, bound, minRequired int) error {
	if len(sizes) > 0 {
		return nil
	}
	return apperrors.Newf(apperrors.KindSourceTooSmall,
		"Source is %dpx; this format requires at least %dpx", bound, minRequired)
}

func minSize(sizes []int) int {
	m := sizes[0]
	for _, s := range sizes[1:] {
		if s < m {
			m = s
		}
	}
	return m
}

func maxSize(sizes []int) int {
	m := sizes[0]
	for _, s := range sizes[1:] {
		if s > m {
			m = s
		}
	}
	return m
}
