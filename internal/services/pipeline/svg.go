package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
)

// coverageTolerance is the relative slack allowed when deciding whether a
// shape covers the whole viewBox.
const coverageTolerance = 0.01

// radiusCoverage is the minimum radius fraction for circles and ellipses to
// count as backgrounds.
const radiusCoverage = 0.95

// backgroundCandidates is how many leading direct children smart removal
// inspects.
const backgroundCandidates = 3

var styleFillPattern = regexp.MustCompile(`(?i)fill\s*:\s*([^;]+)`)

// svgSource renders a preprocessed vector document at arbitrary sizes.
type svgSource struct {
	icon   *oksvg.SvgIcon
	width  float64
	height float64
}

// prepareSVG applies background removal per the job options and parses the
// result into a renderable source.
func prepareSVG(data []byte, opts models.ConversionOptions) (*svgSource, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSource, "The file is not a valid SVG", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, apperrors.New(apperrors.KindInvalidSource, "The file is not a valid SVG")
	}

	vbW, vbH := intrinsicSize(root)

	switch opts.BackgroundRemoval {
	case models.BgRemovalSmart:
		removeSmartBackground(root, vbW, vbH)
	case models.BgRemovalColor:
		removeColorBackground(root, NormalizeColor(opts.BackgroundRemovalColor))
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSource, "The file is not a valid SVG", err)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(out), oksvg.WarnErrorMode)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSource, "The file is not a valid SVG", err)
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		icon.ViewBox.X = 0
		icon.ViewBox.Y = 0
		icon.ViewBox.W = vbW
		icon.ViewBox.H = vbH
	}

	return &svgSource{icon: icon, width: vbW, height: vbH}, nil
}

func (s *svgSource) bound() int { return 0 }

// render draws the document with its larger dimension equal to dim,
// preserving the intrinsic aspect ratio.
func (s *svgSource) render(dim int) (img *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = apperrors.Wrap(apperrors.KindRenderFailed, "Failed to render the image",
				fmt.Errorf("svg rasterizer panic: %v", r))
		}
	}()

	rw, rh := dim, dim
	if s.width >= s.height {
		rh = int(math.Round(float64(dim) * s.height / s.width))
	} else {
		rw = int(math.Round(float64(dim) * s.width / s.height))
	}
	if rw < 1 {
		rw = 1
	}
	if rh < 1 {
		rh = 1
	}

	rgba := image.NewRGBA(image.Rect(0, 0, rw, rh))
	s.icon.SetTarget(0, 0, float64(rw), float64(rh))
	scanner := rasterx.NewScannerGV(rw, rh, rgba, rgba.Bounds())
	dasher := rasterx.NewDasher(rw, rh, scanner)
	s.icon.Draw(dasher, 1.0)

	return imaging.Clone(rgba), nil
}

// intrinsicSize resolves the document's logical dimensions: viewBox first,
// then width/height attributes, then the 100x100 default.
func intrinsicSize(root *etree.Element) (float64, float64) {
	if vb := root.SelectAttrValue("viewBox", ""); vb != "" {
		parts := strings.Fields(strings.ReplaceAll(vb, ",", " "))
		if len(parts) == 4 {
			w, errW := strconv.ParseFloat(parts[2], 64)
			h, errH := strconv.ParseFloat(parts[3], 64)
			if errW == nil && errH == nil && w > 0 && h > 0 {
				return w, h
			}
		}
	}
	w := parseLength(root.SelectAttrValue("width", ""))
	h := parseLength(root.SelectAttrValue("height", ""))
	if w > 0 && h > 0 {
		return w, h
	}
	return 100, 100
}

// parseLength reads an SVG length attribute, ignoring a unit suffix.
func parseLength(value string) float64 {
	v := strings.TrimSpace(value)
	if v == "" || strings.HasSuffix(v, "%") {
		return 0
	}
	v = strings.TrimRight(v, "abcdefghijklmnopqrstuvwxyz")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return f
}

// removeSmartBackground looks for a covering rect, circle, or ellipse among
// the first direct children and neutralizes its fill.
func removeSmartBackground(root *etree.Element, vbW, vbH float64) {
	children := root.ChildElements()
	limit := backgroundCandidates
	if len(children) < limit {
		limit = len(children)
	}
	for i := 0; i < limit; i++ {
		el := children[i]
		if !hasVisibleFill(el) {
			continue
		}
		if isCoveringShape(el, vbW, vbH) {
			neutralizeFill(el)
			return
		}
	}
}

func isCoveringShape(el *etree.Element, vbW, vbH float64) bool {
	switch el.Tag {
	case "rect":
		x := shapeCoord(el, "x", 0, vbW)
		y := shapeCoord(el, "y", 0, vbH)
		w := shapeCoord(el, "width", 0, vbW)
		h := shapeCoord(el, "height", 0, vbH)
		return math.Abs(x) <= vbW*coverageTolerance &&
			math.Abs(y) <= vbH*coverageTolerance &&
			w >= vbW*(1-coverageTolerance) &&
			h >= vbH*(1-coverageTolerance)
	case "circle":
		cx := shapeCoord(el, "cx", 0, vbW)
		cy := shapeCoord(el, "cy", 0, vbH)
		r := shapeCoord(el, "r", 0, math.Min(vbW, vbH))
		return math.Abs(cx-vbW/2) <= vbW*coverageTolerance &&
			math.Abs(cy-vbH/2) <= vbH*coverageTolerance &&
			r >= radiusCoverage*math.Min(vbW, vbH)/2
	case "ellipse":
		cx := shapeCoord(el, "cx", 0, vbW)
		cy := shapeCoord(el, "cy", 0, vbH)
		rx := shapeCoord(el, "rx", 0, vbW)
		ry := shapeCoord(el, "ry", 0, vbH)
		return math.Abs(cx-vbW/2) <= vbW*coverageTolerance &&
			math.Abs(cy-vbH/2) <= vbH*coverageTolerance &&
			rx >= radiusCoverage*vbW/2 &&
			ry >= radiusCoverage*vbH/2
	}
	return false
}

// shapeCoord parses a numeric shape attribute; percentages resolve against
// the given reference dimension.
func shapeCoord(el *etree.Element, name string, def, ref float64) float64 {
	v := strings.TrimSpace(el.SelectAttrValue(name, ""))
	if v == "" {
		return def
	}
	if strings.HasSuffix(v, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return def
		}
		return pct / 100 * ref
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// hasVisibleFill reports whether the element paints a non-transparent fill.
func hasVisibleFill(el *etree.Element) bool {
	fill := strings.TrimSpace(el.SelectAttrValue("fill", ""))
	if fill == "" {
		if m := styleFillPattern.FindStringSubmatch(el.SelectAttrValue("style", "")); m != nil {
			fill = strings.TrimSpace(m[1])
		}
	}
	if fill == "" {
		// SVG default fill is black.
		return true
	}
	f := strings.ToLower(fill)
	return f != "none" && f != "transparent"
}

func neutralizeFill(el *etree.Element) {
	el.CreateAttr("fill", "none")
	if style := el.SelectAttrValue("style", ""); style != "" {
		el.CreateAttr("style", styleFillPattern.ReplaceAllString(style, "fill:none"))
	}
}

// removeColorBackground turns every fill matching the normalized target
// color into none, in both attributes and inline styles.
func removeColorBackground(el *etree.Element, target string) {
	if fill := el.SelectAttrValue("fill", ""); fill != "" {
		if NormalizeColor(fill) == target {
			el.CreateAttr("fill", "none")
		}
	}
	if style := el.SelectAttrValue("style", ""); style != "" {
		replaced := styleFillPattern.ReplaceAllStringFunc(style, func(m string) string {
			sub := styleFillPattern.FindStringSubmatch(m)
			if NormalizeColor(strings.TrimSpace(sub[1])) == target {
				return "fill:none"
			}
			return m
		})
		el.CreateAttr("style", replaced)
	}
	for _, child := range el.ChildElements() {
		removeColorBackground(child, target)
	}
}
