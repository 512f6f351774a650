package sanitizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
)

// pngSignature is the 8-byte header every valid PNG starts with.
var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// maxElementCount bounds SVG document size before rendering is attempted.
const maxElementCount = 10000

// Result describes the outcome of sanitizing an upload.
type Result struct {
	SafeBytes []byte
	Modified  bool
	Notes     []string
}

// Sanitizer strips or rejects dangerous constructs from uploaded sources.
type Sanitizer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Sanitizer {
	return &Sanitizer{logger: logger}
}

// strippedElements are removed outright along with their subtrees.
var strippedElements = map[string]bool{
	"script":        true,
	"foreignObject": true,
	"iframe":        true,
	"object":        true,
	"embed":         true,
}

// rejectedValuePatterns cause the whole document to be rejected when found
// in any attribute value.
var rejectedValuePatterns = []string{
	"javascript:",
	"vbscript:",
	"data:text/html",
}

// Sanitize validates a source and returns bytes that are safe to render.
// SVG documents are parsed and rewritten; PNG uploads only get a signature
// check since the raster decoder never executes embedded content.
func (s *Sanitizer) Sanitize(data []byte, sourceType models.SourceType) (*Result, error) {
	if sourceType == models.SourcePNG {
		if err := CheckPNGSignature(data); err != nil {
			return nil, err
		}
		return &Result{SafeBytes: data}, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSource, "The file is not a valid SVG", err)
	}

	res := &Result{}

	// DOCTYPE and ENTITY declarations are dropped before any element walk.
	var kept []etree.Token
	for _, tok := range doc.Child {
		if d, ok := tok.(*etree.Directive); ok {
			upper := strings.ToUpper(string(d.Data))
			if strings.HasPrefix(upper, "DOCTYPE") || strings.Contains(upper, "ENTITY") {
				res.Modified = true
				res.Notes = append(res.Notes, "removed doctype declaration")
				continue
			}
		}
		kept = append(kept, tok)
	}
	doc.Child = kept

	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, apperrors.New(apperrors.KindInvalidSource, "The file is not a valid SVG")
	}

	count := 0
	if err := s.sanitizeElement(root, res, &count); err != nil {
		return nil, err
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSource, "The file is not a valid SVG", err)
	}
	res.SafeBytes = out
	return res, nil
}

func (s *Sanitizer) sanitizeElement(el *etree.Element, res *Result, count *int) error {
	*count++
	if *count > maxElementCount {
		return apperrors.New(apperrors.KindTooComplex, "The image is too complex to process")
	}

	if el.Tag == "include" && el.Space == "xi" {
		return apperrors.New(apperrors.KindSecurityRejected, "The file was rejected for security reasons")
	}

	var keepAttrs []etree.Attr
	for _, attr := range el.Attr {
		name := strings.ToLower(attr.Key)
		if attr.Space == "xmlns" && name == "xi" {
			return apperrors.New(apperrors.KindSecurityRejected, "The file was rejected for security reasons")
		}
		if strings.HasPrefix(name, "on") {
			res.Modified = true
			res.Notes = append(res.Notes, fmt.Sprintf("removed event handler attribute %q", attr.Key))
			continue
		}
		lowered := strings.ToLower(attr.Value)
		for _, pattern := range rejectedValuePatterns {
			if strings.Contains(lowered, pattern) {
				return apperrors.New(apperrors.KindSecurityRejected, "The file was rejected for security reasons")
			}
		}
		keepAttrs = append(keepAttrs, attr)
	}
	el.Attr = keepAttrs

	for _, child := range el.ChildElements() {
		if strippedElements[child.Tag] {
			el.RemoveChild(child)
			res.Modified = true
			res.Notes = append(res.Notes, fmt.Sprintf("removed <%s> element", child.Tag))
			continue
		}
		if err := s.sanitizeElement(child, res, count); err != nil {
			return err
		}
	}
	return nil
}

// CheckPNGSignature verifies the fixed 8-byte PNG header.
func CheckPNGSignature(data []byte) error {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return apperrors.New(apperrors.KindInvalidSource, "The file is not a valid PNG")
	}
	return nil
}
