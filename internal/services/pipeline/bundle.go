package pipeline

import (
	"archive/zip"
	"bytes"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
)

// packZIP writes the artifacts into a ZIP archive, preserving order.
func packZIP(artifacts []models.Artifact) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, a := range artifacts {
		f, err := w.Create(a.Filename)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to build the archive", err)
		}
		if _, err := f.Write(a.Data); err != nil {
			return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to build the archive", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to build the archive", err)
	}
	return buf.Bytes(), nil
}
