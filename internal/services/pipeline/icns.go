package pipeline

import (
	"bytes"
	"encoding/binary"

	"github.com/icoforge/icoforge/internal/apperrors"
)

// icnsInsetFactor shrinks ICNS renders to match the visual weight macOS
// applies to system icons (832 of 1024 points).
const icnsInsetFactor = 832.0 / 1024.0

// packICNS assembles an ICNS container: an 8-byte header ("icns" + total
// big-endian length) followed by one chunk per icon-type table entry whose
// pixel size was rendered. Retina entries repeat the same PNG payload.
func packICNS(pngsBySize map[int][]byte) ([]byte, error) {
	var chunks bytes.Buffer
	for _, entry := range icnsTable {
		payload, ok := pngsBySize[entry.Size]
		if !ok {
			continue
		}
		chunks.WriteString(entry.OSType)
		if err := binary.Write(&chunks, binary.BigEndian, uint32(len(payload)+8)); err != nil {
			return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to encode the icon", err)
		}
		chunks.Write(payload)
	}
	if chunks.Len() == 0 {
		return nil, apperrors.New(apperrors.KindEncodeFailed, "Failed to encode the icon")
	}

	var buf bytes.Buffer
	buf.WriteString("icns")
	if err := binary.Write(&buf, binary.BigEndian, uint32(chunks.Len()+8)); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to encode the icon", err)
	}
	buf.Write(chunks.Bytes())
	return buf.Bytes(), nil
}
