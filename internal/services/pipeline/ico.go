package pipeline

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/icoforge/icoforge/internal/apperrors"
)

// icoHeader is the 6-byte ICONDIR: reserved, type (1 = icon), image count.
type icoHeader struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

// icoDirEntry is one 16-byte ICONDIRENTRY. Width and Height of 0 encode
// the 256-pixel size.
type icoDirEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	Offset     uint32
}

// packICO assembles an ICO container with PNG-compressed entries, ordered
// by ascending pixel size.
func packICO(pngsBySize map[int][]byte) ([]byte, error) {
	sizes := make([]int, 0, len(pngsBySize))
	for s := range pngsBySize {
		sizes = append(sizes, s)
	}
	sort.Ints(sizes)

	var buf bytes.Buffer
	header := icoHeader{Type: 1, Count: uint16(len(sizes))}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to encode the icon", err)
	}

	offset := uint32(6 + 16*len(sizes))
	for _, size := range sizes {
		payload := pngsBySize[size]
		entry := icoDirEntry{
			Width:      icoSizeByte(size),
			Height:     icoSizeByte(size),
			Planes:     1,
			BitCount:   32,
			BytesInRes: uint32(len(payload)),
			Offset:     offset,
		}
		if err := binary.Write(&buf, binary.LittleEndian, entry); err != nil {
			return nil, apperrors.Wrap(apperrors.KindEncodeFailed, "Failed to encode the icon", err)
		}
		offset += uint32(len(payload))
	}

	for _, size := range sizes {
		buf.Write(pngsBySize[size])
	}
	return buf.Bytes(), nil
}

// icoSizeByte maps a pixel size to the directory byte; 256 wraps to 0.
func icoSizeByte(size int) uint8 {
	if size >= 256 {
		return 0
	}
	return uint8(size)
}
