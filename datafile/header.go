package datafile

import (
	"encoding/binary"
	"time"

	"github.com/INLOpen/lakesink/core"
)

// FileHeader is the fixed-size header at the start of every data file.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CompressorType core.CompressionType
	CreatedAt      int64 // UnixNano timestamp
}

func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader creates a header with the current time for the given codec.
func NewFileHeader(compressorType core.CompressionType) FileHeader {
	return FileHeader{
		Magic:          core.DataFileMagicNumber,
		Version:        core.FormatVersion,
		CompressorType: compressorType,
		CreatedAt:      time.Now().UnixNano(),
	}
}
