package compressors

import (
	"fmt"

	"github.com/INLOpen/lakesink/core"
)

var (
	noneInstance   = NewNoCompressionCompressor()
	snappyInstance = NewSnappyCompressor()
	lz4Instance    = NewLZ4Compressor()
	zstdInstance   = NewZstdCompressor()
)

// Get returns the shared compressor instance for a compression type. All
// implementations are safe for concurrent use.
func Get(ct core.CompressionType) (core.Compressor, error) {
	switch ct {
	case core.CompressionNone:
		return noneInstance, nil
	case core.CompressionSnappy:
		return snappyInstance, nil
	case core.CompressionLZ4:
		return lz4Instance, nil
	case core.CompressionZSTD:
		return zstdInstance, nil
	default:
		return nil, fmt.Errorf("no compressor registered for type %s", ct)
	}
}

// ForFormat returns the compressor backing a file format.
func ForFormat(f core.FileFormat) (core.Compressor, error) {
	return Get(f.Compression())
}
