package core

import (
	"bytes"
	"io"
)

// Compressor is the block codec contract implemented by the compressors
// package. Data files compress each block independently through one of these.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	// CompressTo compresses src into dst, reusing dst's allocation.
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}
