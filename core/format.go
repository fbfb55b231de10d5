package core

import (
	"fmt"
	"strings"
)

// This file centralizes constants related to file formats, magic numbers,
// and other protocol-level identifiers used across the sink.

// --- Magic Numbers ---
const (
	// DataFileMagicNumber identifies a lakesink data file.
	DataFileMagicNumber uint32 = 0x4C414B44 // "LAKD"
	// CommitStateMagicNumber identifies a persisted coordinator state file.
	CommitStateMagicNumber uint32 = 0x4C414B43 // "LAKC"
)

// FormatVersion is the current on-disk format version for data files and
// commit state files.
const FormatVersion uint8 = 1

// --- File Names & Prefixes ---
const (
	// CurrentFileName is the metadata file that points to the latest table version.
	CurrentFileName = "CURRENT"
	// MetadataFilePrefix is the prefix for table metadata files, e.g. v00012.json.
	MetadataFilePrefix = "v"
	// CommitStateFileName is the name of the persisted coordinator state file.
	CommitStateFileName = "COMMITSTATE"
	// MetadataDirName and DataDirName are the subdirectories of a table root.
	MetadataDirName = "metadata"
	DataDirName     = "data"
)

// FormatTempFilename generates a temporary filename for atomic write-and-rename.
func FormatTempFilename(base, ext string) string {
	return fmt.Sprintf("%s.%s", base, ext)
}

// CompressionType identifies the block codec used inside a data file.
type CompressionType byte

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionLZ4
	CompressionZSTD
)

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", byte(ct))
	}
}

// FileFormat is the user-facing format of a produced data file. Every format
// is a block-structured row file; they differ in the block codec.
type FileFormat string

const (
	FormatPlain  FileFormat = "plain"
	FormatSnappy FileFormat = "snappy"
	FormatZstd   FileFormat = "zstd"
	FormatLZ4    FileFormat = "lz4"
)

// Compression returns the block codec backing this file format.
func (f FileFormat) Compression() CompressionType {
	switch f {
	case FormatSnappy:
		return CompressionSnappy
	case FormatZstd:
		return CompressionZSTD
	case FormatLZ4:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Valid reports whether f is a known file format.
func (f FileFormat) Valid() bool {
	switch f {
	case FormatPlain, FormatSnappy, FormatZstd, FormatLZ4:
		return true
	}
	return false
}

// ParseFileFormat parses a format name, case-insensitively.
func ParseFileFormat(s string) (FileFormat, error) {
	f := FileFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown file format %q", s)
	}
	return f, nil
}
