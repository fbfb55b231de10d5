package datafile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/lakesink/compressors"
	"github.com/INLOpen/lakesink/core"
	"github.com/spf13/afero"
)

// Reader sequentially decodes the records of one data file, verifying block
// checksums as it goes. It is used by compaction rewrites and by table
// readback; it performs no seeking.
type Reader struct {
	file    afero.File
	header  FileHeader
	pending []core.Record
	eof     bool
}

// OpenReader opens a data file and validates its header.
func OpenReader(fs afero.Fs, path string) (*Reader, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file %s: %w", path, err)
	}

	var header FileHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read data file header of %s: %w", path, err)
	}
	if header.Magic != core.DataFileMagicNumber {
		file.Close()
		return nil, fmt.Errorf("invalid data file magic number in %s: got %x, want %x", path, header.Magic, core.DataFileMagicNumber)
	}
	if header.Version != core.FormatVersion {
		file.Close()
		return nil, fmt.Errorf("unsupported data file version %d in %s", header.Version, path)
	}

	return &Reader{file: file, header: header}, nil
}

// Next returns the next record, or io.EOF once the file is exhausted.
func (r *Reader) Next() (core.Record, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return nil, io.EOF
		}
		if err := r.readBlock(); err != nil {
			return nil, err
		}
	}
	rec := r.pending[0]
	r.pending = r.pending[1:]
	return rec, nil
}

func (r *Reader) readBlock() error {
	var codecByte byte
	if err := binary.Read(r.file, binary.LittleEndian, &codecByte); err != nil {
		if err == io.EOF {
			r.eof = true
			return nil
		}
		return fmt.Errorf("failed to read block codec: %w", err)
	}
	var checksum, length uint32
	if err := binary.Read(r.file, binary.LittleEndian, &checksum); err != nil {
		return fmt.Errorf("failed to read block checksum: %w", err)
	}
	if err := binary.Read(r.file, binary.LittleEndian, &length); err != nil {
		return fmt.Errorf("failed to read block length: %w", err)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return fmt.Errorf("failed to read block data: %w", err)
	}
	if actual := crc32.ChecksumIEEE(data); actual != checksum {
		return fmt.Errorf("block checksum mismatch: got %x, want %x", actual, checksum)
	}

	compressor, err := compressors.Get(core.CompressionType(codecByte))
	if err != nil {
		return err
	}
	decompressed, err := compressor.Decompress(data)
	if err != nil {
		return fmt.Errorf("failed to decompress block: %w", err)
	}
	defer decompressed.Close()

	raw, err := io.ReadAll(decompressed)
	if err != nil {
		return fmt.Errorf("failed to read decompressed block: %w", err)
	}

	br := bytes.NewReader(raw)
	for br.Len() > 0 {
		rec, err := decodeRecord(br)
		if err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		r.pending = append(r.pending, rec)
	}
	return nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll decodes every record of a data file.
func ReadAll(fs afero.Fs, path string) ([]core.Record, error) {
	reader, err := OpenReader(fs, path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var records []core.Record
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
