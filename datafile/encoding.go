package datafile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/INLOpen/lakesink/core"
)

// Row encoding: uvarint field count, then per field a kind byte followed by
// the value payload. Rows are self-describing so a reader does not need the
// schema to decode them.

func encodeRecord(buf *bytes.Buffer, rec core.Record) error {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(rec)))
	buf.Write(scratch[:n])

	for i, v := range rec {
		buf.WriteByte(byte(v.Kind()))
		switch v.Kind() {
		case core.ValueInt64:
			iv, _ := v.Int64()
			n = binary.PutVarint(scratch[:], iv)
			buf.Write(scratch[:n])
		case core.ValueFloat64:
			fv, _ := v.Float64()
			binary.LittleEndian.PutUint64(scratch[:8], math.Float64bits(fv))
			buf.Write(scratch[:8])
		case core.ValueString:
			sv, _ := v.Str()
			n = binary.PutUvarint(scratch[:], uint64(len(sv)))
			buf.Write(scratch[:n])
			buf.WriteString(sv)
		case core.ValueBool:
			bv, _ := v.Bool()
			if bv {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		default:
			return fmt.Errorf("cannot encode value of kind %s at position %d", v.Kind(), i)
		}
	}
	return nil
}

func decodeRecord(r *bytes.Reader) (core.Record, error) {
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read field count: %w", err)
	}
	rec := make(core.Record, 0, count)
	for i := uint64(0); i < count; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read field kind: %w", err)
		}
		switch core.ValueKind(kindByte) {
		case core.ValueInt64:
			iv, err := binary.ReadVarint(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read int64 field: %w", err)
			}
			rec = append(rec, core.NewInt64Value(iv))
		case core.ValueFloat64:
			var raw [8]byte
			if _, err := io.ReadFull(r, raw[:]); err != nil {
				return nil, fmt.Errorf("failed to read float64 field: %w", err)
			}
			rec = append(rec, core.NewFloat64Value(math.Float64frombits(binary.LittleEndian.Uint64(raw[:]))))
		case core.ValueString:
			strLen, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read string length: %w", err)
			}
			strBytes := make([]byte, strLen)
			if _, err := io.ReadFull(r, strBytes); err != nil {
				return nil, fmt.Errorf("failed to read string field: %w", err)
			}
			rec = append(rec, core.NewStringValue(string(strBytes)))
		case core.ValueBool:
			b, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("failed to read bool field: %w", err)
			}
			rec = append(rec, core.NewBoolValue(b != 0))
		default:
			return nil, fmt.Errorf("unknown value kind %d", kindByte)
		}
	}
	return rec, nil
}
