package core

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// PartitionPart is one (field, value) element of a partition key. Values are
// the string rendering of the transform output, which is also what appears
// in the data file path.
type PartitionPart struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// PartitionKey is the ordered tuple of transformed values that identifies
// the logical partition a record belongs to. The empty key denotes an
// unpartitioned table. Two records with an equal key must be physically
// grouped into the same files.
type PartitionKey []PartitionPart

// IsEmpty reports whether the key belongs to an unpartitioned table.
func (k PartitionKey) IsEmpty() bool {
	return len(k) == 0
}

// Path renders the key as a relative directory path, e.g. "data=aaa/id=3".
// The empty key renders as "".
func (k PartitionKey) Path() string {
	if len(k) == 0 {
		return ""
	}
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = p.Field + "=" + p.Value
	}
	return strings.Join(parts, "/")
}

// String is Path, for logging.
func (k PartitionKey) String() string {
	return k.Path()
}

// Equal reports whether two keys have identical parts.
func (k PartitionKey) Equal(o PartitionKey) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// Hash returns a stable hash of the key, used for hash distribution. Field
// names and values are length-delimited so that ("a","bc") and ("ab","c")
// never collide.
func (k PartitionKey) Hash() uint64 {
	d := xxhash.New()
	var sep [1]byte
	for _, p := range k {
		_, _ = d.WriteString(p.Field)
		_, _ = d.Write(sep[:])
		_, _ = d.WriteString(p.Value)
		_, _ = d.Write(sep[:])
	}
	return d.Sum64()
}
