package partition

import (
	"fmt"

	"github.com/INLOpen/lakesink/core"
)

// Transform maps a source field value to the partition value string that
// appears in keys and file paths.
type Transform string

const (
	// TransformIdentity uses the field value itself as the partition value.
	TransformIdentity Transform = "identity"
)

// Apply runs the transform over a single field value.
func (t Transform) Apply(v core.Value) (string, error) {
	switch t {
	case TransformIdentity, "":
		return v.Render(), nil
	default:
		return "", fmt.Errorf("unknown partition transform %q", t)
	}
}

// SpecField is one (source field, transform) entry of a partition spec.
type SpecField struct {
	Source    string    `json:"source"`
	Transform Transform `json:"transform"`
}

// Spec is the ordered list of (field, transform) pairs that derives a
// partition key from a record. The empty spec describes an unpartitioned
// table.
type Spec struct {
	Fields []SpecField `json:"fields,omitempty"`
}

// Unpartitioned returns the empty spec.
func Unpartitioned() Spec {
	return Spec{}
}

// Identity returns a spec partitioning by the named fields with the
// identity transform.
func Identity(fields ...string) Spec {
	spec := Spec{Fields: make([]SpecField, len(fields))}
	for i, name := range fields {
		spec.Fields[i] = SpecField{Source: name, Transform: TransformIdentity}
	}
	return spec
}

// IsUnpartitioned reports whether the spec derives the empty key.
func (s Spec) IsUnpartitioned() bool {
	return len(s.Fields) == 0
}
