package partition

import (
	"github.com/INLOpen/lakesink/core"
)

// Extractor derives the partition key of a record. Field lookups are
// resolved against the schema once at construction, so extraction itself is
// total, deterministic and allocation-light.
type Extractor struct {
	fields  []SpecField
	indices []int
}

// NewExtractor binds a partition spec to a record schema. It fails with a
// SchemaMismatchError if the schema does not provide a required field.
func NewExtractor(spec Spec, schema core.Schema) (*Extractor, error) {
	indices := make([]int, len(spec.Fields))
	for i, f := range spec.Fields {
		idx := schema.FieldIndex(f.Source)
		if idx < 0 {
			return nil, &core.SchemaMismatchError{
				Field:   f.Source,
				Message: "required by partition spec but not present in schema",
			}
		}
		indices[i] = idx
	}
	return &Extractor{fields: spec.Fields, indices: indices}, nil
}

// Extract computes the partition key of a record. The record is assumed to
// have been validated against the schema the extractor was built with.
func (e *Extractor) Extract(rec core.Record) (core.PartitionKey, error) {
	if len(e.fields) == 0 {
		return nil, nil
	}
	key := make(core.PartitionKey, len(e.fields))
	for i, f := range e.fields {
		value, err := f.Transform.Apply(rec[e.indices[i]])
		if err != nil {
			return nil, err
		}
		key[i] = core.PartitionPart{Field: f.Source, Value: value}
	}
	return key, nil
}
