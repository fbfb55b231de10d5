package core

import "fmt"

// FieldType is the declared type of a schema field.
type FieldType byte

const (
	FieldInt64 FieldType = iota + 1
	FieldFloat64
	FieldString
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldInt64:
		return "int64"
	case FieldFloat64:
		return "float64"
	case FieldString:
		return "string"
	case FieldBool:
		return "bool"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// kind maps a field type to the value kind that satisfies it.
func (t FieldType) kind() ValueKind {
	switch t {
	case FieldInt64:
		return ValueInt64
	case FieldFloat64:
		return ValueFloat64
	case FieldString:
		return ValueString
	case FieldBool:
		return ValueBool
	default:
		return 0
	}
}

// Field is a single named, typed column of a Schema.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema is the fixed shape all records written through the sink conform to.
type Schema struct {
	Fields []Field `json:"fields"`
}

// NewSchema builds a schema from fields, rejecting duplicate names.
func NewSchema(fields ...Field) (Schema, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, &SchemaMismatchError{Message: "field with empty name"}
		}
		if f.Type.kind() == 0 {
			return Schema{}, &SchemaMismatchError{Field: f.Name, Message: "unknown field type"}
		}
		if _, dup := seen[f.Name]; dup {
			return Schema{}, &SchemaMismatchError{Field: f.Name, Message: "duplicate field name"}
		}
		seen[f.Name] = struct{}{}
	}
	return Schema{Fields: fields}, nil
}

// FieldIndex returns the position of the named field, or -1.
func (s Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks that a record conforms to the schema in arity and types.
func (s Schema) Validate(rec Record) error {
	if len(rec) != len(s.Fields) {
		return &SchemaMismatchError{
			Message: fmt.Sprintf("record has %d values, schema has %d fields", len(rec), len(s.Fields)),
		}
	}
	for i, f := range s.Fields {
		if rec[i].Kind() != f.Type.kind() {
			return &SchemaMismatchError{
				Field:   f.Name,
				Message: fmt.Sprintf("expected %s, got %s", f.Type, rec[i].Kind()),
			}
		}
	}
	return nil
}

// Projection resolves how records shaped by s are reordered into the output
// schema. Every output field must exist in s with an identical type. The
// returned indices feed Record.Project; a nil result means the schemas are
// positionally identical and no projection is needed.
func (s Schema) Projection(output Schema) ([]int, error) {
	identical := len(output.Fields) == len(s.Fields)
	indices := make([]int, len(output.Fields))
	for i, f := range output.Fields {
		idx := s.FieldIndex(f.Name)
		if idx < 0 {
			return nil, &SchemaMismatchError{Field: f.Name, Message: "not present in input schema"}
		}
		if s.Fields[idx].Type != f.Type {
			return nil, &SchemaMismatchError{
				Field:   f.Name,
				Message: fmt.Sprintf("input type %s does not match output type %s", s.Fields[idx].Type, f.Type),
			}
		}
		indices[i] = idx
		if idx != i {
			identical = false
		}
	}
	if identical {
		return nil, nil
	}
	return indices, nil
}

// Equal reports whether two schemas have the same fields in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != o.Fields[i] {
			return false
		}
	}
	return true
}
