package core

import (
	"fmt"
	"strconv"
)

// ValueKind identifies the dynamic type of a field value.
type ValueKind byte

const (
	ValueInt64 ValueKind = iota + 1
	ValueFloat64
	ValueString
	ValueBool
)

func (k ValueKind) String() string {
	switch k {
	case ValueInt64:
		return "int64"
	case ValueFloat64:
		return "float64"
	case ValueString:
		return "string"
	case ValueBool:
		return "bool"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// Value is a single typed field value inside a Record.
type Value struct {
	kind ValueKind
	i64  int64
	f64  float64
	str  string
	b    bool
}

func NewInt64Value(v int64) Value     { return Value{kind: ValueInt64, i64: v} }
func NewFloat64Value(v float64) Value { return Value{kind: ValueFloat64, f64: v} }
func NewStringValue(v string) Value   { return Value{kind: ValueString, str: v} }
func NewBoolValue(v bool) Value       { return Value{kind: ValueBool, b: v} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Int64() (int64, bool) {
	return v.i64, v.kind == ValueInt64
}

func (v Value) Float64() (float64, bool) {
	return v.f64, v.kind == ValueFloat64
}

func (v Value) Str() (string, bool) {
	return v.str, v.kind == ValueString
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == ValueBool
}

// Render formats the value for use in partition paths and log output.
func (v Value) Render() string {
	switch v.kind {
	case ValueInt64:
		return strconv.FormatInt(v.i64, 10)
	case ValueFloat64:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case ValueString:
		return v.str
	case ValueBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v == o
}

// Record is an ordered tuple of typed field values conforming to a Schema.
// Records are immutable once produced.
type Record []Value

// Row builds a Record from native Go values. Supported types are int
// (widened to int64), int64, float64, string and bool. It is primarily a
// convenience for embedders and tests.
func Row(values ...any) (Record, error) {
	rec := make(Record, 0, len(values))
	for i, raw := range values {
		switch v := raw.(type) {
		case int:
			rec = append(rec, NewInt64Value(int64(v)))
		case int64:
			rec = append(rec, NewInt64Value(v))
		case float64:
			rec = append(rec, NewFloat64Value(v))
		case string:
			rec = append(rec, NewStringValue(v))
		case bool:
			rec = append(rec, NewBoolValue(v))
		default:
			return nil, fmt.Errorf("unsupported value type %T at position %d", raw, i)
		}
	}
	return rec, nil
}

// MustRow is Row but panics on unsupported types. For tests.
func MustRow(values ...any) Record {
	rec, err := Row(values...)
	if err != nil {
		panic(err)
	}
	return rec
}

// Project reorders the record's values according to the given field index
// mapping, as resolved by Schema.Projection.
func (r Record) Project(indices []int) Record {
	if indices == nil {
		return r
	}
	out := make(Record, len(indices))
	for i, idx := range indices {
		out[i] = r[idx]
	}
	return out
}

// Equal reports value-wise equality of two records.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}
