// Package fieldreader looks up materialized Parquet row fields by
// declared name instead of ordinal, tolerating ordinal drift across
// the nested row types a Delta checkpoint action column declares.
package fieldreader

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// Kind identifies the shape of a Type node.
type Kind uint8

const (
	KindGroup Kind = iota
	KindString
	KindInt32
	KindInt64
	KindBoolean
	KindList
	KindMap
)

// Type describes one field of a checkpoint action row: its name, its
// shape, and (for groups, lists and maps) its children. Leaf column
// order is the declaration order of Fields, matching how Parquet
// flattens a nested schema into leaf columns by left-to-right
// depth-first traversal.
type Type struct {
	Name     string
	Kind     Kind
	Optional bool
	// Fields holds child fields for KindGroup. For KindList it holds
	// exactly one synthetic field named "element". For KindMap it
	// holds exactly two synthetic fields named "key" and "value".
	Fields []Type
}

// NumLeaves returns how many leaf (primitive) columns this type spans.
func (t Type) NumLeaves() int {
	switch t.Kind {
	case KindGroup:
		n := 0
		for _, f := range t.Fields {
			n += f.NumLeaves()
		}
		return n
	case KindList:
		return t.Fields[0].NumLeaves()
	case KindMap:
		return t.Fields[0].NumLeaves() + t.Fields[1].NumLeaves()
	default:
		return 1
	}
}

// FieldByName returns the named child field of a group type.
func (t Type) FieldByName(name string) (Type, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Type{}, false
}

// SchemaError reports a row whose shape does not match its declared
// Type: a missing required field, an unexpected field count, or a
// deletion-vector sub-row without exactly five fields.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return "schema violation: " + e.Detail
}

// TypeMismatchError reports a field whose value cannot be read as its
// declared type.
type TypeMismatchError struct {
	Field string
	Err   error
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// Row wraps one materialized row value together with the schema that
// declares how to interpret it. Values carries exactly typ.NumLeaves()
// leaf columns worth of parquet.Value entries (possibly repeated, for
// list/map fields), each tagged with a column index local to this Row
// (0-based, not the absolute index in the page's wider schema).
type Row struct {
	typ    Type
	values []parquet.Value
}

// NewRow constructs a Row from a row type and its local leaf values.
func NewRow(typ Type, values []parquet.Value) *Row {
	return &Row{typ: typ, values: values}
}

// Type returns the row's declared schema.
func (r *Row) Type() Type { return r.typ }

// NumFields returns the number of top-level fields declared for this
// row, used by extractors to validate field-count invariants.
func (r *Row) NumFields() int { return len(r.typ.Fields) }

// field locates the named child field and slices out (and rebases to
// local-zero) the leaf values that belong to it.
func (r *Row) field(name string) (Type, []parquet.Value, error) {
	offset := 0
	for _, f := range r.typ.Fields {
		width := f.NumLeaves()
		if f.Name == name {
			return f, valuesInRange(r.values, offset, width), nil
		}
		offset += width
	}
	return Type{}, nil, &SchemaError{Detail: fmt.Sprintf("field %q not declared in row schema", name)}
}

func valuesInRange(values []parquet.Value, offset, width int) []parquet.Value {
	out := make([]parquet.Value, 0, width)
	for _, v := range values {
		col := v.Column()
		if col >= offset && col < offset+width {
			out = append(out, v.Level(v.RepetitionLevel(), v.DefinitionLevel(), col-offset))
		}
	}
	return out
}

func allNull(values []parquet.Value) bool {
	for _, v := range values {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

// GetString reads a required string field.
func (r *Row) GetString(name string) (string, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return "", err
	}
	if ft.Kind != KindString {
		return "", &SchemaError{Detail: fmt.Sprintf("field %q is not a string", name)}
	}
	if len(vals) == 0 || vals[0].IsNull() {
		return "", &SchemaError{Detail: fmt.Sprintf("required field %q is missing", name)}
	}
	return vals[0].String(), nil
}

// GetOptionalString reads an optional string field, returning nil when
// the field is declared-but-null.
func (r *Row) GetOptionalString(name string) (*string, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if ft.Kind != KindString {
		return nil, &SchemaError{Detail: fmt.Sprintf("field %q is not a string", name)}
	}
	if len(vals) == 0 || vals[0].IsNull() {
		return nil, nil
	}
	s := vals[0].String()
	return &s, nil
}

// GetInt reads a required int32 field.
func (r *Row) GetInt(name string) (int32, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return 0, err
	}
	if ft.Kind != KindInt32 {
		return 0, &SchemaError{Detail: fmt.Sprintf("field %q is not an int32", name)}
	}
	if len(vals) == 0 || vals[0].IsNull() {
		return 0, &SchemaError{Detail: fmt.Sprintf("required field %q is missing", name)}
	}
	return vals[0].Int32(), nil
}

// GetOptionalInt reads an optional int32 field.
func (r *Row) GetOptionalInt(name string) (*int32, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if ft.Kind != KindInt32 {
		return nil, &SchemaError{Detail: fmt.Sprintf("field %q is not an int32", name)}
	}
	if len(vals) == 0 || vals[0].IsNull() {
		return nil, nil
	}
	v := vals[0].Int32()
	return &v, nil
}

// GetLong reads a required int64 field.
func (r *Row) GetLong(name string) (int64, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return 0, err
	}
	if ft.Kind != KindInt64 {
		return 0, &SchemaError{Detail: fmt.Sprintf("field %q is not an int64", name)}
	}
	if len(vals) == 0 || vals[0].IsNull() {
		return 0, &SchemaError{Detail: fmt.Sprintf("required field %q is missing", name)}
	}
	return vals[0].Int64(), nil
}

// GetOptionalLong reads an optional int64 field.
func (r *Row) GetOptionalLong(name string) (*int64, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if ft.Kind != KindInt64 {
		return nil, &SchemaError{Detail: fmt.Sprintf("field %q is not an int64", name)}
	}
	if len(vals) == 0 || vals[0].IsNull() {
		return nil, nil
	}
	v := vals[0].Int64()
	return &v, nil
}

// GetBoolean reads a required boolean field.
func (r *Row) GetBoolean(name string) (bool, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return false, err
	}
	if ft.Kind != KindBoolean {
		return false, &SchemaError{Detail: fmt.Sprintf("field %q is not a boolean", name)}
	}
	if len(vals) == 0 || vals[0].IsNull() {
		return false, &SchemaError{Detail: fmt.Sprintf("required field %q is missing", name)}
	}
	return vals[0].Boolean(), nil
}

// GetList reads a required list<string> field.
func (r *Row) GetList(name string) ([]string, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if ft.Kind != KindList || ft.Fields[0].Kind != KindString {
		return nil, &SchemaError{Detail: fmt.Sprintf("field %q is not a list<string>", name)}
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		out = append(out, v.String())
	}
	return out, nil
}

// GetOptionalSet reads an optional set<string> field, returning nil
// when the field itself is absent (not merely empty).
func (r *Row) GetOptionalSet(name string) (map[string]struct{}, error) {
	ft, vals, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if ft.Kind != KindList || ft.Fields[0].Kind != KindString {
		return nil, &SchemaError{Detail: fmt.Sprintf("field %q is not a set<string>", name)}
	}
	if allNull(vals) {
		return nil, nil
	}
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		out[v.String()] = struct{}{}
	}
	return out, nil
}

// GetMap reads a map<string,string> field. Entries with a null key are
// skipped; a declared-but-empty map reads back as an empty, non-nil map.
func (r *Row) GetMap(name string) (map[string]string, error) {
	ft, sub, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if ft.Kind != KindMap || ft.Fields[0].Kind != KindString || ft.Fields[1].Kind != KindString {
		return nil, &SchemaError{Detail: fmt.Sprintf("field %q is not a map<string,string>", name)}
	}
	keyWidth := ft.Fields[0].NumLeaves()
	keys := valuesInRange(sub, 0, keyWidth)
	vals := valuesInRange(sub, keyWidth, ft.Fields[1].NumLeaves())
	if len(keys) != len(vals) {
		return nil, &SchemaError{Detail: fmt.Sprintf("map field %q has mismatched key/value counts", name)}
	}
	out := make(map[string]string, len(keys))
	for i, k := range keys {
		if k.IsNull() {
			continue
		}
		out[k.String()] = vals[i].String()
	}
	return out, nil
}

// GetOptionalMap reads a map<string,string> field, returning nil when
// the field is declared-but-null as opposed to declared-but-empty.
func (r *Row) GetOptionalMap(name string) (map[string]string, error) {
	_, sub, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if allNull(sub) {
		return nil, nil
	}
	return r.GetMap(name)
}

// GetRow reads a nested row (group) field, returning nil if the field
// exists in the schema but its value is null.
func (r *Row) GetRow(name string) (*Row, error) {
	ft, sub, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if ft.Kind != KindGroup {
		return nil, &SchemaError{Detail: fmt.Sprintf("field %q is not a row", name)}
	}
	if len(sub) == 0 || allNull(sub) {
		return nil, nil
	}
	return NewRow(ft, sub), nil
}

// Field exposes the raw (name, type, local leaf values) triple for a
// field, for callers such as the statistics decoder that need to
// interpret a value's shape dynamically rather than against one of the
// fixed Kinds above.
func (r *Row) Field(name string) (Type, []parquet.Value, error) {
	return r.field(name)
}
