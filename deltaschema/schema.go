// Package deltaschema is the default SchemaManager: it resolves the
// fixed per-action row types the Delta protocol declares, and derives
// the stats_parsed row type (and the table's logical column tree) from
// a table's schemaString.
package deltaschema

import (
	"encoding/json"
	"fmt"
	"sort"

	deltacheckpoint "github.com/polarsignals/deltacheckpoint"
	"github.com/polarsignals/deltacheckpoint/internal/fieldreader"
)

// Manager is the default, stateless deltacheckpoint.SchemaManager.
// It derives row types purely from the protocol's fixed action shapes
// and, for stats_parsed, from the table metadata's schemaString.
type Manager struct{}

// New returns a Manager. It holds no state and is safe to share across
// concurrent scans.
func New() *Manager { return &Manager{} }

var _ deltacheckpoint.SchemaManager = (*Manager)(nil)

func optionalField(name string, kind fieldreader.Kind) fieldreader.Type {
	return fieldreader.Type{Name: name, Kind: kind, Optional: true}
}

func requiredField(name string, kind fieldreader.Kind) fieldreader.Type {
	return fieldreader.Type{Name: name, Kind: kind}
}

func stringMapField(name string, optional bool) fieldreader.Type {
	return fieldreader.Type{
		Name:     name,
		Kind:     fieldreader.KindMap,
		Optional: optional,
		Fields: []fieldreader.Type{
			{Name: "key", Kind: fieldreader.KindString},
			{Name: "value", Kind: fieldreader.KindString, Optional: true},
		},
	}
}

func stringSetField(name string, optional bool) fieldreader.Type {
	return fieldreader.Type{
		Name:     name,
		Kind:     fieldreader.KindList,
		Optional: optional,
		Fields:   []fieldreader.Type{{Name: "element", Kind: fieldreader.KindString}},
	}
}

// TxnEntryType implements deltacheckpoint.SchemaManager.
func (m *Manager) TxnEntryType() fieldreader.Type {
	return fieldreader.Type{
		Name: "txn",
		Kind: fieldreader.KindGroup,
		Fields: []fieldreader.Type{
			requiredField("appId", fieldreader.KindString),
			requiredField("version", fieldreader.KindInt64),
			requiredField("lastUpdated", fieldreader.KindInt64),
		},
	}
}

// MetadataEntryType implements deltacheckpoint.SchemaManager.
func (m *Manager) MetadataEntryType() fieldreader.Type {
	return fieldreader.Type{
		Name: "metadata",
		Kind: fieldreader.KindGroup,
		Fields: []fieldreader.Type{
			requiredField("id", fieldreader.KindString),
			requiredField("name", fieldreader.KindString),
			requiredField("description", fieldreader.KindString),
			{
				Name: "format",
				Kind: fieldreader.KindGroup,
				Fields: []fieldreader.Type{
					requiredField("provider", fieldreader.KindString),
					stringMapField("options", false),
				},
			},
			requiredField("schemaString", fieldreader.KindString),
			stringSetField("partitionColumns", false),
			stringMapField("configuration", false),
			requiredField("createdTime", fieldreader.KindInt64),
		},
	}
}

// ProtocolEntryType implements deltacheckpoint.SchemaManager.
func (m *Manager) ProtocolEntryType(withReaderFeatures, withWriterFeatures bool) fieldreader.Type {
	fields := []fieldreader.Type{
		requiredField("minReaderVersion", fieldreader.KindInt32),
		requiredField("minWriterVersion", fieldreader.KindInt32),
	}
	if withReaderFeatures {
		fields = append(fields, stringSetField("readerFeatures", true))
	}
	if withWriterFeatures {
		fields = append(fields, stringSetField("writerFeatures", true))
	}
	return fieldreader.Type{Name: "protocol", Kind: fieldreader.KindGroup, Fields: fields}
}

// RemoveEntryType implements deltacheckpoint.SchemaManager.
func (m *Manager) RemoveEntryType(withDeletionVector bool) fieldreader.Type {
	fields := []fieldreader.Type{
		requiredField("path", fieldreader.KindString),
		stringMapField("partitionValues", false),
		requiredField("deletionTimestamp", fieldreader.KindInt64),
		requiredField("dataChange", fieldreader.KindBoolean),
	}
	if withDeletionVector {
		fields = append(fields, deletionVectorType())
	}
	return fieldreader.Type{Name: "remove", Kind: fieldreader.KindGroup, Fields: fields}
}

// SidecarEntryType implements deltacheckpoint.SchemaManager.
func (m *Manager) SidecarEntryType() fieldreader.Type {
	return fieldreader.Type{
		Name: "sidecar",
		Kind: fieldreader.KindGroup,
		Fields: []fieldreader.Type{
			requiredField("path", fieldreader.KindString),
			requiredField("sizeInBytes", fieldreader.KindInt64),
			requiredField("modificationTime", fieldreader.KindInt64),
			stringMapField("tags", true),
		},
	}
}

func deletionVectorType() fieldreader.Type {
	return fieldreader.Type{
		Name:     "deletionVector",
		Kind:     fieldreader.KindGroup,
		Optional: true,
		Fields: []fieldreader.Type{
			requiredField("storageType", fieldreader.KindString),
			requiredField("pathOrInlineDv", fieldreader.KindString),
			optionalField("offset", fieldreader.KindInt32),
			requiredField("sizeInBytes", fieldreader.KindInt32),
			requiredField("cardinality", fieldreader.KindInt64),
		},
	}
}

// AddEntryType implements deltacheckpoint.SchemaManager. It builds the
// stats_parsed sub-row from metadata's schemaString, restricted to the
// columns statsFilter selects (or all columns, if withPhysicalColumnStats
// requests everything be projected regardless of filter).
func (m *Manager) AddEntryType(
	metadata *deltacheckpoint.MetadataEntry,
	protocol *deltacheckpoint.ProtocolEntry,
	statsFilter deltacheckpoint.ColumnFilter,
	withParsedStats bool,
	withDeletionVector bool,
	withPhysicalColumnStats bool,
) (fieldreader.Type, error) {
	fields := []fieldreader.Type{
		requiredField("path", fieldreader.KindString),
		stringMapField("partitionValues", false),
		requiredField("size", fieldreader.KindInt64),
		requiredField("modificationTime", fieldreader.KindInt64),
		requiredField("dataChange", fieldreader.KindBoolean),
		optionalField("stats", fieldreader.KindString),
		stringMapField("tags", false),
	}

	if withDeletionVector {
		fields = append(fields, deletionVectorType())
	}

	if withParsedStats && metadata != nil {
		statsType, err := statsParsedType(metadata, statsFilter)
		if err != nil {
			return fieldreader.Type{}, err
		}
		fields = append(fields, statsType)
	}

	return fieldreader.Type{Name: "add", Kind: fieldreader.KindGroup, Fields: fields}, nil
}

// TableColumns implements deltacheckpoint.SchemaManager.
func (m *Manager) TableColumns(metadata *deltacheckpoint.MetadataEntry) (map[string]deltacheckpoint.ColumnSchema, error) {
	if metadata == nil {
		return map[string]deltacheckpoint.ColumnSchema{}, nil
	}
	schema, err := parseSchemaString(metadata.SchemaString)
	if err != nil {
		return nil, err
	}
	return columnsFromFields(schema.Fields), nil
}

// deltaStructType mirrors the subset of Spark's StructType JSON
// representation a checkpoint's schemaString carries: enough to tell a
// primitive column from a nested struct and a timestamp-with-time-zone
// column from every other primitive.
type deltaStructType struct {
	Type   string             `json:"type"`
	Fields []deltaStructField `json:"fields"`
}

type deltaStructField struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Nullable bool            `json:"nullable"`
}

func parseSchemaString(s string) (deltaStructType, error) {
	var out deltaStructType
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return deltaStructType{}, &deltacheckpoint.SchemaViolationError{Detail: fmt.Sprintf("invalid schemaString: %v", err)}
	}
	return out, nil
}

func columnsFromFields(fields []deltaStructField) map[string]deltacheckpoint.ColumnSchema {
	out := make(map[string]deltacheckpoint.ColumnSchema, len(fields))
	for _, f := range fields {
		out[f.Name] = columnFromField(f)
	}
	return out
}

func columnFromField(f deltaStructField) deltacheckpoint.ColumnSchema {
	var primitive string
	if err := json.Unmarshal(f.Type, &primitive); err == nil {
		if primitive == "timestamp" {
			return deltacheckpoint.ColumnSchema{Name: f.Name, Kind: deltacheckpoint.ColumnTimestampTZ}
		}
		return deltacheckpoint.ColumnSchema{Name: f.Name, Kind: deltacheckpoint.ColumnPrimitive}
	}

	var nested deltaStructType
	if err := json.Unmarshal(f.Type, &nested); err == nil && nested.Type == "struct" {
		return deltacheckpoint.ColumnSchema{
			Name:     f.Name,
			Kind:     deltacheckpoint.ColumnRow,
			Children: columnsFromFields(nested.Fields),
		}
	}

	// array, map and other complex types are not represented in
	// stats_parsed and are treated as opaque primitives for null-count
	// purposes only.
	return deltacheckpoint.ColumnSchema{Name: f.Name, Kind: deltacheckpoint.ColumnPrimitive}
}

func statsParsedType(metadata *deltacheckpoint.MetadataEntry, filter deltacheckpoint.ColumnFilter) (fieldreader.Type, error) {
	schema, err := parseSchemaString(metadata.SchemaString)
	if err != nil {
		return fieldreader.Type{}, err
	}

	columns := columnsFromFields(schema.Fields)
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	minMax := make([]fieldreader.Type, 0, len(names))
	nullCount := make([]fieldreader.Type, 0, len(names))
	for _, name := range names {
		col := columns[name]
		nullCount = append(nullCount, nullCountFieldType(name, col))
		if filter == nil || filter(name) {
			minMax = append(minMax, statFieldType(name, col))
		}
	}

	return fieldreader.Type{
		Name:     "stats_parsed",
		Kind:     fieldreader.KindGroup,
		Optional: true,
		Fields: []fieldreader.Type{
			requiredField("numRecords", fieldreader.KindInt64),
			{Name: "minValues", Kind: fieldreader.KindGroup, Optional: true, Fields: minMax},
			{Name: "maxValues", Kind: fieldreader.KindGroup, Optional: true, Fields: minMax},
			{Name: "nullCount", Kind: fieldreader.KindGroup, Optional: true, Fields: nullCount},
		},
	}, nil
}

func statFieldType(name string, col deltacheckpoint.ColumnSchema) fieldreader.Type {
	switch col.Kind {
	case deltacheckpoint.ColumnTimestampTZ:
		return optionalField(name, fieldreader.KindInt64)
	case deltacheckpoint.ColumnRow:
		children := make([]fieldreader.Type, 0, len(col.Children))
		for _, childName := range sortedKeys(col.Children) {
			children = append(children, statFieldType(childName, col.Children[childName]))
		}
		return fieldreader.Type{Name: name, Kind: fieldreader.KindGroup, Optional: true, Fields: children}
	default:
		return optionalField(name, fieldreader.KindInt64)
	}
}

func nullCountFieldType(name string, col deltacheckpoint.ColumnSchema) fieldreader.Type {
	if col.Kind == deltacheckpoint.ColumnRow {
		children := make([]fieldreader.Type, 0, len(col.Children))
		for _, childName := range sortedKeys(col.Children) {
			children = append(children, nullCountFieldType(childName, col.Children[childName]))
		}
		return fieldreader.Type{Name: name, Kind: fieldreader.KindGroup, Optional: true, Fields: children}
	}
	return optionalField(name, fieldreader.KindInt64)
}

func sortedKeys(m map[string]deltacheckpoint.ColumnSchema) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
