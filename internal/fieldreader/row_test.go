package fieldreader

import (
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

func txnType() Type {
	return Type{
		Name: "txn",
		Kind: KindGroup,
		Fields: []Type{
			{Name: "appId", Kind: KindString},
			{Name: "version", Kind: KindInt64},
			{Name: "lastUpdated", Kind: KindInt64, Optional: true},
		},
	}
}

func col(col int, v parquet.Value) parquet.Value {
	return v.Level(0, 1, col)
}

func TestRowGetString(t *testing.T) {
	typ := txnType()
	values := []parquet.Value{
		col(0, parquet.ValueOf("app-1")),
		col(1, parquet.ValueOf(int64(42))),
		col(2, parquet.ValueOf(int64(1000))),
	}
	row := NewRow(typ, values)

	appID, err := row.GetString("appId")
	require.NoError(t, err)
	require.Equal(t, "app-1", appID)

	version, err := row.GetLong("version")
	require.NoError(t, err)
	require.Equal(t, int64(42), version)
}

func TestRowMissingFieldIsSchemaError(t *testing.T) {
	typ := txnType()
	row := NewRow(typ, nil)
	_, err := row.GetString("doesNotExist")
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestRowWrongKindIsSchemaError(t *testing.T) {
	typ := txnType()
	values := []parquet.Value{
		col(0, parquet.ValueOf("app-1")),
		col(1, parquet.ValueOf(int64(42))),
		col(2, parquet.ValueOf(int64(1000))),
	}
	row := NewRow(typ, values)
	_, err := row.GetLong("appId")
	require.Error(t, err)
}

func TestRowOptionalLongNull(t *testing.T) {
	typ := txnType()
	values := []parquet.Value{
		col(0, parquet.ValueOf("app-1")),
		col(1, parquet.ValueOf(int64(42))),
		parquet.ValueOf(nil).Level(0, 0, 2),
	}
	row := NewRow(typ, values)
	v, err := row.GetOptionalLong("lastUpdated")
	require.NoError(t, err)
	require.Nil(t, v)
}

func mapType(name string, optional bool) Type {
	return Type{
		Name:     name,
		Kind:     KindMap,
		Optional: optional,
		Fields: []Type{
			{Name: "key", Kind: KindString},
			{Name: "value", Kind: KindString, Optional: true},
		},
	}
}

func TestRowGetMap(t *testing.T) {
	typ := Type{Name: "row", Kind: KindGroup, Fields: []Type{mapType("tags", false)}}
	values := []parquet.Value{
		col(0, parquet.ValueOf("k1")),
		col(0, parquet.ValueOf("k2")),
		col(1, parquet.ValueOf("v1")),
		col(1, parquet.ValueOf("v2")),
	}
	row := NewRow(typ, values)
	m, err := row.GetMap("tags")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"k1": "v1", "k2": "v2"}, m)
}

func TestRowGetOptionalMapAllNull(t *testing.T) {
	typ := Type{Name: "row", Kind: KindGroup, Fields: []Type{mapType("tags", true)}}
	row := NewRow(typ, nil)
	m, err := row.GetOptionalMap("tags")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestRowNestedGroup(t *testing.T) {
	inner := Type{Name: "format", Kind: KindGroup, Fields: []Type{
		{Name: "provider", Kind: KindString},
	}}
	outer := Type{Name: "metadata", Kind: KindGroup, Fields: []Type{inner}}
	values := []parquet.Value{col(0, parquet.ValueOf("parquet"))}
	row := NewRow(outer, values)

	format, err := row.GetRow("format")
	require.NoError(t, err)
	require.NotNil(t, format)

	provider, err := format.GetString("provider")
	require.NoError(t, err)
	require.Equal(t, "parquet", provider)
}

func TestTypeNumLeaves(t *testing.T) {
	typ := Type{Name: "add", Kind: KindGroup, Fields: []Type{
		{Name: "path", Kind: KindString},
		mapType("partitionValues", false),
		{Name: "size", Kind: KindInt64},
	}}
	require.Equal(t, 4, typ.NumLeaves())
}
