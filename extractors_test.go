package deltacheckpoint

import (
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/deltacheckpoint/internal/fieldreader"
)

type fakeBlock struct {
	rows [][]parquet.Value
}

func (b fakeBlock) IsNull(pos int) bool {
	vals := b.rows[pos]
	if len(vals) == 0 {
		return true
	}
	for _, v := range vals {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

func (b fakeBlock) RowAt(pos int) []parquet.Value { return b.rows[pos] }

func v(col int, val parquet.Value) parquet.Value { return val.Level(0, 1, col) }

func TestExtractTxn(t *testing.T) {
	rt := fieldreader.Type{Name: "txn", Kind: fieldreader.KindGroup, Fields: []fieldreader.Type{
		{Name: "appId", Kind: fieldreader.KindString},
		{Name: "version", Kind: fieldreader.KindInt64},
		{Name: "lastUpdated", Kind: fieldreader.KindInt64},
	}}
	block := fakeBlock{rows: [][]parquet.Value{
		{v(0, parquet.ValueOf("app-1")), v(1, parquet.ValueOf(int64(3))), v(2, parquet.ValueOf(int64(100)))},
	}}

	entry, err := extractTxn(rt, 0, block)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, ActionTxn, entry.Kind)
	require.Equal(t, "app-1", entry.Txn.AppID)
	require.Equal(t, int64(3), entry.Txn.Version)
}

func TestExtractTxnNullRow(t *testing.T) {
	rt := fieldreader.Type{Name: "txn", Kind: fieldreader.KindGroup, Fields: []fieldreader.Type{
		{Name: "appId", Kind: fieldreader.KindString},
	}}
	block := fakeBlock{rows: [][]parquet.Value{nil}}
	entry, err := extractTxn(rt, 0, block)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func remEntryType(withDV bool) fieldreader.Type {
	fields := []fieldreader.Type{
		{Name: "path", Kind: fieldreader.KindString},
		{Name: "partitionValues", Kind: fieldreader.KindMap, Fields: []fieldreader.Type{
			{Name: "key", Kind: fieldreader.KindString}, {Name: "value", Kind: fieldreader.KindString, Optional: true},
		}},
		{Name: "deletionTimestamp", Kind: fieldreader.KindInt64},
		{Name: "dataChange", Kind: fieldreader.KindBoolean},
	}
	return fieldreader.Type{Name: "remove", Kind: fieldreader.KindGroup, Fields: fields}
}

func TestExtractRemoveWrongFieldCount(t *testing.T) {
	rt := fieldreader.Type{Name: "remove", Kind: fieldreader.KindGroup, Fields: remEntryType(false).Fields[:3]}
	block := fakeBlock{rows: [][]parquet.Value{{v(0, parquet.ValueOf("p")), v(1, parquet.ValueOf(int64(1)))}}}
	_, err := extractRemove(rt, 0, block, false)
	require.Error(t, err)
}

func TestExtractRemove(t *testing.T) {
	rt := remEntryType(false)
	block := fakeBlock{rows: [][]parquet.Value{{
		v(0, parquet.ValueOf("data/file-1.parquet")),
		v(3, parquet.ValueOf(int64(1000))),
		v(4, parquet.ValueOf(true)),
	}}}
	entry, err := extractRemove(rt, 0, block, false)
	require.NoError(t, err)
	require.Equal(t, "data/file-1.parquet", entry.Remove.Path)
	require.Equal(t, int64(1000), entry.Remove.DeletionTimestamp)
	require.True(t, entry.Remove.DataChange)
	require.Nil(t, entry.Remove.DeletionVector)
}

func addEntryType() fieldreader.Type {
	return fieldreader.Type{Name: "add", Kind: fieldreader.KindGroup, Fields: []fieldreader.Type{
		{Name: "path", Kind: fieldreader.KindString},
		{Name: "partitionValues", Kind: fieldreader.KindMap, Fields: []fieldreader.Type{
			{Name: "key", Kind: fieldreader.KindString}, {Name: "value", Kind: fieldreader.KindString, Optional: true},
		}},
		{Name: "size", Kind: fieldreader.KindInt64},
		{Name: "modificationTime", Kind: fieldreader.KindInt64},
		{Name: "dataChange", Kind: fieldreader.KindBoolean},
		{Name: "stats", Kind: fieldreader.KindString, Optional: true},
		{Name: "tags", Kind: fieldreader.KindMap, Fields: []fieldreader.Type{
			{Name: "key", Kind: fieldreader.KindString}, {Name: "value", Kind: fieldreader.KindString, Optional: true},
		}},
	}}
}

func addBlockRow(path string, partitionColumn string) []parquet.Value {
	return []parquet.Value{
		v(0, parquet.ValueOf(path)),
		v(1, parquet.ValueOf(partitionColumn)), // partitionValues.key
		v(2, parquet.ValueOf("us")),            // partitionValues.value
		v(3, parquet.ValueOf(int64(2048))),
		v(4, parquet.ValueOf(int64(1700000000000))),
		v(5, parquet.ValueOf(true)),
		parquet.ValueOf(nil).Level(0, 0, 6), // stats, absent
	}
}

func TestExtractAddPrunedByPartitionConstraint(t *testing.T) {
	rt := addEntryType()
	block := fakeBlock{rows: [][]parquet.Value{addBlockRow("data/file-1.parquet", "region")}}
	cfg := Config{
		Options: Options{
			PartitionConstraint: PartitionConstraint{"region": {"eu": {}}},
		},
	}
	entry, err := extractAdd(rt, 0, block, cfg, nil)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestExtractAddAllowedByPartitionConstraint(t *testing.T) {
	rt := addEntryType()
	block := fakeBlock{rows: [][]parquet.Value{addBlockRow("data/file-1.parquet", "region")}}
	cfg := Config{
		Options: Options{
			PartitionConstraint: PartitionConstraint{"region": {"us": {}}},
		},
	}
	entry, err := extractAdd(rt, 0, block, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, int64(2048), entry.Add.Size)
}

func TestExtractAddPartitionScratchReusesVerdict(t *testing.T) {
	rt := addEntryType()
	block := fakeBlock{rows: [][]parquet.Value{
		addBlockRow("data/file-1.parquet", "region"),
		addBlockRow("data/file-2.parquet", "region"),
	}}
	cfg := Config{
		Options: Options{
			PartitionConstraint: PartitionConstraint{"region": {"us": {}}},
		},
	}

	scratch := &addScratch{}
	first, err := extractAdd(rt, 0, block, cfg, scratch)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.True(t, scratch.partitionValid)

	second, err := extractAdd(rt, 1, block, cfg, scratch)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, "data/file-2.parquet", second.Add.Path)
}

func metadataEntryType() fieldreader.Type {
	strMap := func(name string) fieldreader.Type {
		return fieldreader.Type{Name: name, Kind: fieldreader.KindMap, Fields: []fieldreader.Type{
			{Name: "key", Kind: fieldreader.KindString}, {Name: "value", Kind: fieldreader.KindString, Optional: true},
		}}
	}
	return fieldreader.Type{Name: "metadata", Kind: fieldreader.KindGroup, Fields: []fieldreader.Type{
		{Name: "id", Kind: fieldreader.KindString},
		{Name: "name", Kind: fieldreader.KindString},
		{Name: "description", Kind: fieldreader.KindString},
		{Name: "format", Kind: fieldreader.KindGroup, Fields: []fieldreader.Type{
			{Name: "provider", Kind: fieldreader.KindString},
			strMap("options"),
		}},
		{Name: "schemaString", Kind: fieldreader.KindString},
		{Name: "partitionColumns", Kind: fieldreader.KindList, Fields: []fieldreader.Type{
			{Name: "element", Kind: fieldreader.KindString},
		}},
		strMap("configuration"),
		{Name: "createdTime", Kind: fieldreader.KindInt64},
	}}
}

func TestExtractMetadata(t *testing.T) {
	rt := metadataEntryType()
	block := fakeBlock{rows: [][]parquet.Value{{
		v(0, parquet.ValueOf("t1")),
		v(1, parquet.ValueOf("t")),
		v(2, parquet.ValueOf("")),
		v(3, parquet.ValueOf("parquet")),
		v(6, parquet.ValueOf(`{"type":"struct","fields":[]}`)),
		v(10, parquet.ValueOf(int64(0))),
	}}}

	entry, err := extractMetadata(rt, 0, block)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "t1", entry.Metadata.ID)
	require.Equal(t, "t", entry.Metadata.Name)
	require.Equal(t, "parquet", entry.Metadata.Format.Provider)
	require.Empty(t, entry.Metadata.Format.Options)
	require.Empty(t, entry.Metadata.PartitionColumns)
	require.Equal(t, int64(0), entry.Metadata.CreatedTime)
}

func TestExtractMetadataWrongFieldCount(t *testing.T) {
	rt := fieldreader.Type{Name: "metadata", Kind: fieldreader.KindGroup, Fields: metadataEntryType().Fields[:7]}
	block := fakeBlock{rows: [][]parquet.Value{{v(0, parquet.ValueOf("t1"))}}}
	_, err := extractMetadata(rt, 0, block)
	require.Error(t, err)
	var schemaErr *SchemaViolationError
	require.ErrorAs(t, err, &schemaErr)
}

func protocolEntryType(withFeatures bool) fieldreader.Type {
	fields := []fieldreader.Type{
		{Name: "minReaderVersion", Kind: fieldreader.KindInt32},
		{Name: "minWriterVersion", Kind: fieldreader.KindInt32},
	}
	if withFeatures {
		fields = append(fields,
			fieldreader.Type{Name: "readerFeatures", Kind: fieldreader.KindList, Optional: true, Fields: []fieldreader.Type{
				{Name: "element", Kind: fieldreader.KindString},
			}},
			fieldreader.Type{Name: "writerFeatures", Kind: fieldreader.KindList, Optional: true, Fields: []fieldreader.Type{
				{Name: "element", Kind: fieldreader.KindString},
			}},
		)
	}
	return fieldreader.Type{Name: "protocol", Kind: fieldreader.KindGroup, Fields: fields}
}

func TestExtractProtocolTwoFields(t *testing.T) {
	rt := protocolEntryType(false)
	block := fakeBlock{rows: [][]parquet.Value{{
		v(0, parquet.ValueOf(int32(1))),
		v(1, parquet.ValueOf(int32(2))),
	}}}

	entry, err := extractProtocol(rt, 0, block)
	require.NoError(t, err)
	require.Equal(t, int32(1), entry.Protocol.MinReaderVersion)
	require.Equal(t, int32(2), entry.Protocol.MinWriterVersion)
	require.Nil(t, entry.Protocol.ReaderFeatures)
	require.Nil(t, entry.Protocol.WriterFeatures)
}

func TestExtractProtocolWithFeatures(t *testing.T) {
	rt := protocolEntryType(true)
	block := fakeBlock{rows: [][]parquet.Value{{
		v(0, parquet.ValueOf(int32(3))),
		v(1, parquet.ValueOf(int32(7))),
		v(2, parquet.ValueOf("deletionVectors")),
		v(3, parquet.ValueOf("deletionVectors")),
	}}}

	entry, err := extractProtocol(rt, 0, block)
	require.NoError(t, err)
	require.Contains(t, entry.Protocol.ReaderFeatures, "deletionVectors")
	require.Contains(t, entry.Protocol.WriterFeatures, "deletionVectors")
}

func TestExtractProtocolWrongFieldCount(t *testing.T) {
	fields := append(protocolEntryType(true).Fields, fieldreader.Type{Name: "extra", Kind: fieldreader.KindInt32})
	rt := fieldreader.Type{Name: "protocol", Kind: fieldreader.KindGroup, Fields: fields}
	block := fakeBlock{rows: [][]parquet.Value{{v(0, parquet.ValueOf(int32(1)))}}}
	_, err := extractProtocol(rt, 0, block)
	require.Error(t, err)
}

func TestExtractSidecar(t *testing.T) {
	rt := fieldreader.Type{Name: "sidecar", Kind: fieldreader.KindGroup, Fields: []fieldreader.Type{
		{Name: "path", Kind: fieldreader.KindString},
		{Name: "sizeInBytes", Kind: fieldreader.KindInt64},
		{Name: "modificationTime", Kind: fieldreader.KindInt64},
		{Name: "tags", Kind: fieldreader.KindMap, Optional: true, Fields: []fieldreader.Type{
			{Name: "key", Kind: fieldreader.KindString}, {Name: "value", Kind: fieldreader.KindString, Optional: true},
		}},
	}}
	block := fakeBlock{rows: [][]parquet.Value{{
		v(0, parquet.ValueOf("_sidecars/0001.parquet")),
		v(1, parquet.ValueOf(int64(4096))),
		v(2, parquet.ValueOf(int64(1700000000000))),
	}}}

	entry, err := extractSidecar(rt, 0, block)
	require.NoError(t, err)
	require.Equal(t, "_sidecars/0001.parquet", entry.Sidecar.Path)
	require.Equal(t, int64(4096), entry.Sidecar.SizeInBytes)
	require.Nil(t, entry.Sidecar.Tags)
}

func addEntryTypeWithDV() fieldreader.Type {
	base := addEntryType()
	base.Fields = append(base.Fields, fieldreader.Type{
		Name:     "deletionVector",
		Kind:     fieldreader.KindGroup,
		Optional: true,
		Fields: []fieldreader.Type{
			{Name: "storageType", Kind: fieldreader.KindString},
			{Name: "pathOrInlineDv", Kind: fieldreader.KindString},
			{Name: "offset", Kind: fieldreader.KindInt32, Optional: true},
			{Name: "sizeInBytes", Kind: fieldreader.KindInt32},
			{Name: "cardinality", Kind: fieldreader.KindInt64},
		},
	})
	return base
}

func TestExtractAddDeletionVectorGatedByFlag(t *testing.T) {
	rt := addEntryTypeWithDV()
	row := addBlockRow("data/file-1.parquet", "region")
	row = append(row,
		v(9, parquet.ValueOf("u")),
		v(10, parquet.ValueOf("ab^-aqEH.-t@S}K{vb[*k^")),
		v(11, parquet.ValueOf(int32(4))),
		v(12, parquet.ValueOf(int32(40))),
		v(13, parquet.ValueOf(int64(6))),
	)
	block := fakeBlock{rows: [][]parquet.Value{row}}

	entry, err := extractAdd(rt, 0, block, Config{Options: Options{DeletionVectorsEnabled: true}}, nil)
	require.NoError(t, err)
	require.NotNil(t, entry.Add.DeletionVector)
	require.Equal(t, "u", entry.Add.DeletionVector.StorageType)
	require.Equal(t, int64(6), entry.Add.DeletionVector.Cardinality)

	entry, err = extractAdd(rt, 0, block, Config{Options: Options{DeletionVectorsEnabled: false}}, nil)
	require.NoError(t, err)
	require.Nil(t, entry.Add.DeletionVector)
}
