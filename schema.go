package deltacheckpoint

import "github.com/polarsignals/deltacheckpoint/internal/fieldreader"

// ColumnFilter selects which of the table's logical columns the
// statistics decoder should bother decoding min/max values for. It is
// supplied by the caller (e.g. "only columns referenced by this
// query's predicates").
type ColumnFilter func(physicalName string) bool

// AllColumns is a ColumnFilter that selects every column.
func AllColumns(string) bool { return true }

// ColumnKind classifies a logical table column for the purposes of
// decoding its entry inside stats_parsed.
type ColumnKind uint8

const (
	// ColumnPrimitive columns are copied verbatim into the stats map.
	ColumnPrimitive ColumnKind = iota
	// ColumnTimestampTZ columns are read as microseconds since epoch
	// and re-packed as (epochMillis, UTC), subject to the modern-era
	// cutoff.
	ColumnTimestampTZ
	// ColumnRow columns are nested structs; min/max values are copied
	// verbatim only when row-stats write-through is enabled, and
	// null-count decodes recursively into per-field counts.
	ColumnRow
)

// ColumnSchema describes one logical table column as the statistics
// decoder needs to see it: its physical name, its kind, and (for
// ColumnRow) its nested children.
type ColumnSchema struct {
	Name     string
	Kind     ColumnKind
	Children map[string]ColumnSchema
}

// SchemaManager is the external collaborator that resolves, for each
// requested action kind, the logical row type the Parquet reader
// should project. Its output drives both the page source's projected
// column list and the field reader's schema.
type SchemaManager interface {
	TxnEntryType() fieldreader.Type
	AddEntryType(
		metadata *MetadataEntry,
		protocol *ProtocolEntry,
		statsFilter ColumnFilter,
		withParsedStats bool,
		withDeletionVector bool,
		withPhysicalColumnStats bool,
	) (fieldreader.Type, error)
	RemoveEntryType(withDeletionVector bool) fieldreader.Type
	MetadataEntryType() fieldreader.Type
	ProtocolEntryType(withReaderFeatures, withWriterFeatures bool) fieldreader.Type
	SidecarEntryType() fieldreader.Type

	// TableColumns returns the table's logical columns (as declared by
	// the supplied metadata), used by the statistics decoder to know
	// which stats_parsed children are nested rows or timestamps.
	TableColumns(metadata *MetadataEntry) (map[string]ColumnSchema, error)
}
