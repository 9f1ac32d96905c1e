package deltacheckpoint

import (
	"time"

	"github.com/parquet-go/parquet-go"
)

// ActionKind identifies one of the action columns a checkpoint row
// schema declares. At most one is populated per row.
type ActionKind uint8

const (
	ActionTxn ActionKind = iota
	ActionAdd
	ActionRemove
	ActionMetadata
	ActionProtocol
	ActionSidecar
)

func (k ActionKind) String() string {
	switch k {
	case ActionTxn:
		return "txn"
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionMetadata:
		return "metadata"
	case ActionProtocol:
		return "protocol"
	case ActionSidecar:
		return "sidecar"
	default:
		return "unknown"
	}
}

// TxnEntry records the last committed version of a streaming
// application's transaction.
type TxnEntry struct {
	AppID       string
	Version     int64
	LastUpdated int64
}

// FormatEntry describes the on-disk format of a table's data files.
type FormatEntry struct {
	Provider string
	Options  map[string]string
}

// MetadataEntry records a table's schema, partitioning and configuration.
type MetadataEntry struct {
	ID               string
	Name             string
	Description      string
	Format           FormatEntry
	SchemaString     string
	PartitionColumns []string
	Configuration    map[string]string
	CreatedTime      int64
}

// ProtocolEntry records the minimum reader/writer protocol versions and,
// once table features are enabled, the explicit feature lists.
type ProtocolEntry struct {
	MinReaderVersion int32
	MinWriterVersion int32
	ReaderFeatures   map[string]struct{}
	WriterFeatures   map[string]struct{}
}

// DeletionVectorEntry is the fixed five-field descriptor of a deletion
// vector attached to a data file.
type DeletionVectorEntry struct {
	StorageType    string
	PathOrInlineDV string
	Offset         *int32
	SizeInBytes    int32
	Cardinality    int64
}

// RemoveFileEntry records a data file removed from the table.
type RemoveFileEntry struct {
	Path              string
	PartitionValues   map[string]string
	DeletionTimestamp int64
	DataChange        bool
	DeletionVector    *DeletionVectorEntry
}

// SidecarEntry points at a sidecar Parquet file that holds additional
// add/remove rows for a V2 checkpoint.
type SidecarEntry struct {
	Path             string
	SizeInBytes      int64
	ModificationTime int64
	Tags             map[string]string
}

// StatAny is a dynamically typed statistics value: exactly one of its
// fields is populated, depending on the logical column's declared type
// and whether it passed the stats decoder's rules.
type StatAny struct {
	// Value holds a scalar min/max/null-count value, copied verbatim
	// from the Parquet column.
	Value parquet.Value
	// Time holds a timestamp-with-time-zone value that passed the
	// modern-era cutoff, packed as (epochMillis, UTC).
	Time *time.Time
	// Raw holds a nested row-typed column's leaf values, copied
	// verbatim when row-stats write-through is enabled.
	Raw []parquet.Value
	// Nested holds per-field null counts for a nested row-typed column.
	Nested map[string]StatAny
}

// ParsedStats is the decoded stats_parsed sub-row of an add action.
type ParsedStats struct {
	NumRecords int64
	MinValues  map[string]StatAny
	MaxValues  map[string]StatAny
	NullCount  map[string]StatAny
}

// AddFileEntry records a data file added to the table.
type AddFileEntry struct {
	Path                     string
	PartitionValues          map[string]string
	CanonicalPartitionValues map[string]*string
	Size                     int64
	ModificationTime         int64
	DataChange               bool
	Stats                    *string
	ParsedStats              *ParsedStats
	Tags                     map[string]string
	DeletionVector           *DeletionVectorEntry
}

// LogEntry is the tagged union over the six action kinds a checkpoint
// row can carry. Exactly one of the pointer fields matching Kind is
// non-nil.
type LogEntry struct {
	Kind     ActionKind
	Txn      *TxnEntry
	Add      *AddFileEntry
	Remove   *RemoveFileEntry
	Metadata *MetadataEntry
	Protocol *ProtocolEntry
	Sidecar  *SidecarEntry
}
