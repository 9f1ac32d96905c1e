package deltacheckpoint

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// FileHandle identifies a checkpoint (or sidecar) file to open. It is
// opaque to this package; concrete page source implementations
// interpret it (e.g. as a bucket object key or local path).
type FileHandle struct {
	Path string
}

// SessionContext is passed through from the caller to the page source
// factory without interpretation by the iterator itself, the way a
// Trino ConnectorSession flows through a page source provider. It
// carries a stable identity for correlating logs, traces and IOStats
// across a single logical scan.
type SessionContext struct {
	ScanID uuid.UUID
}

// NewSessionContext creates a SessionContext with a fresh scan id.
func NewSessionContext() SessionContext {
	return SessionContext{ScanID: uuid.New()}
}

// ParquetReaderOptions is the pass-through set of Parquet reader knobs
// (row group buffer sizes, page checksums, etc.) forwarded verbatim
// to the page source factory.
type ParquetReaderOptions struct {
	MaxRowGroupBuffer int
	VerifyChecksums   bool
}

// Domain is a single-column predicate the pushdown planner builds for
// one requested action kind: "this sub-field is not null", optionally
// ANDed (for add) with partition-value domains.
type Domain struct {
	Kind      ActionKind
	Column    string
	NotNull   bool
	Partition []PartitionColumnDomain
}

// PartitionColumnDomain restricts one partition column to a finite set
// of allowed values, projected onto partitionvalues_parsed.
type PartitionColumnDomain struct {
	Column string
	Values map[string]struct{}
}

// PageSourceRequest carries everything the pushdown planner computed
// to the external page source factory: the projected columns (action
// kinds, in caller order so channel index lines up with the iterator's
// extractor order), the OR'd list of per-kind domains, and pass-through
// file/session parameters.
type PageSourceRequest struct {
	File             FileHandle
	Session          SessionContext
	Offset           int64
	Length           int64
	ProjectedColumns []ActionKind
	Domains          []Domain
	TimeZone         *time.Location
	ReaderOptions    ParquetReaderOptions
	SplitSize        int64
	RowCount         int64
}

// Block is one column's materialized values across a page: IsNull
// reports whether the action column is unpopulated at a row position,
// and RowAt returns that position's leaf values (local column indices,
// matching the row Type the schema manager declared for this action).
type Block interface {
	IsNull(position int) bool
	RowAt(position int) []parquet.Value
}

// Page is one block-oriented unit of the page source's output: a fixed
// number of row positions across a fixed number of projected channels.
type Page interface {
	ChannelCount() int
	PositionCount() int
	GetBlock(channel int) Block
}

// PageSource is the external, block-oriented columnar page stream this
// package consumes. Its construction (from a file handle, offset,
// length, projected columns and predicate domains) and its concrete
// implementation are out of scope for this package; see the
// parquetsource package for a Parquet-backed implementation.
type PageSource interface {
	GetNextSourcePage(ctx context.Context) (Page, error)
	IsFinished() bool
	GetCompletedPositions() int64
	GetCompletedBytes() int64
	Close() error
}

// PageSourceFactory opens a PageSource for a single checkpoint or
// sidecar file, given the pushdown planner's projection and predicate
// request.
type PageSourceFactory func(ctx context.Context, req PageSourceRequest) (PageSource, error)
