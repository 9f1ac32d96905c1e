package deltacheckpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// IOStats receives byte/position accounting as the iterator advances,
// the way a Trino ConnectorPageSource reports its progress back to the
// engine's split-level statistics. A nil IOStats is valid; all methods
// are no-ops in that case.
type IOStats interface {
	AddPositionsRead(n int64)
	AddBytesRead(n int64)
}

// Options configures ambient, cross-cutting behavior of an Iterator:
// observability, pushdown toggles and decoding knobs that do not
// change the shape of the requested action kinds themselves.
type Options struct {
	Logger  log.Logger
	Tracer  trace.Tracer
	Metrics *Metrics
	IOStats IOStats

	DeletionVectorsEnabled bool
	StatsParsedEnabled     bool
	ReaderFeaturesEnabled  bool
	WriterFeaturesEnabled  bool

	StatsColumnFilter       ColumnFilter
	RowStatsWriteThrough    bool
	ModernEraCutoffEpochDay int64
	PartitionConstraint     PartitionConstraint

	// DomainCompactionThreshold caps the number of discrete values a
	// partition column's pushed-down domain may enumerate; zero means
	// DefaultDomainCompactionThreshold. Columns over the cap are
	// enforced row-level only.
	DomainCompactionThreshold int
}

// Config is everything Open needs to plan and start a single-file scan.
type Config struct {
	File          FileHandle
	Session       SessionContext
	FileSize      int64
	SchemaManager SchemaManager
	Kinds         []ActionKind
	Metadata      *MetadataEntry
	Protocol      *ProtocolEntry
	ReaderOptions ParquetReaderOptions
	Options       Options
}

func (o Options) logger() log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.NewNopLogger()
}

// Iterator pulls log entries, one at a time, from a single checkpoint
// or sidecar file. It owns its PageSource exclusively: the source is
// closed exactly once, on exhaustion, explicit Close, or any
// construction/iteration error. Iterator is not safe for concurrent
// use.
type Iterator struct {
	cfg    Config
	source PageSource
	logger log.Logger

	extractors []extractor

	page         Page
	pagePosition int

	pending    []LogEntry
	pendingPos int

	completedBytes int64

	closed bool
	err    error
}

// Open plans pushdown for cfg, asks factory for a PageSource, and
// returns an Iterator ready for Next. The factory is invoked exactly
// once per Open call; sidecar files each get their own Iterator (see
// OpenSidecars).
func Open(ctx context.Context, cfg Config, factory PageSourceFactory) (*Iterator, error) {
	if len(cfg.Kinds) == 0 {
		return nil, &ConfigurationError{Detail: "at least one action kind must be requested"}
	}
	if containsKind(cfg.Kinds, ActionAdd) && (cfg.Metadata == nil || cfg.Protocol == nil) {
		return nil, &ConfigurationError{Detail: "add entries require both metadata and protocol entries to resolve the add row type"}
	}

	if cfg.Options.Tracer != nil {
		var span trace.Span
		ctx, span = cfg.Options.Tracer.Start(ctx, "checkpoint.Open")
		defer span.End()
	}

	p, err := planPushdown(cfg)
	if err != nil {
		return nil, err
	}

	scanID := ulid.Make()
	logger := log.With(cfg.Options.logger(), "scan_id", scanID.String(), "file", cfg.File.Path)

	req := PageSourceRequest{
		File:             cfg.File,
		Session:          cfg.Session,
		Length:           cfg.FileSize,
		ProjectedColumns: p.kinds,
		Domains:          p.domains,
		TimeZone:         time.UTC,
		ReaderOptions:    cfg.ReaderOptions,
	}

	level.Debug(logger).Log("msg", "opening checkpoint page source", "kinds", fmt.Sprint(p.kinds))

	source, err := factory(ctx, req)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open page source", "err", err)
		return nil, &IOFailureError{Err: err}
	}

	it := &Iterator{
		cfg:    cfg,
		source: source,
		logger: logger,
	}

	it.extractors = make([]extractor, len(p.kinds))
	for i, k := range p.kinds {
		it.extractors[i] = buildExtractor(k, p.rowTypes[k], cfg)
	}

	return it, nil
}

// Next advances to and returns the next log entry, or (nil, nil) once
// the file is exhausted. The returned entry is only valid until the
// next call to Next.
func (it *Iterator) Next(ctx context.Context) (*LogEntry, error) {
	if it.closed {
		return nil, it.err
	}

	for {
		if it.pendingPos < len(it.pending) {
			e := it.pending[it.pendingPos]
			it.pendingPos++
			it.cfg.Options.Metrics.observeEntry(e.Kind)
			return &e, nil
		}

		if it.page == nil || it.pagePosition >= it.page.PositionCount() {
			if err := it.advancePage(ctx); err != nil {
				it.fail(err)
				return nil, err
			}
			if it.page == nil {
				if err := it.closeSource(); err != nil {
					return nil, err
				}
				return nil, nil
			}
			continue
		}

		entries, err := it.extractRow(it.pagePosition)
		it.pagePosition++
		if err != nil {
			it.cfg.Options.Metrics.observeSchemaError()
			it.fail(err)
			return nil, err
		}
		it.cfg.Options.Metrics.observeRows(1)
		it.pending = entries
		it.pendingPos = 0
	}
}

func (it *Iterator) extractRow(pos int) ([]LogEntry, error) {
	var out []LogEntry
	for i, ex := range it.extractors {
		block := it.page.GetBlock(i)
		entry, err := ex(pos, block)
		if err != nil {
			return nil, &SchemaViolationError{File: it.cfg.File.Path, Detail: err.Error()}
		}
		if entry != nil {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (it *Iterator) advancePage(ctx context.Context) error {
	if it.source.IsFinished() {
		it.page = nil
		return nil
	}

	if it.cfg.Options.Tracer != nil {
		var span trace.Span
		ctx, span = it.cfg.Options.Tracer.Start(ctx, "checkpoint.GetNextSourcePage")
		defer span.End()
	}

	page, err := it.source.GetNextSourcePage(ctx)
	if err != nil {
		return &IOFailureError{Err: err}
	}
	if page == nil {
		it.page = nil
		return nil
	}

	if len(it.extractors) > 0 && page.ChannelCount() != len(it.extractors) {
		return &SchemaViolationError{
			File:   it.cfg.File.Path,
			Detail: fmt.Sprintf("page has %d channels, expected %d projected action kinds", page.ChannelCount(), len(it.extractors)),
		}
	}

	it.cfg.Options.Metrics.observePage(page.PositionCount())
	if it.cfg.Options.IOStats != nil {
		it.cfg.Options.IOStats.AddPositionsRead(int64(page.PositionCount()))
		if n := it.source.GetCompletedBytes(); n > it.completedBytes {
			it.cfg.Options.IOStats.AddBytesRead(n - it.completedBytes)
			it.completedBytes = n
		}
	}

	it.page = page
	it.pagePosition = 0
	return nil
}

func (it *Iterator) fail(err error) {
	it.err = err
	_ = it.closeSource()
}

func (it *Iterator) closeSource() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.source == nil {
		return nil
	}
	if err := it.source.Close(); err != nil {
		level.Warn(it.logger).Log("msg", "error closing page source", "err", err)
		return &IOFailureError{Err: err}
	}
	return nil
}

// Close releases the iterator's page source. It is idempotent and
// safe to call after Next has already exhausted or failed the scan.
func (it *Iterator) Close() error {
	return it.closeSource()
}

// GetCompletedPositions reports the number of row positions consumed
// from the underlying page source so far.
func (it *Iterator) GetCompletedPositions() int64 {
	if it.source == nil {
		return 0
	}
	return it.source.GetCompletedPositions()
}

// GetCompletedBytes reports the number of bytes consumed from the
// underlying page source so far.
func (it *Iterator) GetCompletedBytes() int64 {
	if it.source == nil {
		return 0
	}
	return it.source.GetCompletedBytes()
}
