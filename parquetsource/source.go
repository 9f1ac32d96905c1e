// Package parquetsource is the default deltacheckpoint.PageSourceFactory:
// it reads a checkpoint or sidecar Parquet file out of an
// objstore.Bucket, one row group at a time.
package parquetsource

import (
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"
	"github.com/thanos-io/objstore"

	deltacheckpoint "github.com/polarsignals/deltacheckpoint"
)

// bucketReaderAt adapts an objstore.Bucket object to io.ReaderAt so
// parquet.OpenFile can issue ranged reads against it.
type bucketReaderAt struct {
	bucket objstore.Bucket
	ctx    context.Context
	name   string
}

func (b *bucketReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	rc, err := b.bucket.GetRange(b.ctx, b.name, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
	}()
	return rc.Read(p)
}

// Factory builds a deltacheckpoint.PageSourceFactory backed by bucket.
// The returned factory opens exactly one *parquet.File per call, and
// the Source it returns owns that file's underlying reader for its
// entire lifetime.
func Factory(bucket objstore.Bucket) deltacheckpoint.PageSourceFactory {
	return func(ctx context.Context, req deltacheckpoint.PageSourceRequest) (deltacheckpoint.PageSource, error) {
		return open(ctx, bucket, req)
	}
}

func open(ctx context.Context, bucket objstore.Bucket, req deltacheckpoint.PageSourceRequest) (*Source, error) {
	size := req.Length
	if size == 0 {
		attrs, err := bucket.Attributes(ctx, req.File.Path)
		if err != nil {
			return nil, fmt.Errorf("stat checkpoint file %s: %w", req.File.Path, err)
		}
		size = attrs.Size
	}

	r := &bucketReaderAt{bucket: bucket, ctx: ctx, name: req.File.Path}
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint file %s: %w", req.File.Path, err)
	}

	ranges, err := columnRanges(file.Schema(), req.ProjectedColumns)
	if err != nil {
		return nil, err
	}

	return &Source{
		file:      file,
		ranges:    ranges,
		rowGroups: file.RowGroups(),
		domains:   req.Domains,
	}, nil
}

// fieldRange is the contiguous leaf-column span, within a row group's
// wider physical schema, that one requested action kind's top-level
// group occupies.
type fieldRange struct {
	offset int
	width  int
}

// columnRanges locates each requested action kind's top-level field in
// schema and records its leaf-column range, in schema.Columns() order
// (left-to-right depth-first), the same order fieldreader.Type assumes.
func columnRanges(schema *parquet.Schema, kinds []deltacheckpoint.ActionKind) ([]fieldRange, error) {
	leafPaths := schema.Columns()

	widths := map[string]int{}
	offsets := map[string]int{}
	seen := map[string]bool{}
	pos := 0
	for _, path := range leafPaths {
		if len(path) == 0 {
			continue
		}
		top := path[0]
		if !seen[top] {
			offsets[top] = pos
			seen[top] = true
		}
		widths[top]++
		pos++
	}

	out := make([]fieldRange, len(kinds))
	for i, k := range kinds {
		name := k.String()
		if !seen[name] {
			return nil, &deltacheckpoint.SchemaViolationError{
				Detail: fmt.Sprintf("checkpoint schema has no top-level column %q", name),
			}
		}
		out[i] = fieldRange{offset: offsets[name], width: widths[name]}
	}
	return out, nil
}

// Source is a deltacheckpoint.PageSource that emits one Page per row
// group, applying only the cheap row-group-level skip the domains
// allow (a group is dropped when the column index proves every
// requested kind's required sub-field all-null); finer row-level
// pruning is left to the extractors.
type Source struct {
	file      *parquet.File
	ranges    []fieldRange
	rowGroups []parquet.RowGroup
	domains   []deltacheckpoint.Domain

	idx           int
	positionsRead int64
	// bytesRead is not tracked at row-group granularity by this reader;
	// it always reports zero. A caller that needs byte-level IOStats
	// should wrap bucket with one that counts GetRange payload sizes.
	bytesRead int64
}

func (s *Source) IsFinished() bool {
	return s.idx >= len(s.rowGroups)
}

func (s *Source) GetNextSourcePage(ctx context.Context) (deltacheckpoint.Page, error) {
	for s.idx < len(s.rowGroups) {
		rg := s.rowGroups[s.idx]
		s.idx++

		if s.skipRowGroup(rg) {
			continue
		}

		page, err := materializePage(rg, s.ranges)
		if err != nil {
			return nil, err
		}
		s.positionsRead += int64(page.PositionCount())
		return page, nil
	}
	return nil, nil
}

// skipRowGroup reports whether every requested action kind is provably
// absent from rg. The domains are a disjunction: the row group survives
// as long as a single kind cannot be ruled out, and a kind is ruled out
// only when the column index shows its required sub-field null on every
// row of the group.
func (s *Source) skipRowGroup(rg parquet.RowGroup) bool {
	if len(s.domains) == 0 {
		return false
	}
	for _, d := range s.domains {
		if !d.NotNull {
			return false
		}
		idx := leafColumnIndex(rg.Schema(), d.Kind.String(), d.Column)
		if idx < 0 {
			return false
		}
		chunk := rg.ColumnChunks()[idx]
		ci, err := chunk.ColumnIndex()
		if err != nil || ci == nil {
			return false
		}
		nulls := int64(0)
		for i := 0; i < ci.NumPages(); i++ {
			nulls += ci.NullCount(i)
		}
		if nulls < rg.NumRows() {
			return false
		}
	}
	return true
}

// leafColumnIndex locates the leaf column holding an action kind's
// required sub-field, in schema.Columns() order (the order
// rg.ColumnChunks() uses).
func leafColumnIndex(schema *parquet.Schema, kind, column string) int {
	for i, path := range schema.Columns() {
		if len(path) >= 2 && path[0] == kind && path[1] == column {
			return i
		}
	}
	return -1
}

func (s *Source) Close() error {
	return nil
}

func (s *Source) GetCompletedPositions() int64 { return s.positionsRead }
func (s *Source) GetCompletedBytes() int64     { return s.bytesRead }
