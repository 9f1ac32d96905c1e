package deltacheckpoint

import (
	"fmt"

	"github.com/polarsignals/deltacheckpoint/internal/fieldreader"
)

// extractor consumes one row position from one action's column block
// and returns either a typed log entry or nil, meaning this row does
// not carry this action kind.
type extractor func(pos int, block Block) (*LogEntry, error)

func buildExtractor(kind ActionKind, rt fieldreader.Type, cfg Config) extractor {
	switch kind {
	case ActionTxn:
		return func(pos int, block Block) (*LogEntry, error) { return extractTxn(rt, pos, block) }
	case ActionAdd:
		scratch := &addScratch{}
		return func(pos int, block Block) (*LogEntry, error) { return extractAdd(rt, pos, block, cfg, scratch) }
	case ActionRemove:
		withDV := cfg.Options.DeletionVectorsEnabled
		return func(pos int, block Block) (*LogEntry, error) { return extractRemove(rt, pos, block, withDV) }
	case ActionMetadata:
		return func(pos int, block Block) (*LogEntry, error) { return extractMetadata(rt, pos, block) }
	case ActionProtocol:
		return func(pos int, block Block) (*LogEntry, error) { return extractProtocol(rt, pos, block) }
	case ActionSidecar:
		return func(pos int, block Block) (*LogEntry, error) { return extractSidecar(rt, pos, block) }
	default:
		return func(pos int, block Block) (*LogEntry, error) {
			return nil, &ConfigurationError{Detail: fmt.Sprintf("unsupported action kind %v", kind)}
		}
	}
}

func extractTxn(rt fieldreader.Type, pos int, block Block) (*LogEntry, error) {
	if block.IsNull(pos) {
		return nil, nil
	}
	row := fieldreader.NewRow(rt, block.RowAt(pos))
	if n := row.NumFields(); n != 3 {
		return nil, &SchemaViolationError{Detail: fmt.Sprintf("txn row has %d fields, want 3", n)}
	}

	appID, err := row.GetString("appId")
	if err != nil {
		return nil, err
	}
	version, err := row.GetLong("version")
	if err != nil {
		return nil, err
	}
	lastUpdated, err := row.GetLong("lastUpdated")
	if err != nil {
		return nil, err
	}

	return &LogEntry{Kind: ActionTxn, Txn: &TxnEntry{
		AppID:       appID,
		Version:     version,
		LastUpdated: lastUpdated,
	}}, nil
}

func extractMetadata(rt fieldreader.Type, pos int, block Block) (*LogEntry, error) {
	if block.IsNull(pos) {
		return nil, nil
	}
	row := fieldreader.NewRow(rt, block.RowAt(pos))
	if n := row.NumFields(); n != 8 {
		return nil, &SchemaViolationError{Detail: fmt.Sprintf("metadata row has %d fields, want 8", n)}
	}

	id, err := row.GetString("id")
	if err != nil {
		return nil, err
	}
	name, err := row.GetString("name")
	if err != nil {
		return nil, err
	}
	description, err := row.GetString("description")
	if err != nil {
		return nil, err
	}
	formatRow, err := row.GetRow("format")
	if err != nil {
		return nil, err
	}
	if formatRow == nil {
		return nil, &SchemaViolationError{Detail: "metadata.format is required but null"}
	}
	if n := formatRow.NumFields(); n != 2 {
		return nil, &SchemaViolationError{Detail: fmt.Sprintf("metadata.format has %d fields, want 2", n)}
	}
	provider, err := formatRow.GetString("provider")
	if err != nil {
		return nil, err
	}
	options, err := formatRow.GetMap("options")
	if err != nil {
		return nil, err
	}
	schemaString, err := row.GetString("schemaString")
	if err != nil {
		return nil, err
	}
	partitionColumns, err := row.GetList("partitionColumns")
	if err != nil {
		return nil, err
	}
	configuration, err := row.GetMap("configuration")
	if err != nil {
		return nil, err
	}
	createdTime, err := row.GetLong("createdTime")
	if err != nil {
		return nil, err
	}

	return &LogEntry{Kind: ActionMetadata, Metadata: &MetadataEntry{
		ID:               id,
		Name:             name,
		Description:      description,
		Format:           FormatEntry{Provider: provider, Options: options},
		SchemaString:     schemaString,
		PartitionColumns: partitionColumns,
		Configuration:    configuration,
		CreatedTime:      createdTime,
	}}, nil
}

func extractProtocol(rt fieldreader.Type, pos int, block Block) (*LogEntry, error) {
	if block.IsNull(pos) {
		return nil, nil
	}
	row := fieldreader.NewRow(rt, block.RowAt(pos))
	if n := row.NumFields(); n < 2 || n > 4 {
		return nil, &SchemaViolationError{Detail: fmt.Sprintf("protocol row has %d fields, want 2-4", n)}
	}

	minReader, err := row.GetInt("minReaderVersion")
	if err != nil {
		return nil, err
	}
	minWriter, err := row.GetInt("minWriterVersion")
	if err != nil {
		return nil, err
	}
	var readerFeatures, writerFeatures map[string]struct{}
	if _, ok := rt.FieldByName("readerFeatures"); ok {
		readerFeatures, err = row.GetOptionalSet("readerFeatures")
		if err != nil {
			return nil, err
		}
	}
	if _, ok := rt.FieldByName("writerFeatures"); ok {
		writerFeatures, err = row.GetOptionalSet("writerFeatures")
		if err != nil {
			return nil, err
		}
	}

	return &LogEntry{Kind: ActionProtocol, Protocol: &ProtocolEntry{
		MinReaderVersion: minReader,
		MinWriterVersion: minWriter,
		ReaderFeatures:   readerFeatures,
		WriterFeatures:   writerFeatures,
	}}, nil
}

func extractRemove(rt fieldreader.Type, pos int, block Block, withDeletionVector bool) (*LogEntry, error) {
	if block.IsNull(pos) {
		return nil, nil
	}
	row := fieldreader.NewRow(rt, block.RowAt(pos))
	if n := row.NumFields(); n != 4 {
		return nil, &SchemaViolationError{Detail: fmt.Sprintf("remove row has %d fields, want 4", n)}
	}

	path, err := row.GetString("path")
	if err != nil {
		return nil, err
	}
	partitionValues, err := row.GetMap("partitionValues")
	if err != nil {
		return nil, err
	}
	deletionTimestamp, err := row.GetLong("deletionTimestamp")
	if err != nil {
		return nil, err
	}
	dataChange, err := row.GetBoolean("dataChange")
	if err != nil {
		return nil, err
	}

	var dv *DeletionVectorEntry
	if withDeletionVector {
		dvRow, err := row.GetRow("deletionVector")
		if err != nil {
			return nil, err
		}
		if dvRow != nil {
			dv, err = decodeDeletionVector(dvRow)
			if err != nil {
				return nil, err
			}
		}
	}

	return &LogEntry{Kind: ActionRemove, Remove: &RemoveFileEntry{
		Path:              path,
		PartitionValues:   partitionValues,
		DeletionTimestamp: deletionTimestamp,
		DataChange:        dataChange,
		DeletionVector:    dv,
	}}, nil
}

func extractSidecar(rt fieldreader.Type, pos int, block Block) (*LogEntry, error) {
	if block.IsNull(pos) {
		return nil, nil
	}
	row := fieldreader.NewRow(rt, block.RowAt(pos))
	if n := row.NumFields(); n != 4 {
		return nil, &SchemaViolationError{Detail: fmt.Sprintf("sidecar row has %d fields, want 4", n)}
	}

	path, err := row.GetString("path")
	if err != nil {
		return nil, err
	}
	sizeInBytes, err := row.GetLong("sizeInBytes")
	if err != nil {
		return nil, err
	}
	modificationTime, err := row.GetLong("modificationTime")
	if err != nil {
		return nil, err
	}
	tags, err := row.GetOptionalMap("tags")
	if err != nil {
		return nil, err
	}

	return &LogEntry{Kind: ActionSidecar, Sidecar: &SidecarEntry{
		Path:             path,
		SizeInBytes:      sizeInBytes,
		ModificationTime: modificationTime,
		Tags:             tags,
	}}, nil
}

// addScratch carries per-scan state across consecutive add rows:
// the last partition tuple's fingerprint and constraint verdict, and the
// last raw stats blob, interned so runs of rows sharing a byte-identical
// blob share one string. Checkpoints are commonly sorted by partition and
// rewritten in bulk by compaction, so both hits are frequent in practice.
type addScratch struct {
	partitionValid bool
	partitionHash  uint64
	partitionAllow bool

	statsHash uint64
	stats     *string
}

func extractAdd(rt fieldreader.Type, pos int, block Block, cfg Config, scratch *addScratch) (*LogEntry, error) {
	if block.IsNull(pos) {
		return nil, nil
	}
	row := fieldreader.NewRow(rt, block.RowAt(pos))

	partitionValues, err := row.GetMap("partitionValues")
	if err != nil {
		return nil, err
	}
	canonical := canonicalizePartitionValues(partitionValues)

	if !cfg.Options.PartitionConstraint.IsTrivial() {
		var allow bool
		h := partitionKeyHash(partitionValues)
		if scratch != nil && scratch.partitionValid && scratch.partitionHash == h {
			allow = scratch.partitionAllow
		} else {
			allow = cfg.Options.PartitionConstraint.Allows(canonical)
			if scratch != nil {
				scratch.partitionValid = true
				scratch.partitionHash = h
				scratch.partitionAllow = allow
			}
		}
		if !allow {
			cfg.Options.Metrics.observePruned()
			return nil, nil
		}
	}

	path, err := row.GetString("path")
	if err != nil {
		return nil, err
	}
	size, err := row.GetLong("size")
	if err != nil {
		return nil, err
	}
	modificationTime, err := row.GetLong("modificationTime")
	if err != nil {
		return nil, err
	}
	dataChange, err := row.GetBoolean("dataChange")
	if err != nil {
		return nil, err
	}
	tags, err := row.GetMap("tags")
	if err != nil {
		return nil, err
	}

	var dv *DeletionVectorEntry
	if cfg.Options.DeletionVectorsEnabled {
		dvRow, err := row.GetRow("deletionVector")
		if err != nil {
			return nil, err
		}
		if dvRow != nil {
			dv, err = decodeDeletionVector(dvRow)
			if err != nil {
				return nil, err
			}
		}
	}

	var parsedStats *ParsedStats
	var rawStats *string
	if _, ok := rt.FieldByName("stats_parsed"); ok {
		statsRow, err := row.GetRow("stats_parsed")
		if err != nil {
			return nil, err
		}
		if statsRow != nil {
			columns, err := cfg.SchemaManager.TableColumns(cfg.Metadata)
			if err != nil {
				return nil, err
			}
			parsedStats, err = DecodeParsedStats(statsRow, columns, cfg.Options.StatsColumnFilter, StatsOptions{
				CutoffEpochDay:       cfg.Options.ModernEraCutoffEpochDay,
				RowStatsWriteThrough: cfg.Options.RowStatsWriteThrough,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if parsedStats == nil {
		rawStats, err = row.GetOptionalString("stats")
		if err != nil {
			return nil, err
		}
		if rawStats != nil && scratch != nil {
			h := statsHash(*rawStats)
			if scratch.stats != nil && scratch.statsHash == h && *scratch.stats == *rawStats {
				rawStats = scratch.stats
			} else {
				scratch.statsHash = h
				scratch.stats = rawStats
			}
		}
	}

	return &LogEntry{Kind: ActionAdd, Add: &AddFileEntry{
		Path:                     path,
		PartitionValues:          partitionValues,
		CanonicalPartitionValues: canonical,
		Size:                     size,
		ModificationTime:         modificationTime,
		DataChange:               dataChange,
		Stats:                    rawStats,
		ParsedStats:              parsedStats,
		Tags:                     tags,
		DeletionVector:           dv,
	}}, nil
}
