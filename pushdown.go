package deltacheckpoint

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/slices"

	"github.com/polarsignals/deltacheckpoint/internal/fieldreader"
)

// requiredField names, per action kind, the sub-field the Delta
// protocol guarantees is populated whenever that action is present.
var requiredField = map[ActionKind]string{
	ActionTxn:      "version",
	ActionAdd:      "path",
	ActionRemove:   "path",
	ActionSidecar:  "path",
	ActionMetadata: "id",
	ActionProtocol: "minReaderVersion",
}

// PartitionConstraint restricts add entries to those whose partition
// values satisfy, for every named column, membership in that column's
// allowed value set. A column absent from the constraint is
// unrestricted.
type PartitionConstraint map[string]map[string]struct{}

// IsTrivial reports whether the constraint restricts nothing.
func (c PartitionConstraint) IsTrivial() bool { return len(c) == 0 }

// Allows reports whether a row's canonical partition values satisfy
// the constraint.
func (c PartitionConstraint) Allows(values map[string]*string) bool {
	for col, domain := range c {
		v, ok := values[col]
		if !ok || v == nil {
			return false
		}
		if _, ok := domain[*v]; !ok {
			return false
		}
	}
	return true
}

// sortedColumns returns the constraint's column names in a stable
// order, for deterministic domain construction (mirrors the way
// query/logicalplan sorts expressions before rendering a stable plan
// string).
func (c PartitionConstraint) sortedColumns() []string {
	cols := make([]string, 0, len(c))
	for col := range c {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	return cols
}

// DefaultDomainCompactionThreshold bounds how many discrete values a
// single partition column's pushed-down domain may enumerate. A column
// whose allowed-value set exceeds the threshold is left out of the
// Parquet predicate entirely and enforced row-level only, keeping the
// serialized predicate small; compaction can only widen the file-level
// filter, never narrow it, so pruning stays sound.
const DefaultDomainCompactionThreshold = 100

func (c PartitionConstraint) partitionDomains(threshold int) []PartitionColumnDomain {
	cols := c.sortedColumns()
	out := make([]PartitionColumnDomain, 0, len(cols))
	for _, col := range cols {
		if len(c[col]) > threshold {
			continue
		}
		out = append(out, PartitionColumnDomain{Column: col, Values: c[col]})
	}
	return out
}

// canonicalizePartitionValues applies Delta's canonicalization rule:
// an empty string partition value canonicalizes to absent (SQL NULL),
// matching the raw and canonical representations Delta itself treats
// as equivalent.
func canonicalizePartitionValues(raw map[string]string) map[string]*string {
	out := make(map[string]*string, len(raw))
	for k, v := range raw {
		if v == "" {
			out[k] = nil
			continue
		}
		val := v
		out[k] = &val
	}
	return out
}

// partitionKeyHash memoizes a quick, order-independent fingerprint of a
// canonical partition-value tuple, so the iterator can skip
// re-evaluating the constraint for consecutive add rows that share
// identical partition values (common when a checkpoint is sorted by
// partition).
func partitionKeyHash(values map[string]string) uint64 {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := xxhash.New()
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(values[k])
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// plan is the pushdown planner's output: the projected channel order
// (matching the caller's requested-kind order, since that order also
// governs emission within a row), the per-kind row types, and the
// disjunction of predicate domains to hand to the page source.
type plan struct {
	kinds    []ActionKind
	rowTypes map[ActionKind]fieldreader.Type
	domains  []Domain
}

func planPushdown(cfg Config) (*plan, error) {
	withAdd := containsKind(cfg.Kinds, ActionAdd)
	withDV := cfg.Options.DeletionVectorsEnabled
	withParsedStats := cfg.Options.StatsParsedEnabled
	withReaderFeatures := cfg.Options.ReaderFeaturesEnabled
	withWriterFeatures := cfg.Options.WriterFeaturesEnabled

	rowTypes := make(map[ActionKind]fieldreader.Type, len(cfg.Kinds))
	for _, k := range cfg.Kinds {
		switch k {
		case ActionTxn:
			rowTypes[k] = cfg.SchemaManager.TxnEntryType()
		case ActionAdd:
			rt, err := cfg.SchemaManager.AddEntryType(
				cfg.Metadata, cfg.Protocol, cfg.Options.StatsColumnFilter,
				withParsedStats, withDV, cfg.Options.RowStatsWriteThrough,
			)
			if err != nil {
				return nil, err
			}
			rowTypes[k] = rt
		case ActionRemove:
			rowTypes[k] = cfg.SchemaManager.RemoveEntryType(withDV)
		case ActionMetadata:
			rowTypes[k] = cfg.SchemaManager.MetadataEntryType()
		case ActionProtocol:
			rowTypes[k] = cfg.SchemaManager.ProtocolEntryType(withReaderFeatures, withWriterFeatures)
		case ActionSidecar:
			rowTypes[k] = cfg.SchemaManager.SidecarEntryType()
		}
	}

	sortedKinds := append([]ActionKind(nil), cfg.Kinds...)
	slices.Sort(sortedKinds)
	sortedKinds = slices.Compact(sortedKinds)

	threshold := cfg.Options.DomainCompactionThreshold
	if threshold <= 0 {
		threshold = DefaultDomainCompactionThreshold
	}

	domains := make([]Domain, 0, len(sortedKinds))
	for _, k := range sortedKinds {
		d := Domain{Kind: k, Column: requiredField[k], NotNull: true}
		if k == ActionAdd && withAdd && !cfg.Options.PartitionConstraint.IsTrivial() {
			d.Partition = cfg.Options.PartitionConstraint.partitionDomains(threshold)
		}
		domains = append(domains, d)
	}

	return &plan{kinds: cfg.Kinds, rowTypes: rowTypes, domains: domains}, nil
}

func containsKind(kinds []ActionKind, k ActionKind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}
