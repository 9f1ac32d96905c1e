package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/spf13/cobra"
	"github.com/thanos-io/objstore/providers/filesystem"

	deltacheckpoint "github.com/polarsignals/deltacheckpoint"
	"github.com/polarsignals/deltacheckpoint/deltaschema"
	"github.com/polarsignals/deltacheckpoint/parquetsource"
)

func newReadCmd(logger log.Logger) *cobra.Command {
	var kindsFlag string
	var withDeletionVectors bool
	var withParsedStats bool

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Print the log entries in a checkpoint file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(kindsFlag)
			if err != nil {
				return err
			}
			return runRead(cmd.Context(), logger, args[0], kinds, withDeletionVectors, withParsedStats)
		},
	}

	cmd.Flags().StringVar(&kindsFlag, "kinds", "txn,add,remove,metadata,protocol,sidecar", "comma-separated action kinds to print")
	cmd.Flags().BoolVar(&withDeletionVectors, "deletion-vectors", true, "decode deletion vector sub-rows")
	cmd.Flags().BoolVar(&withParsedStats, "parsed-stats", true, "decode stats_parsed sub-rows")
	return cmd
}

func parseKinds(s string) ([]deltacheckpoint.ActionKind, error) {
	names := strings.Split(s, ",")
	out := make([]deltacheckpoint.ActionKind, 0, len(names))
	table := map[string]deltacheckpoint.ActionKind{
		"txn":      deltacheckpoint.ActionTxn,
		"add":      deltacheckpoint.ActionAdd,
		"remove":   deltacheckpoint.ActionRemove,
		"metadata": deltacheckpoint.ActionMetadata,
		"protocol": deltacheckpoint.ActionProtocol,
		"sidecar":  deltacheckpoint.ActionSidecar,
	}
	for _, n := range names {
		n = strings.TrimSpace(n)
		k, ok := table[n]
		if !ok {
			return nil, fmt.Errorf("unknown action kind %q", n)
		}
		out = append(out, k)
	}
	return out, nil
}

func runRead(ctx context.Context, logger log.Logger, path string, kinds []deltacheckpoint.ActionKind, withDV, withStats bool) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	bucket, err := filesystem.NewBucket(dir)
	if err != nil {
		return fmt.Errorf("open directory %s: %w", dir, err)
	}
	defer bucket.Close()

	schemaMgr := deltaschema.New()
	factory := parquetsource.Factory(bucket)

	// The metadata and protocol actions must be known before an add
	// row's stats_parsed shape can be resolved, so this always takes a
	// preparatory pass over those two kinds first.
	metadata, protocol, err := scanHeader(ctx, name, schemaMgr, factory, logger)
	if err != nil {
		return err
	}

	cfg := deltacheckpoint.Config{
		File:          deltacheckpoint.FileHandle{Path: name},
		Session:       deltacheckpoint.NewSessionContext(),
		SchemaManager: schemaMgr,
		Kinds:         kinds,
		Metadata:      metadata,
		Protocol:      protocol,
		Options: deltacheckpoint.Options{
			Logger:                 logger,
			DeletionVectorsEnabled: withDV,
			StatsParsedEnabled:     withStats,
			ReaderFeaturesEnabled:  true,
			WriterFeaturesEnabled:  true,
		},
	}

	it, err := deltacheckpoint.Open(ctx, cfg, factory)
	if err != nil {
		return err
	}
	defer it.Close()

	count := 0
	for {
		entry, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		count++
		printEntry(entry)
	}
	fmt.Printf("%s entries\n", humanize.Comma(int64(count)))
	return nil
}

func scanHeader(ctx context.Context, name string, schemaMgr *deltaschema.Manager, factory deltacheckpoint.PageSourceFactory, logger log.Logger) (*deltacheckpoint.MetadataEntry, *deltacheckpoint.ProtocolEntry, error) {
	cfg := deltacheckpoint.Config{
		File:          deltacheckpoint.FileHandle{Path: name},
		Session:       deltacheckpoint.NewSessionContext(),
		SchemaManager: schemaMgr,
		Kinds:         []deltacheckpoint.ActionKind{deltacheckpoint.ActionMetadata, deltacheckpoint.ActionProtocol},
		Options: deltacheckpoint.Options{
			Logger:                logger,
			ReaderFeaturesEnabled: true,
			WriterFeaturesEnabled: true,
		},
	}

	it, err := deltacheckpoint.Open(ctx, cfg, factory)
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	var metadata *deltacheckpoint.MetadataEntry
	var protocol *deltacheckpoint.ProtocolEntry
	for {
		entry, err := it.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if entry == nil {
			break
		}
		switch entry.Kind {
		case deltacheckpoint.ActionMetadata:
			metadata = entry.Metadata
		case deltacheckpoint.ActionProtocol:
			protocol = entry.Protocol
		}
	}
	return metadata, protocol, nil
}

func printEntry(e *deltacheckpoint.LogEntry) {
	switch e.Kind {
	case deltacheckpoint.ActionTxn:
		fmt.Printf("txn appId=%s version=%d\n", e.Txn.AppID, e.Txn.Version)
	case deltacheckpoint.ActionAdd:
		fmt.Printf("add path=%s size=%s\n", e.Add.Path, humanize.Bytes(uint64(e.Add.Size)))
	case deltacheckpoint.ActionRemove:
		fmt.Printf("remove path=%s\n", e.Remove.Path)
	case deltacheckpoint.ActionMetadata:
		fmt.Printf("metadata id=%s name=%s\n", e.Metadata.ID, e.Metadata.Name)
	case deltacheckpoint.ActionProtocol:
		fmt.Printf("protocol minReader=%d minWriter=%d\n", e.Protocol.MinReaderVersion, e.Protocol.MinWriterVersion)
	case deltacheckpoint.ActionSidecar:
		fmt.Printf("sidecar path=%s\n", e.Sidecar.Path)
	}
}
