package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/spf13/cobra"
	"github.com/thanos-io/objstore/providers/filesystem"

	deltacheckpoint "github.com/polarsignals/deltacheckpoint"
	"github.com/polarsignals/deltacheckpoint/deltaschema"
	"github.com/polarsignals/deltacheckpoint/parquetsource"
)

func newStatCmd(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Summarize a checkpoint file's action counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStat(cmd.Context(), logger, args[0])
		},
	}
}

func runStat(ctx context.Context, logger log.Logger, path string) error {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	bucket, err := filesystem.NewBucket(dir)
	if err != nil {
		return err
	}
	defer bucket.Close()

	schemaMgr := deltaschema.New()
	factory := parquetsource.Factory(bucket)

	allKinds := []deltacheckpoint.ActionKind{
		deltacheckpoint.ActionTxn, deltacheckpoint.ActionAdd, deltacheckpoint.ActionRemove,
		deltacheckpoint.ActionMetadata, deltacheckpoint.ActionProtocol, deltacheckpoint.ActionSidecar,
	}

	metadata, protocol, err := scanHeader(ctx, name, schemaMgr, factory, logger)
	if err != nil {
		return err
	}

	cfg := deltacheckpoint.Config{
		File:          deltacheckpoint.FileHandle{Path: name},
		Session:       deltacheckpoint.NewSessionContext(),
		SchemaManager: schemaMgr,
		Kinds:         allKinds,
		Metadata:      metadata,
		Protocol:      protocol,
		Options: deltacheckpoint.Options{
			Logger:                 logger,
			ReaderFeaturesEnabled:  true,
			WriterFeaturesEnabled:  true,
			DeletionVectorsEnabled: true,
		},
	}

	it, err := deltacheckpoint.Open(ctx, cfg, factory)
	if err != nil {
		return err
	}
	defer it.Close()

	counts := map[deltacheckpoint.ActionKind]int{}
	for {
		entry, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		counts[entry.Kind]++
	}

	fmt.Printf("positions read: %s\n", humanize.Comma(it.GetCompletedPositions()))
	for _, k := range allKinds {
		fmt.Printf("%-9s %s\n", k.String(), humanize.Comma(int64(counts[k])))
	}
	return nil
}
