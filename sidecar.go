package deltacheckpoint

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SidecarHandle names one sidecar file a V2 checkpoint manifest row
// referred to, together with the size the manifest declared for it.
type SidecarHandle struct {
	File     FileHandle
	FileSize int64
}

// OpenSidecars opens one Iterator per sidecar concurrently, bounded by
// maxConcurrency. The fan-out happens at construction time only; each
// returned Iterator is still single-threaded. All sidecars share cfg
// except for File and FileSize, which are overridden per handle. On any single failure every already-opened
// Iterator is closed and the first error is returned; partial success
// is not exposed to the caller, since a V2 checkpoint's manifest and
// sidecars form one logical, all-or-nothing log.
func OpenSidecars(ctx context.Context, cfg Config, handles []SidecarHandle, factory PageSourceFactory, maxConcurrency int) ([]*Iterator, error) {
	if len(handles) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	iterators := make([]*Iterator, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			sidecarCfg := cfg
			sidecarCfg.File = h.File
			sidecarCfg.FileSize = h.FileSize

			it, err := Open(gctx, sidecarCfg, factory)
			if err != nil {
				return err
			}
			iterators[i] = it
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, it := range iterators {
			if it != nil {
				_ = it.Close()
			}
		}
		return nil, err
	}

	return iterators, nil
}
