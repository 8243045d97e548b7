package assetstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/zeebo/blake3"

	"assetflow/internal/asset"
	"assetflow/internal/logging"
	"assetflow/internal/services"
)

// Verify re-hashes every entry. Entries whose blob is missing, undecodable
// or mismatched are dropped from the manifest so the next load restores
// them; that is not treated as a failure.
func (s *Store) Verify(ctx context.Context, report asset.VerifyFunc) error {
	entries, err := s.manifest.entries(ctx)
	if err != nil {
		return services.Wrap(services.ErrLocalIO, "verify", "list entries", "", err)
	}
	logger := logging.WithContext(ctx, s.logger)
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if report != nil {
			report(e.Name, i+1, len(entries))
		}
		reason := s.checkEntry(ctx, e)
		if reason == nil {
			continue
		}
		if errors.Is(reason, context.Canceled) || errors.Is(reason, context.DeadlineExceeded) {
			return reason
		}
		logging.WarnWithContext(logger, "corrupt entry dropped", "verify_corrupt",
			logging.String("asset", e.Name),
			logging.Error(reason),
			logging.String(logging.FieldImpact, "entry will be restored on the next load"),
		)
		if err := s.drop(ctx, e.Name); err != nil {
			return services.Wrap(services.ErrLocalIO, "verify", "drop entry", e.Name, err)
		}
	}
	return nil
}

func (s *Store) checkEntry(ctx context.Context, e Entry) error {
	r, err := s.openDecoded(e)
	if err != nil {
		return err
	}
	defer r.Close()
	hasher := blake3.New()
	n, err := io.Copy(hasher, &contextReader{ctx: ctx, r: r})
	if err != nil {
		return err
	}
	if n != e.Size {
		return fmt.Errorf("decoded %d bytes, manifest records %d", n, e.Size)
	}
	if sum := hex.EncodeToString(hasher.Sum(nil)); sum != e.Hash {
		return fmt.Errorf("hash mismatch: %s != %s", sum, e.Hash)
	}
	return nil
}

func (s *Store) drop(ctx context.Context, name string) error {
	path, err := s.blobPath(name)
	if err != nil {
		return err
	}
	return s.withWriteLock(ctx, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return s.manifest.deleteEntry(ctx, name)
	})
}

// Recompress rewrites every entry not yet in the runtime codec.
func (s *Store) Recompress(ctx context.Context, progress asset.ProgressFunc) error {
	entries, err := s.manifest.entries(ctx)
	if err != nil {
		return services.Wrap(services.ErrLocalIO, "recompress", "list entries", "", err)
	}
	pending := make([]Entry, 0, len(entries))
	var total uint64
	for _, e := range entries {
		if e.Codec == s.runtimeCodec {
			continue
		}
		pending = append(pending, e)
		total += uint64(e.Size)
	}

	ticker := newProgressTicker(progress, s.tick, total, len(pending))
	for i, e := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		ticker.begin(e.Name, i+1, uint64(e.Size))
		if err := s.recompressOne(ctx, e, ticker); err != nil {
			return err
		}
		ticker.finish()
	}
	return nil
}

func (s *Store) recompressOne(ctx context.Context, e Entry, ticker *progressTicker) error {
	r, err := s.openDecoded(e)
	if err != nil {
		return services.Wrap(services.ErrLocalIO, "recompress", "open", e.Name, err)
	}
	defer r.Close()
	updated, err := s.ingest(ctx, e.Name, s.runtimeCodec, e.ETag, e.Source, r, ticker.add)
	if err != nil {
		return services.Wrap(services.ErrLocalIO, "recompress", "encode", e.Name, err)
	}
	if updated.Hash != e.Hash {
		return services.Wrap(services.ErrLocalIO, "recompress", "check", e.Name+": content changed during recompress", nil)
	}
	return nil
}
