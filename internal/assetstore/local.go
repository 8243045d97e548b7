package assetstore

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"assetflow/internal/asset"
	"assetflow/internal/logging"
	"assetflow/internal/services"
)

// RegisterFolder records a folder that groups entries and prepares its blob
// directory.
func (s *Store) RegisterFolder(ctx context.Context, folder string) error {
	folder = normalizeName(folder)
	dir, err := s.blobPath(folder)
	if err != nil {
		return err
	}
	return s.withWriteLock(ctx, func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrLocalIO, "unzip", "register folder", folder, err)
		}
		return s.manifest.putFolder(ctx, folder)
	})
}

// MaterializeLocal ingests bundled files that have no entry yet. Missing
// source files are skipped; entries that already exist are left untouched
// so fetched updates are never replaced by older bundled copies.
func (s *Store) MaterializeLocal(ctx context.Context, sources []asset.Source, progress asset.ProgressFunc) error {
	type job struct {
		src  asset.Source
		size uint64
		skip bool
	}
	jobs := make([]job, 0, len(sources))
	var total uint64
	for _, src := range sources {
		info, err := os.Stat(src.Location)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("bundled asset missing; skipped", logging.String("asset", src.Name), logging.String("path", src.Location))
			continue
		}
		if err != nil {
			return services.Wrap(services.ErrLocalIO, "unzip", "stat", src.Location, err)
		}
		if info.IsDir() {
			continue
		}
		_, exists, err := s.manifest.entry(ctx, normalizeName(src.Name))
		if err != nil {
			return services.Wrap(services.ErrLocalIO, "unzip", "lookup", src.Name, err)
		}
		size := uint64(info.Size())
		total += size
		jobs = append(jobs, job{src: src, size: size, skip: exists})
	}

	ticker := newProgressTicker(progress, s.tick, total, len(jobs))
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if j.skip {
			ticker.skip(j.src.Name, i+1, j.size)
			continue
		}
		ticker.begin(j.src.Name, i+1, j.size)
		if err := s.materializeOne(ctx, j.src, ticker); err != nil {
			return err
		}
		ticker.finish()
	}
	return nil
}

func (s *Store) materializeOne(ctx context.Context, src asset.Source, ticker *progressTicker) error {
	file, err := os.Open(src.Location)
	if err != nil {
		return services.Wrap(services.ErrLocalIO, "unzip", "open", src.Location, err)
	}
	defer file.Close()
	if _, err := s.ingest(ctx, normalizeName(src.Name), CodecZstd, "", src.Location, file, ticker.add); err != nil {
		return services.Wrap(services.ErrLocalIO, "unzip", "ingest", src.Name, err)
	}
	return nil
}
