package assetstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"assetflow/internal/pipeline"
	"assetflow/internal/services"
)

// WriteCachedArtifact runs produce and stores its output under name.
// Artifacts are write-once: when name already exists the producer is not
// called.
func (s *Store) WriteCachedArtifact(ctx context.Context, name string, produce pipeline.Producer) error {
	if produce == nil {
		return services.Wrap(services.ErrValidation, "post_steps", "write artifact", "producer is nil", nil)
	}
	name = normalizeName(name)
	path, err := s.artifactPath(name)
	if err != nil {
		return err
	}
	exists, err := s.HasCachedArtifact(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	data, err := produce(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrLocalIO, "post_steps", "write artifact", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return services.Wrap(services.ErrLocalIO, "post_steps", "write artifact", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return services.Wrap(services.ErrLocalIO, "post_steps", "write artifact", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return services.Wrap(services.ErrLocalIO, "post_steps", "write artifact", name, err)
	}

	sum := blake3.Sum256(data)
	err = s.withWriteLock(ctx, func() error {
		if err := os.Rename(tmpName, path); err != nil {
			return fmt.Errorf("commit artifact: %w", err)
		}
		return s.manifest.putArtifact(ctx, name, int64(len(data)), hex.EncodeToString(sum[:]))
	})
	if err != nil {
		_ = os.Remove(tmpName)
		return services.Wrap(services.ErrLocalIO, "post_steps", "write artifact", name, err)
	}
	return nil
}

// HasCachedArtifact reports whether name was written and is still on disk.
// A recorded artifact whose file has vanished is forgotten.
func (s *Store) HasCachedArtifact(ctx context.Context, name string) (bool, error) {
	name = normalizeName(name)
	path, err := s.artifactPath(name)
	if err != nil {
		return false, err
	}
	recorded, err := s.manifest.hasArtifact(ctx, name)
	if err != nil {
		return false, services.Wrap(services.ErrLocalIO, "post_steps", "check artifact", name, err)
	}
	if !recorded {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, services.Wrap(services.ErrLocalIO, "post_steps", "check artifact", name, err)
		}
		if err := s.manifest.deleteArtifact(ctx, name); err != nil {
			return false, services.Wrap(services.ErrLocalIO, "post_steps", "check artifact", name, err)
		}
		return false, nil
	}
	return true, nil
}

// ReadCachedArtifact returns the stored bytes of name.
func (s *Store) ReadCachedArtifact(name string) ([]byte, error) {
	path, err := s.artifactPath(normalizeName(name))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "store", "read artifact", name, nil)
		}
		return nil, services.Wrap(services.ErrLocalIO, "store", "read artifact", name, err)
	}
	return data, nil
}
