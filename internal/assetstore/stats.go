package assetstore

import (
	"context"
	"fmt"

	"assetflow/internal/services"
	"assetflow/internal/stage"
)

// Stats summarizes the store's contents.
type Stats struct {
	Entries     int
	Bytes       int64
	StoredBytes int64
	Runtime     int
	Artifacts   int
	Folders     int
	FreeBytes   uint64
	TotalBytes  uint64
}

// Entries returns every manifest entry ordered by name.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	entries, err := s.manifest.entries(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrLocalIO, "store", "list entries", "", err)
	}
	return entries, nil
}

// Stats aggregates manifest counts and volume space.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	st.Entries = len(entries)
	for _, e := range entries {
		st.Bytes += e.Size
		st.StoredBytes += e.StoredSize
		if e.Codec == s.runtimeCodec || e.Codec == CodecNone {
			st.Runtime++
		}
	}
	if st.Artifacts, st.Folders, err = s.manifest.counts(ctx); err != nil {
		return Stats{}, services.Wrap(services.ErrLocalIO, "store", "stats", "", err)
	}
	if total, free, err := s.statfs(s.root); err == nil {
		st.TotalBytes, st.FreeBytes = total, free
	}
	return st, nil
}

// HealthCheck reports whether the manifest is readable and the volume keeps
// its free-space floor.
func (s *Store) HealthCheck(ctx context.Context) stage.Health {
	const name = "assetstore"
	if _, _, err := s.manifest.counts(ctx); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("manifest unavailable: %v", err))
	}
	if _, free, err := s.statfs(s.root); err == nil && free < s.minFree {
		return stage.Unhealthy(name, fmt.Sprintf("free space %d below floor %d", free, s.minFree))
	}
	return stage.Healthy(name)
}
