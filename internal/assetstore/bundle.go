package assetstore

import (
	"context"
	"io"

	"assetflow/internal/asset"
	"assetflow/internal/services"
)

type blobBundle struct {
	store *Store
	entry Entry
}

func (b *blobBundle) Name() string { return b.entry.Name }

func (b *blobBundle) Size() int64 { return b.entry.Size }

// Open returns the decoded payload.
func (b *blobBundle) Open() (io.ReadCloser, error) {
	return b.store.openDecoded(b.entry)
}

// Info reports the store's view of name.
func (s *Store) Info(ctx context.Context, name string) (asset.Info, error) {
	e, err := s.lookup(ctx, name)
	if err != nil {
		return asset.Info{}, err
	}
	return asset.Info{
		Name:    e.Name,
		Size:    e.Size,
		Codec:   e.Codec,
		Runtime: e.Codec == s.runtimeCodec || e.Codec == CodecNone,
	}, nil
}

// OpenBundle returns a handle for name. Handles are reference counted until
// CloseBundle.
func (s *Store) OpenBundle(ctx context.Context, name string) (asset.Bundle, error) {
	e, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	s.handleMu.Lock()
	s.open[e.Name]++
	s.handleMu.Unlock()
	return &blobBundle{store: s, entry: e}, nil
}

// CloseBundle releases a handle returned by OpenBundle.
func (s *Store) CloseBundle(bundle asset.Bundle) error {
	if bundle == nil {
		return nil
	}
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	name := bundle.Name()
	if s.open[name] <= 0 {
		return services.Wrap(services.ErrValidation, "store", "close bundle", name+" is not open", nil)
	}
	s.open[name]--
	if s.open[name] == 0 {
		delete(s.open, name)
	}
	return nil
}

// OpenBundles returns the number of handles currently open.
func (s *Store) OpenBundles() int {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	n := 0
	for _, count := range s.open {
		n += count
	}
	return n
}

// LoadSceneBundle reads the scene's bundle through once, reporting fractional
// progress, and keeps it resident until UnloadBundle.
func (s *Store) LoadSceneBundle(ctx context.Context, name string, progress func(float64)) (asset.Bundle, error) {
	s.handleMu.Lock()
	if loaded, ok := s.scenes[normalizeName(name)]; ok {
		s.handleMu.Unlock()
		if progress != nil {
			progress(1)
		}
		return loaded, nil
	}
	s.handleMu.Unlock()

	e, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	bundle := &blobBundle{store: s, entry: e}
	r, err := bundle.Open()
	if err != nil {
		return nil, services.Wrap(services.ErrBundleLoad, "scene", "open bundle", name, err)
	}
	defer r.Close()

	var read int64
	_, err = io.Copy(io.Discard, &contextReader{ctx: ctx, r: r, onBytes: func(n int) {
		read += int64(n)
		if progress != nil && e.Size > 0 {
			progress(min(float64(read)/float64(e.Size), 1))
		}
	}})
	if err != nil {
		return nil, services.Wrap(services.ErrBundleLoad, "scene", "read bundle", name, err)
	}
	if progress != nil {
		progress(1)
	}

	s.handleMu.Lock()
	s.scenes[e.Name] = bundle
	s.handleMu.Unlock()
	return bundle, nil
}

// UnloadBundle releases a scene bundle. Unloading a bundle that is not
// resident is a no-op.
func (s *Store) UnloadBundle(name string) error {
	s.handleMu.Lock()
	delete(s.scenes, normalizeName(name))
	s.handleMu.Unlock()
	return nil
}

// LoadedScenes returns the names of resident scene bundles.
func (s *Store) LoadedScenes() []string {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	names := make([]string, 0, len(s.scenes))
	for name := range s.scenes {
		names = append(names, name)
	}
	return names
}
