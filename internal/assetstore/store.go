package assetstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/blake3"

	"assetflow/internal/logging"
	"assetflow/internal/services"
)

const (
	manifestFile  = "manifest.db"
	lockFile      = ".lock"
	blobsDir      = "blobs"
	artifactsDir  = "artifacts"
	defaultTick   = 256 * 1024
	lockRetry     = 50 * time.Millisecond
	defaultClient = 60 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient replaces the client used by FetchRemote.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

// WithRetries sets how many times a failed GET is retried.
func WithRetries(retries int, backoff time.Duration) Option {
	return func(s *Store) {
		if retries >= 0 {
			s.retries = retries
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// WithRuntimeCodec sets the codec Recompress converts entries to.
func WithRuntimeCodec(codec string) Option {
	return func(s *Store) {
		if validCodec(codec) {
			s.runtimeCodec = codec
		}
	}
}

// WithMinFreeBytes sets the free-space floor FetchRemote keeps on the volume.
func WithMinFreeBytes(bytes uint64) Option {
	return func(s *Store) { s.minFree = bytes }
}

// WithTickSize sets how many bytes pass between progress samples.
func WithTickSize(bytes uint64) Option {
	return func(s *Store) {
		if bytes > 0 {
			s.tick = bytes
		}
	}
}

// WithStatfs replaces the free-space probe.
func WithStatfs(fn StatfsFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.statfs = fn
		}
	}
}

// Store is a directory-backed asset cache. It is safe for concurrent use;
// mutations are serialized in-process by a mutex and across processes by a
// file lock.
type Store struct {
	root         string
	manifest     *manifest
	lock         *flock.Flock
	logger       *slog.Logger
	client       *http.Client
	retries      int
	backoff      time.Duration
	runtimeCodec string
	minFree      uint64
	tick         uint64
	statfs       StatfsFunc

	writeMu sync.Mutex

	handleMu sync.Mutex
	open     map[string]int
	scenes   map[string]*blobBundle
}

// Open creates or opens the store rooted at root.
func Open(ctx context.Context, root string, opts ...Option) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "store root is empty", nil)
	}
	for _, dir := range []string{root, filepath.Join(root, blobsDir), filepath.Join(root, artifactsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrLocalIO, "store", "open", "create store directory", err)
		}
	}
	m, err := openManifest(ctx, filepath.Join(root, manifestFile))
	if err != nil {
		return nil, services.Wrap(services.ErrLocalIO, "store", "open", "open manifest", err)
	}
	s := &Store{
		root:         root,
		manifest:     m,
		lock:         flock.New(filepath.Join(root, lockFile)),
		logger:       logging.NewNop(),
		client:       &http.Client{Timeout: defaultClient},
		retries:      3,
		backoff:      500 * time.Millisecond,
		runtimeCodec: CodecLZ4,
		tick:         defaultTick,
		statfs:       realStatfs,
		open:         make(map[string]int),
		scenes:       make(map[string]*blobBundle),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "assetstore")
	return s, nil
}

// Close releases the manifest.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.manifest.close()
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// RuntimeCodec returns the codec entries are normalized to.
func (s *Store) RuntimeCodec() string { return s.runtimeCodec }

// withWriteLock serializes a mutation against other goroutines and other
// processes sharing the store directory.
func (s *Store) withWriteLock(ctx context.Context, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrLocalIO, "store", "lock", "acquire store lock", err)
	}
	if !locked {
		return services.Wrap(services.ErrLocalIO, "store", "lock", "store lock unavailable", nil)
	}
	defer func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.logger.Warn("store unlock failed", logging.Error(unlockErr))
		}
	}()
	return fn()
}

func (s *Store) blobPath(name string) (string, error) {
	return s.safeJoin(blobsDir, name)
}

func (s *Store) artifactPath(name string) (string, error) {
	return s.safeJoin(artifactsDir, name)
}

func (s *Store) safeJoin(dir, name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/"))
	if clean == "" || !filepath.IsLocal(clean) {
		return "", services.Wrap(services.ErrValidation, "store", "resolve path", fmt.Sprintf("invalid asset name %q", name), nil)
	}
	return filepath.Join(s.root, dir, clean), nil
}

// ingest encodes r into the blob for name and records the entry. The BLAKE3
// hash covers the decoded bytes.
func (s *Store) ingest(ctx context.Context, name, codec, etag, source string, r io.Reader, onBytes func(int)) (Entry, error) {
	path, err := s.blobPath(name)
	if err != nil {
		return Entry{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Entry{}, fmt.Errorf("create blob directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ingest-*")
	if err != nil {
		return Entry{}, fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	enc, err := newEncoder(codec, tmp)
	if err != nil {
		return Entry{}, err
	}
	hasher := blake3.New()
	written, err := io.Copy(io.MultiWriter(enc, hasher), &contextReader{ctx: ctx, r: r, onBytes: onBytes})
	if err != nil {
		_ = enc.Close()
		return Entry{}, err
	}
	if err := enc.Close(); err != nil {
		return Entry{}, fmt.Errorf("finish %s stream: %w", codec, err)
	}
	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("close temp blob: %w", err)
	}
	info, err := os.Stat(tmpName)
	if err != nil {
		return Entry{}, fmt.Errorf("stat temp blob: %w", err)
	}

	entry := Entry{
		Name:       name,
		Codec:      codec,
		Size:       written,
		StoredSize: info.Size(),
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		ETag:       etag,
		Source:     source,
		UpdatedAt:  time.Now(),
	}
	err = s.withWriteLock(ctx, func() error {
		if err := os.Rename(tmpName, path); err != nil {
			return fmt.Errorf("commit blob: %w", err)
		}
		committed = true
		return s.manifest.putEntry(ctx, entry)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// openDecoded opens an entry's blob and returns its decoded stream.
func (s *Store) openDecoded(e Entry) (io.ReadCloser, error) {
	path, err := s.blobPath(e.Name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoder(e.Codec, file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &stackedCloser{Reader: dec, closers: []io.Closer{dec, file}}, nil
}

func (s *Store) lookup(ctx context.Context, name string) (Entry, error) {
	e, ok, err := s.manifest.entry(ctx, normalizeName(name))
	if err != nil {
		return Entry{}, services.Wrap(services.ErrLocalIO, "store", "lookup", name, err)
	}
	if !ok {
		return Entry{}, services.Wrap(services.ErrNotFound, "store", "lookup", name, nil)
	}
	return e, nil
}

func normalizeName(name string) string {
	return strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
}

type contextReader struct {
	ctx     context.Context
	r       io.Reader
	onBytes func(int)
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if n > 0 && c.onBytes != nil {
		c.onBytes(n)
	}
	return n, err
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
