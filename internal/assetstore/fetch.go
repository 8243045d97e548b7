package assetstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"assetflow/internal/asset"
	"assetflow/internal/logging"
	"assetflow/internal/services"
)

type remoteProbe struct {
	src   asset.Source
	size  uint64
	sized bool
	etag  string
	fresh bool
}

// FetchRemote downloads entries whose remote ETag or size differs from the
// manifest. It probes every source with HEAD, checks free space, calls
// confirm once with the known total whenever any entry is stale, even when
// the server reports no sizes, then streams each GET into the store with
// retries.
func (s *Store) FetchRemote(ctx context.Context, sources []asset.Source, confirm asset.ConfirmFunc, progress asset.ProgressFunc) error {
	probes := make([]remoteProbe, 0, len(sources))
	var (
		total uint64
		stale int
	)
	for _, src := range sources {
		probe, err := s.probe(ctx, src)
		if err != nil {
			return err
		}
		if !probe.fresh {
			total += probe.size
			stale++
		}
		probes = append(probes, probe)
	}

	if stale > 0 {
		if err := s.ensureFreeSpace(total); err != nil {
			return err
		}
		if confirm != nil {
			if err := confirm(ctx, total); err != nil {
				return err
			}
		}
	}

	ticker := newProgressTicker(progress, s.tick, total, len(probes))
	for i, probe := range probes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if probe.fresh {
			ticker.skip(probe.src.Name, i+1, 0)
			continue
		}
		ticker.begin(probe.src.Name, i+1, probe.size)
		if err := s.fetchWithRetry(ctx, probe, ticker); err != nil {
			return err
		}
		ticker.finish()
	}
	return nil
}

func (s *Store) probe(ctx context.Context, src asset.Source) (remoteProbe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, src.Location, nil)
	if err != nil {
		return remoteProbe{}, services.Wrap(services.ErrValidation, "download", "build request", src.Location, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return remoteProbe{}, services.Wrap(services.ErrNetwork, "download", "probe", src.Location, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return remoteProbe{}, services.Wrap(services.ErrNetwork, "download", "probe", fmt.Sprintf("%s returned %s", src.Location, resp.Status), nil)
	}

	probe := remoteProbe{src: src, etag: strings.Trim(resp.Header.Get("ETag"), `"`)}
	if length, err := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		probe.size = length
		probe.sized = true
	}
	existing, ok, err := s.manifest.entry(ctx, normalizeName(src.Name))
	if err != nil {
		return remoteProbe{}, services.Wrap(services.ErrLocalIO, "download", "lookup", src.Name, err)
	}
	switch {
	case !ok:
	case probe.sized && uint64(existing.Size) == probe.size:
		probe.fresh = probe.etag == "" || existing.ETag == probe.etag
	case !probe.sized && probe.etag != "":
		probe.fresh = existing.ETag == probe.etag
	}
	return probe, nil
}

func (s *Store) ensureFreeSpace(needed uint64) error {
	_, free, err := s.statfs(s.root)
	if err != nil {
		s.logger.Warn("free space probe failed", logging.Error(err))
		return nil
	}
	if free < needed+s.minFree {
		return services.Wrap(services.ErrLocalIO, "download", "preflight",
			fmt.Sprintf("need %d bytes plus %d reserve, %d available", needed, s.minFree, free), nil)
	}
	return nil
}

func (s *Store) fetchWithRetry(ctx context.Context, probe remoteProbe, ticker *progressTicker) error {
	delay := s.backoff
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "retrying download", "download_retry",
				logging.String("asset", probe.src.Name),
				logging.Int("attempt", attempt),
				logging.Error(lastErr),
				logging.String(logging.FieldImpact, "transfer restarts from the beginning"),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			ticker.restart()
		}
		lastErr = s.fetchOnce(ctx, probe, ticker)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			break
		}
	}
	return services.Wrap(services.ErrNetwork, "download", "get", probe.src.Location, lastErr)
}

type permanentError struct{ status string }

func (e *permanentError) Error() string { return "server returned " + e.status }

func (s *Store) fetchOnce(ctx context.Context, probe remoteProbe, ticker *progressTicker) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.src.Location, nil)
	if err != nil {
		return &permanentError{status: err.Error()}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("server returned %s", resp.Status)
	case resp.StatusCode >= 300:
		return &permanentError{status: resp.Status}
	}
	etag := strings.Trim(resp.Header.Get("ETag"), `"`)
	if etag == "" {
		etag = probe.etag
	}
	_, err = s.ingest(ctx, normalizeName(probe.src.Name), CodecZstd, etag, probe.src.Location, resp.Body, ticker.add)
	return err
}
