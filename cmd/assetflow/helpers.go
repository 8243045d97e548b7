package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"assetflow/internal/asset"
	"assetflow/internal/assetstore"
	"assetflow/internal/config"
	"assetflow/internal/netclass"
	"assetflow/internal/stage"
)

// newHTTPClient bounds connection setup and response headers but not body
// transfer, which can legitimately take longer than request_timeout.
func newHTTPClient(cfg *config.Config) *http.Client {
	timeout := cfg.RequestTimeout()
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	return &http.Client{Transport: transport}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func isTerminalReader(reader io.Reader) bool {
	file, ok := reader.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// bundledPaths lists every regular file under root as a relative asset path.
func bundledPaths(root string) ([]asset.Path, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil
	}
	var paths []asset.Path
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, asset.NewPath(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Value < paths[j].Value })
	return paths, nil
}

func parsePaths(args []string) []asset.Path {
	paths := make([]asset.Path, 0, len(args))
	for _, arg := range args {
		if arg = strings.TrimSpace(arg); arg != "" {
			paths = append(paths, asset.NewPath(arg))
		}
	}
	return paths
}

func healthFunc(store *assetstore.Store, classifier netclass.Classifier) func(ctx context.Context) []stage.Health {
	return func(ctx context.Context) []stage.Health {
		health := []stage.Health{store.HealthCheck(ctx)}
		if classifier != nil {
			detail := "unmetered"
			if classifier.Metered() {
				detail = "metered"
			}
			health = append(health, stage.Healthy("netclass").WithDetail(detail))
		}
		return health
	}
}
