package asset

import (
	"path"
	"strings"
)

// Path identifies one requested asset. It is a value type and never mutated
// after construction.
type Path struct {
	Value       string
	LocalPrefix string
	RemoteBase  string
}

// NewPath returns a Path with no local prefix or remote base.
func NewPath(value string) Path {
	return Path{Value: value}
}

// WithLocalPrefix returns a copy of p resolved against prefix.
func (p Path) WithLocalPrefix(prefix string) Path {
	p.LocalPrefix = prefix
	return p
}

// WithRemoteBase returns a copy of p resolved against base.
func (p Path) WithRemoteBase(base string) Path {
	p.RemoteBase = base
	return p
}

// FilePath returns LocalPrefix/Value, or Value when no prefix is set.
func (p Path) FilePath() string {
	if p.LocalPrefix == "" {
		return p.Value
	}
	return strings.TrimRight(p.LocalPrefix, "/\\") + "/" + strings.TrimLeft(p.Value, "/\\")
}

// URL returns Value with separators normalized to forward slashes, prefixed
// by RemoteBase when set.
func (p Path) URL() string {
	normalized := strings.TrimLeft(strings.ReplaceAll(p.Value, "\\", "/"), "/")
	if p.RemoteBase == "" {
		return normalized
	}
	return strings.TrimRight(p.RemoteBase, "/") + "/" + normalized
}

// Folder returns the directory portion of Value, or "" for top-level assets.
func (p Path) Folder() string {
	dir := path.Dir(strings.ReplaceAll(p.Value, "\\", "/"))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Name returns the normalized key an asset is stored under.
func (p Path) Name() string {
	return strings.TrimLeft(strings.ReplaceAll(p.Value, "\\", "/"), "/")
}

func (p Path) String() string {
	return p.Value
}

// Source is one resolved location handed to a store: a local file path for
// materialization or a URL for fetching.
type Source struct {
	Name     string
	Location string
	Folder   string
}

// LocalSources resolves paths for materialization. Paths without their own
// LocalPrefix are resolved against root.
func LocalSources(paths []Path, root string) []Source {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		resolved := p
		if resolved.LocalPrefix == "" && root != "" {
			resolved = p.WithLocalPrefix(root)
		}
		sources = append(sources, Source{Name: p.Name(), Location: resolved.FilePath(), Folder: p.Folder()})
	}
	return sources
}

// RemoteSources resolves paths against base for fetching.
func RemoteSources(paths []Path, base string) []Source {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, Source{Name: p.Name(), Location: p.WithRemoteBase(base).URL(), Folder: p.Folder()})
	}
	return sources
}
