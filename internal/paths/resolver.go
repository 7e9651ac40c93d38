// Package paths locates the consolidated snapshot file relative to the page
// that requests it.
package paths

import (
	"path"
	"regexp"
	"strings"
)

// DefaultSnapshotFile is the consolidated snapshot file name.
const DefaultSnapshotFile = "consolidated_cache.json"

// Resolver produces the absolute URL path of the snapshot file.
type Resolver interface {
	// Resolve never fails; an unrecognized page path yields a best-guess
	// location and the error surfaces at fetch time.
	Resolve(pagePath string) string
}

// Options configure a resolver.
type Options struct {
	// BasePath, when set, pins the deployment root and disables guessing.
	BasePath string

	// CacheDir is the snapshot directory, relative to the root unless absolute.
	CacheDir string

	// SnapshotFile defaults to DefaultSnapshotFile.
	SnapshotFile string

	// DefaultRoot is used when no layout pattern matches the page path.
	DefaultRoot string
}

// NewResolver returns a StaticResolver when a base path is configured and a
// HeuristicResolver otherwise.
func NewResolver(opts Options) Resolver {
	if opts.SnapshotFile == "" {
		opts.SnapshotFile = DefaultSnapshotFile
	}
	if opts.BasePath != "" {
		return &StaticResolver{
			BasePath:     opts.BasePath,
			CacheDir:     opts.CacheDir,
			SnapshotFile: opts.SnapshotFile,
		}
	}
	return NewHeuristicResolver(opts.CacheDir, opts.SnapshotFile, opts.DefaultRoot)
}

// StaticResolver joins an injected base path with the cache directory. The
// page path is ignored.
type StaticResolver struct {
	BasePath     string
	CacheDir     string
	SnapshotFile string
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(string) string {
	if isAbsolute(r.CacheDir) {
		return join(r.CacheDir, r.SnapshotFile)
	}
	return join(r.BasePath, r.CacheDir, r.SnapshotFile)
}

// Deployment root layouts. The tenant root contains the production root as a
// substring, so it must be tried first.
var (
	tenantRootPattern     = regexp.MustCompile(`^(.*?/tenants/[^/]+/dashboard)(?:/|$)`)
	productionRootPattern = regexp.MustCompile(`^(.*?/dashboard)(?:/|$)`)
)

// HeuristicResolver infers the deployment root from the page path. Kept for
// pages that do not inject a base path.
type HeuristicResolver struct {
	cacheDir     string
	snapshotFile string
	defaultRoot  string
	patterns     []*regexp.Regexp
}

// NewHeuristicResolver creates a resolver that recognizes the tenant
// development root (/tenants/<id>/dashboard) and the production root
// (/dashboard).
func NewHeuristicResolver(cacheDir, snapshotFile, defaultRoot string) *HeuristicResolver {
	if snapshotFile == "" {
		snapshotFile = DefaultSnapshotFile
	}
	if defaultRoot == "" {
		defaultRoot = "/"
	}
	return &HeuristicResolver{
		cacheDir:     cacheDir,
		snapshotFile: snapshotFile,
		defaultRoot:  defaultRoot,
		patterns:     []*regexp.Regexp{tenantRootPattern, productionRootPattern},
	}
}

// Resolve implements Resolver.
func (r *HeuristicResolver) Resolve(pagePath string) string {
	if isAbsolute(r.cacheDir) {
		return join(r.cacheDir, r.snapshotFile)
	}
	return join(r.Root(pagePath), r.cacheDir, r.snapshotFile)
}

// Root returns the deployment root detected for a page path.
func (r *HeuristicResolver) Root(pagePath string) string {
	dir := stripFileName(pagePath)
	for _, p := range r.patterns {
		if m := p.FindStringSubmatch(dir); m != nil {
			return m[1]
		}
	}
	return r.defaultRoot
}

// stripFileName removes a trailing segment that looks like a file name.
func stripFileName(pagePath string) string {
	if i := strings.IndexAny(pagePath, "?#"); i >= 0 {
		pagePath = pagePath[:i]
	}
	if !strings.HasPrefix(pagePath, "/") {
		pagePath = "/" + pagePath
	}
	if strings.HasSuffix(pagePath, "/") {
		return pagePath
	}
	if base := path.Base(pagePath); strings.Contains(base, ".") {
		return path.Dir(pagePath) + "/"
	}
	return pagePath + "/"
}

func isAbsolute(dir string) bool {
	return strings.HasPrefix(dir, "/")
}

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// join concatenates segments with single separators and a leading slash.
func join(parts ...string) string {
	joined := "/" + strings.Join(parts, "/")
	return repeatedSlashes.ReplaceAllString(joined, "/")
}
