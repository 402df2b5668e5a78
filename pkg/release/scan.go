package release

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/buildd-tools/default-release/pkg/apt"
	"github.com/go-logr/logr"
	"golang.org/x/exp/maps"
)

// DefaultArchives are the release channels a default release may
// come from.
var DefaultArchives = []string{"stable", "testing", "unstable"}

var ErrNoDefaultRelease = errors.New("no trusted index with a recognised archive backs the candidate version")

// Scan finds the archive with the highest installation priority among
// the trusted, recognised index files backing the candidate version of
// the named package. Ties keep the first archive seen. On failure it
// dumps every known index file before returning ErrNoDefaultRelease.
func Scan(ctx context.Context, cache apt.Cache, deps apt.DepCache, sources apt.SourceList, name string, archives []string) (string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("package", name)

	pkg, ok := cache.Lookup(name)
	if !ok {
		Dump(ctx, cache, deps)
		return "", fmt.Errorf("%w: package %q is not in the cache", ErrNoDefaultRelease, name)
	}
	candidate, ok := deps.Candidate(ctx, pkg)
	if !ok {
		Dump(ctx, cache, deps)
		return "", fmt.Errorf("%w: package %q has no candidate version", ErrNoDefaultRelease, name)
	}
	log.V(1).Info("scanning candidate version", "version", candidate.Version, "files", len(candidate.Files))

	highestPrio := -1
	var highestArchive string
	for _, file := range candidate.Files {
		flog := log.WithValues("file", file.Filename, "archive", file.Archive)
		flog.V(1).Info("processing index file")
		index, ok := sources.FindIndex(file)
		if !ok {
			flog.V(1).Info("file has no source-list index, skipping")
			continue
		}
		if !index.Trusted {
			flog.V(1).Info("index is not trusted, skipping", "index", index.Description)
			continue
		}
		if !slices.Contains(archives, file.Archive) {
			flog.V(1).Info("archive is not recognised, skipping", "index", index.Description)
			continue
		}
		prio := deps.Priority(file)
		flog.V(2).Info("index file qualifies", "priority", prio)
		if prio > highestPrio {
			highestPrio = prio
			highestArchive = file.Archive
		}
	}
	if highestArchive == "" {
		log.Info("no archive qualifies for the candidate version", "archives", archives)
		Dump(ctx, cache, deps)
		return "", ErrNoDefaultRelease
	}
	log.V(1).Info("found highest priority archive", "archive", highestArchive, "priority", highestPrio)
	return highestArchive, nil
}

// Dump logs the metadata and priority of every index file the cache
// knows about. It is only useful for diagnosing why no archive
// qualified.
func Dump(ctx context.Context, cache apt.Cache, deps apt.DepCache) {
	log := logr.FromContextOrDiscard(ctx)
	for _, f := range cache.Files() {
		fields := map[string]any{
			"architecture":           f.Architecture,
			"archive":                f.Archive,
			"codename":               f.Codename,
			"component":              f.Component,
			"filename":               f.Filename,
			"id":                     f.ID,
			"index_type":             f.IndexType,
			"label":                  f.Label,
			"not_automatic":          f.NotAutomatic,
			"but_automatic_upgrades": f.ButAutomaticUpgrades,
			"not_source":             f.NotSource,
			"origin":                 f.Origin,
			"site":                   f.Site,
			"size":                   f.Size,
			"version":                f.Version,
			"priority":               deps.Priority(f),
		}
		keys := maps.Keys(fields)
		slices.Sort(keys)
		kv := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			kv = append(kv, k, fields[k])
		}
		log.Info("known index file", kv...)
	}
}
