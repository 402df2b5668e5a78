package aptlists

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildd-tools/default-release/pkg/apt"
	"github.com/go-logr/logr"
	version "github.com/knqyf263/go-deb-version"
)

// Options configure which apt state a System reads.
type Options struct {
	// Root is the filesystem to inspect. Defaults to "/".
	Root string
	// Arch is the binary architecture of the package lists.
	Arch string
}

// System is a read-only view of the host's apt state. It implements
// the apt.Cache, apt.DepCache and apt.SourceList interfaces.
type System struct {
	files    []*apt.PackageFile
	indexes  map[*apt.PackageFile]*apt.IndexDescriptor
	packages map[string]*apt.Package
	pins     []pin
}

// Open builds a System by reading the sources, downloaded package
// lists, preferences and dpkg status under the given root. Sources
// whose lists have not been downloaded are logged and skipped.
func Open(ctx context.Context, opts Options) (*System, error) {
	log := logr.FromContextOrDiscard(ctx)

	root := opts.Root
	if root == "" {
		root = "/"
	}
	sys := &System{
		indexes:  map[*apt.PackageFile]*apt.IndexDescriptor{},
		packages: map[string]*apt.Package{},
	}

	entries, err := readSources(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("reading sources: %w", err)
	}
	listsDir := filepath.Join(root, "var", "lib", "apt", "lists")
	for _, entry := range entries {
		if entry.Type != "deb" {
			log.V(2).Info("skipping non-binary source entry", "type", entry.Type, "uri", entry.URI)
			continue
		}
		if err := sys.addEntry(ctx, listsDir, entry, opts.Arch); err != nil {
			return nil, err
		}
	}

	if err := sys.addStatus(ctx, filepath.Join(root, "var", "lib", "dpkg", "status")); err != nil {
		return nil, err
	}

	sys.pins, err = readPreferences(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}

	log.V(1).Info("opened apt state", "root", root, "files", len(sys.files), "packages", len(sys.packages))
	return sys, nil
}

// addEntry reads the downloaded list files backing one source entry
// and folds their packages into the cache.
func (s *System) addEntry(ctx context.Context, listsDir string, entry SourceEntry, arch string) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("uri", entry.URI, "suite", entry.Suite, "component", entry.Component)

	distPrefix := fmt.Sprintf("%s_dists_%s", listPrefix(entry.URI), strings.ReplaceAll(entry.Suite, "/", "_"))
	inRelease := filepath.Join(listsDir, distPrefix+"_InRelease")
	releaseGPG := filepath.Join(listsDir, distPrefix+"_Release.gpg")

	rel, relPath, err := readRelease(ctx, inRelease, filepath.Join(listsDir, distPrefix+"_Release"))
	if errors.Is(err, os.ErrNotExist) {
		log.V(1).Info("release file has not been downloaded, using source entry metadata")
		rel = &ReleaseFile{Suite: entry.Suite}
	} else if err != nil {
		return err
	}
	trusted := entry.Trusted() || relPath == inRelease || exists(releaseGPG)

	packagesBase := filepath.Join(listsDir, fmt.Sprintf("%s_%s_binary-%s_Packages", distPrefix, entry.Component, arch))
	pkgs, listPath, err := readPackages(ctx, packagesBase)
	if errors.Is(err, os.ErrNotExist) {
		log.V(1).Info("package list has not been downloaded, skipping source entry")
		return nil
	} else if err != nil {
		return err
	}

	archive := rel.Suite
	if archive == "" {
		archive = entry.Suite
	}
	file := &apt.PackageFile{
		Architecture:         arch,
		Archive:              archive,
		Codename:             rel.Codename,
		Component:            entry.Component,
		Origin:               rel.Origin,
		Label:                rel.Label,
		Site:                 site(entry.URI),
		Filename:             listPath,
		IndexType:            "Debian Package Index",
		Version:              rel.Version,
		Size:                 fileSize(listPath),
		ID:                   len(s.files),
		NotAutomatic:         rel.IsNotAutomatic(),
		ButAutomaticUpgrades: rel.IsButAutomaticUpgrades(),
	}
	s.files = append(s.files, file)
	s.indexes[file] = &apt.IndexDescriptor{
		Trusted:     trusted,
		Description: fmt.Sprintf("%s %s/%s %s Packages", entry.URI, archive, entry.Component, arch),
	}

	count := 0
	for _, p := range pkgs {
		if p.Architecture != arch && p.Architecture != "all" {
			continue
		}
		s.addVersion(p.Package, p.Version, file)
		count++
	}
	log.V(1).Info("added index", "file", listPath, "packages", count, "trusted", trusted)
	return nil
}

// addStatus folds the installed packages into the cache behind a
// synthetic "now" file. The status file is deliberately absent from
// the source list, matching apt.
func (s *System) addStatus(ctx context.Context, path string) error {
	installed, err := readStatus(ctx, path)
	if err != nil {
		return err
	}
	if len(installed) == 0 {
		return nil
	}
	file := &apt.PackageFile{
		Archive:   "now",
		Codename:  "now",
		Filename:  path,
		IndexType: "Debian dpkg status file",
		Size:      fileSize(path),
		ID:        len(s.files),
		NotSource: true,
	}
	s.files = append(s.files, file)
	for _, p := range installed {
		s.addVersion(p.Package, p.Version, file)
	}
	return nil
}

func (s *System) addVersion(name, ver string, file *apt.PackageFile) {
	pkg, ok := s.packages[name]
	if !ok {
		pkg = &apt.Package{Name: name}
		s.packages[name] = pkg
	}
	for _, v := range pkg.Versions {
		if v.Version == ver {
			v.Files = append(v.Files, file)
			return
		}
	}
	pkg.Versions = append(pkg.Versions, &apt.Version{
		Version: ver,
		Files:   []*apt.PackageFile{file},
	})
}

func (s *System) Lookup(name string) (*apt.Package, bool) {
	pkg, ok := s.packages[name]
	return pkg, ok
}

func (s *System) Files() []*apt.PackageFile {
	return s.files
}

// Candidate picks the version with the highest file priority, breaking
// ties by Debian version order and then by first appearance.
func (s *System) Candidate(ctx context.Context, pkg *apt.Package) (*apt.Version, bool) {
	log := logr.FromContextOrDiscard(ctx).WithValues("package", pkg.Name)

	var best *apt.Version
	bestPrio := -1
	for _, v := range pkg.Versions {
		prio := -1
		for _, f := range v.Files {
			if p := s.Priority(f); p > prio {
				prio = p
			}
		}
		log.V(3).Info("considering version", "version", v.Version, "priority", prio)
		if best == nil || prio > bestPrio || (prio == bestPrio && newerVersion(v.Version, best.Version)) {
			best = v
			bestPrio = prio
		}
	}
	if best == nil {
		return nil, false
	}
	log.V(2).Info("selected candidate", "version", best.Version, "priority", bestPrio)
	return best, true
}

func (s *System) Priority(f *apt.PackageFile) int {
	return filePriority(f, s.pins)
}

func (s *System) FindIndex(f *apt.PackageFile) (*apt.IndexDescriptor, bool) {
	index, ok := s.indexes[f]
	return index, ok
}

// newerVersion reports whether s1 sorts after s2 in Debian version
// order. Unparseable versions never win.
func newerVersion(s1, s2 string) bool {
	v1, err := version.NewVersion(s1)
	if err != nil {
		return false
	}
	v2, err := version.NewVersion(s2)
	if err != nil {
		return true
	}
	return v1.GreaterThan(v2)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
