package apt

import "context"

// PackageFile describes one repository index file known to the cache.
// Its fields mirror the metadata apt records for each list it has
// downloaded, plus the dpkg status file.
type PackageFile struct {
	Architecture         string
	Archive              string
	Codename             string
	Component            string
	Origin               string
	Label                string
	Site                 string
	Filename             string
	IndexType            string
	Version              string
	Size                 int64
	ID                   int
	NotAutomatic         bool
	ButAutomaticUpgrades bool
	NotSource            bool
}

// Version is one version of a package together with the index files
// that offer it, in the order the cache returns them.
type Version struct {
	Version string
	Files   []*PackageFile
}

type Package struct {
	Name     string
	Versions []*Version
}

// IndexDescriptor is the source-list view of a package file: whether
// its authenticity has been verified and how to describe it to a human.
type IndexDescriptor struct {
	Trusted     bool
	Description string
}

// Cache is the universe of known packages and index files.
type Cache interface {
	// Lookup returns the named package, or false if the cache
	// does not know about it.
	Lookup(name string) (*Package, bool)
	// Files enumerates every index file known to the cache,
	// including ones that back no interesting package.
	Files() []*PackageFile
}

// DepCache answers policy questions about the cache.
type DepCache interface {
	// Candidate returns the version of a package that would
	// currently be chosen for installation.
	Candidate(ctx context.Context, pkg *Package) (*Version, bool)
	// Priority returns the policy priority assigned to an index file.
	Priority(f *PackageFile) int
}

// SourceList maps index files back to the configured sources.
type SourceList interface {
	// FindIndex returns the source-list entry backing an index
	// file, or false if the file has no entry (for example the
	// dpkg status file).
	FindIndex(f *PackageFile) (*IndexDescriptor, bool)
}
