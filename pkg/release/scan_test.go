package release

import (
	"context"
	"testing"

	"github.com/buildd-tools/default-release/pkg/apt"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
)

type fixture struct {
	archive  string
	trusted  bool
	priority int
	noIndex  bool
}

// fakeSystem serves literal fixture data through the apt interfaces.
type fakeSystem struct {
	name  string
	files []*apt.PackageFile
	fx    []fixture
}

func newFakeSystem(name string, fx []fixture) *fakeSystem {
	s := &fakeSystem{name: name, fx: fx}
	for i, f := range fx {
		s.files = append(s.files, &apt.PackageFile{
			Archive:   f.archive,
			Component: "main",
			ID:        i,
		})
	}
	return s
}

func (s *fakeSystem) Lookup(name string) (*apt.Package, bool) {
	if name != s.name {
		return nil, false
	}
	return &apt.Package{
		Name:     name,
		Versions: []*apt.Version{{Version: "1.0", Files: s.files}},
	}, true
}

func (s *fakeSystem) Files() []*apt.PackageFile {
	return s.files
}

func (s *fakeSystem) Candidate(_ context.Context, pkg *apt.Package) (*apt.Version, bool) {
	if len(pkg.Versions) == 0 {
		return nil, false
	}
	return pkg.Versions[0], true
}

func (s *fakeSystem) Priority(f *apt.PackageFile) int {
	return s.fx[f.ID].priority
}

func (s *fakeSystem) FindIndex(f *apt.PackageFile) (*apt.IndexDescriptor, bool) {
	fx := s.fx[f.ID]
	if fx.noIndex {
		return nil, false
	}
	return &apt.IndexDescriptor{Trusted: fx.trusted, Description: fx.archive + "/main"}, true
}

func TestScan(t *testing.T) {
	var cases = []struct {
		name    string
		fx      []fixture
		archive string
		ok      bool
	}{
		{
			"highest priority wins",
			[]fixture{
				{archive: "stable", trusted: true, priority: 500},
				{archive: "unstable", trusted: true, priority: 100},
			},
			"stable",
			true,
		},
		{
			"first seen wins on equal priority",
			[]fixture{
				{archive: "testing", trusted: true, priority: 500},
				{archive: "unstable", trusted: true, priority: 500},
			},
			"testing",
			true,
		},
		{
			"untrusted index is never selected",
			[]fixture{
				{archive: "stable", trusted: false, priority: 900},
			},
			"",
			false,
		},
		{
			"untrusted high priority loses to trusted low priority",
			[]fixture{
				{archive: "unstable", trusted: false, priority: 900},
				{archive: "stable", trusted: true, priority: 100},
			},
			"stable",
			true,
		},
		{
			"unrecognised archive is never selected",
			[]fixture{
				{archive: "experimental", trusted: true, priority: 700},
			},
			"",
			false,
		},
		{
			"file without an index is skipped",
			[]fixture{
				{archive: "stable", trusted: true, priority: 900, noIndex: true},
				{archive: "unstable", trusted: true, priority: 100},
			},
			"unstable",
			true,
		},
		{
			"no files at all",
			nil,
			"",
			false,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))
			sys := newFakeSystem("base-files", tt.fx)

			archive, err := Scan(ctx, sys, sys, sys, "base-files", DefaultArchives)
			if tt.ok {
				assert.NoError(t, err)
				assert.EqualValues(t, tt.archive, archive)
				return
			}
			assert.ErrorIs(t, err, ErrNoDefaultRelease)
			assert.Empty(t, archive)
		})
	}
}

func TestScanUnknownPackage(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))
	sys := newFakeSystem("base-files", []fixture{
		{archive: "stable", trusted: true, priority: 500},
	})

	archive, err := Scan(ctx, sys, sys, sys, "not-a-package", DefaultArchives)
	assert.ErrorIs(t, err, ErrNoDefaultRelease)
	assert.Empty(t, archive)
}

func TestScanCustomArchives(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))
	sys := newFakeSystem("base-files", []fixture{
		{archive: "experimental", trusted: true, priority: 700},
	})

	archive, err := Scan(ctx, sys, sys, sys, "base-files", []string{"experimental"})
	assert.NoError(t, err)
	assert.EqualValues(t, "experimental", archive)
}
