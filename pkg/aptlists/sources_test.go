package aptlists

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceLine(t *testing.T) {
	var cases = []struct {
		name    string
		line    string
		entries []SourceEntry
		ok      bool
	}{
		{
			"plain entry with multiple components",
			"deb http://deb.debian.org/debian stable main contrib",
			[]SourceEntry{
				{Type: "deb", URI: "http://deb.debian.org/debian", Suite: "stable", Component: "main", Options: map[string]string{}},
				{Type: "deb", URI: "http://deb.debian.org/debian", Suite: "stable", Component: "contrib", Options: map[string]string{}},
			},
			true,
		},
		{
			"options are parsed",
			"deb [arch=amd64 trusted=yes] http://mirror.example.com/debian unstable main",
			[]SourceEntry{
				{Type: "deb", URI: "http://mirror.example.com/debian", Suite: "unstable", Component: "main", Options: map[string]string{"arch": "amd64", "trusted": "yes"}},
			},
			true,
		},
		{
			"trailing slash is stripped",
			"deb http://deb.debian.org/debian/ testing main",
			[]SourceEntry{
				{Type: "deb", URI: "http://deb.debian.org/debian", Suite: "testing", Component: "main", Options: map[string]string{}},
			},
			true,
		},
		{
			"missing component",
			"deb http://deb.debian.org/debian stable",
			nil,
			false,
		},
		{
			"malformed option",
			"deb [trusted] http://deb.debian.org/debian stable main",
			nil,
			false,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := parseSourceLine(tt.line)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.EqualValues(t, tt.entries, entries)
		})
	}
}

func TestReadSources(t *testing.T) {
	ctx := logr.NewContext(context.TODO(), testr.NewWithOptions(t, testr.Options{Verbosity: 10}))

	entries, err := readSources(ctx, "./testdata/rootfs")
	require.NoError(t, err)

	// 4 one-line entries (main has two components) plus the deb822
	// backports fragment
	assert.Len(t, entries, 5)
	assert.EqualValues(t, SourceEntry{
		Type:      "deb",
		URI:       "http://deb.debian.org/debian",
		Suite:     "stable-backports",
		Component: "main",
		Options:   map[string]string{},
	}, entries[4])
}

func TestSourceEntryTrusted(t *testing.T) {
	assert.True(t, SourceEntry{Options: map[string]string{"trusted": "yes"}}.Trusted())
	assert.False(t, SourceEntry{Options: map[string]string{"trusted": "no"}}.Trusted())
	assert.False(t, SourceEntry{Options: map[string]string{}}.Trusted())
}

func TestListPrefix(t *testing.T) {
	assert.EqualValues(t, "deb.debian.org_debian", listPrefix("http://deb.debian.org/debian"))
	assert.EqualValues(t, "mirror.example.com_pub_debian", listPrefix("https://mirror.example.com/pub/debian/"))
	assert.EqualValues(t, "deb.debian.org_debian", listPrefix("deb.debian.org/debian"))
}

func TestSite(t *testing.T) {
	assert.EqualValues(t, "deb.debian.org", site("http://deb.debian.org/debian"))
	assert.EqualValues(t, "mirror.example.com", site("https://mirror.example.com/pub/debian"))
}
