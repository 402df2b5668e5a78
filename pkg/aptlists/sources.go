package aptlists

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"pault.ag/go/debian/control"
)

// SourceEntry is one (type, uri, suite, component) combination from the
// configured apt sources.
type SourceEntry struct {
	Type      string
	URI       string
	Suite     string
	Component string
	Options   map[string]string
}

// Trusted reports whether the entry opts out of signature checking
// via the trusted option.
func (e SourceEntry) Trusted() bool {
	return strings.EqualFold(e.Options["trusted"], "yes")
}

type sourceParagraph struct {
	Types      []string `delim:" "`
	URIs       []string `delim:" "`
	Suites     []string `delim:" "`
	Components []string `delim:" "`
	Trusted    string
}

// readSources collects entries from sources.list, sources.list.d/*.list
// (one-line format) and sources.list.d/*.sources (deb822 format) under
// the given rootfs.
func readSources(ctx context.Context, root string) ([]SourceEntry, error) {
	log := logr.FromContextOrDiscard(ctx)

	var out []SourceEntry
	mainList := filepath.Join(root, "etc", "apt", "sources.list")
	entries, err := readListFile(ctx, mainList)
	if err != nil {
		return nil, err
	}
	out = append(out, entries...)

	fragmentDir := filepath.Join(root, "etc", "apt", "sources.list.d")
	fragments, err := os.ReadDir(fragmentDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, frag := range fragments {
		path := filepath.Join(fragmentDir, frag.Name())
		switch filepath.Ext(frag.Name()) {
		case ".list":
			entries, err = readListFile(ctx, path)
		case ".sources":
			entries, err = readSourcesFile(ctx, path)
		default:
			log.V(2).Info("skipping unrecognised sources fragment", "path", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	log.V(1).Info("collected source entries", "count", len(out))
	return out, nil
}

// readListFile parses the historic one-line format:
//
//	deb [option=value ...] uri suite component...
func readListFile(ctx context.Context, path string) ([]SourceEntry, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.V(2).Info("sources file does not exist")
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []SourceEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries, err := parseSourceLine(line)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		out = append(out, entries...)
	}
	return out, scanner.Err()
}

func parseSourceLine(line string) ([]SourceEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed source line: %q", line)
	}
	entryType := fields[0]
	fields = fields[1:]

	options := map[string]string{}
	if strings.HasPrefix(fields[0], "[") {
		var opts []string
		closed := false
		for i, f := range fields {
			opts = append(opts, f)
			if strings.HasSuffix(f, "]") {
				fields = fields[i+1:]
				closed = true
				break
			}
		}
		if !closed {
			return nil, fmt.Errorf("unterminated source options: %q", line)
		}
		joined := strings.Trim(strings.Join(opts, " "), "[]")
		for _, opt := range strings.Fields(joined) {
			k, v, ok := strings.Cut(opt, "=")
			if !ok {
				return nil, fmt.Errorf("malformed source option: %q", opt)
			}
			options[strings.ToLower(k)] = v
		}
	}
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed source line: %q", line)
	}

	uri := strings.TrimSuffix(fields[0], "/")
	suite := fields[1]
	var out []SourceEntry
	for _, component := range fields[2:] {
		out = append(out, SourceEntry{
			Type:      entryType,
			URI:       uri,
			Suite:     suite,
			Component: component,
			Options:   options,
		})
	}
	return out, nil
}

// readSourcesFile parses the deb822 format used by *.sources fragments.
func readSourcesFile(ctx context.Context, path string) ([]SourceEntry, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := control.NewDecoder(f, nil)
	if err != nil {
		return nil, err
	}
	var paragraphs []sourceParagraph
	if err := dec.Decode(&paragraphs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	log.V(2).Info("decoded deb822 sources", "stanzas", len(paragraphs))

	var out []SourceEntry
	for _, p := range paragraphs {
		options := map[string]string{}
		if p.Trusted != "" {
			options["trusted"] = p.Trusted
		}
		for _, entryType := range p.Types {
			for _, uri := range p.URIs {
				for _, suite := range p.Suites {
					for _, component := range p.Components {
						out = append(out, SourceEntry{
							Type:      entryType,
							URI:       strings.TrimSuffix(uri, "/"),
							Suite:     suite,
							Component: component,
							Options:   options,
						})
					}
				}
			}
		}
	}
	return out, nil
}

// listPrefix converts a repository URI into the filename prefix apt
// uses for files under /var/lib/apt/lists.
func listPrefix(uri string) string {
	s := uri
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "//")
	s = strings.Trim(s, "/")
	return strings.ReplaceAll(s, "/", "_")
}

// site extracts the hostname portion of a repository URI, used for
// origin pin matching.
func site(uri string) string {
	s := uri
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "//")
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return s
}
