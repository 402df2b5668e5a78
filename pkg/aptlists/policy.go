package aptlists

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/buildd-tools/default-release/pkg/apt"
	"github.com/go-logr/logr"
	"pault.ag/go/debian/control"
)

const (
	// priorityDefault is assigned to any index file not covered by a
	// pin or a NotAutomatic flag.
	priorityDefault = 500
	// priorityInstalled is assigned to the dpkg status file and to
	// NotAutomatic archives that allow automatic upgrades.
	priorityInstalled = 100
	// priorityNotAutomatic is assigned to NotAutomatic archives such
	// as experimental or backports.
	priorityNotAutomatic = 1
)

type prefParagraph struct {
	Package     string
	Pin         string
	PinPriority string `control:"Pin-Priority"`
}

// pin is one wildcard preference stanza, reduced to the fields that
// apply to whole index files.
type pin struct {
	priority int
	// release selectors, keyed by the short selector letter
	// (a=archive, n=codename, v=version, o=origin, l=label,
	// c=component).
	release map[string]string
	// origin selector: the repository site.
	origin string
}

func (p *pin) matches(f *apt.PackageFile) bool {
	if p.origin != "" {
		return p.origin == f.Site
	}
	for key, want := range p.release {
		var got string
		switch key {
		case "a":
			got = f.Archive
		case "n":
			got = f.Codename
		case "v":
			got = f.Version
		case "o":
			got = f.Origin
		case "l":
			got = f.Label
		case "c":
			got = f.Component
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return len(p.release) > 0
}

// readPreferences collects the wildcard pins from /etc/apt/preferences
// and preferences.d fragments. Pins naming a specific package do not
// alter index-file priorities and are ignored here.
func readPreferences(ctx context.Context, root string) ([]pin, error) {
	log := logr.FromContextOrDiscard(ctx)

	paths := []string{filepath.Join(root, "etc", "apt", "preferences")}
	fragmentDir := filepath.Join(root, "etc", "apt", "preferences.d")
	fragments, err := os.ReadDir(fragmentDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, frag := range fragments {
		switch filepath.Ext(frag.Name()) {
		case ".pref", "":
			paths = append(paths, filepath.Join(fragmentDir, frag.Name()))
		}
	}

	var pins []pin
	for _, path := range paths {
		stanzas, err := readPreferenceFile(path)
		if err != nil {
			return nil, err
		}
		for _, stanza := range stanzas {
			if stanza.Package != "*" {
				log.V(2).Info("skipping package-specific pin", "package", stanza.Package, "path", path)
				continue
			}
			p, err := parsePin(stanza)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
			pins = append(pins, *p)
		}
	}
	log.V(1).Info("collected wildcard pins", "count", len(pins))
	return pins, nil
}

func readPreferenceFile(path string) ([]prefParagraph, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	dec, err := control.NewDecoder(f, nil)
	if err != nil {
		return nil, err
	}
	var out []prefParagraph
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return out, nil
}

func parsePin(stanza prefParagraph) (*pin, error) {
	priority, err := strconv.Atoi(strings.TrimSpace(stanza.PinPriority))
	if err != nil {
		return nil, fmt.Errorf("malformed pin priority %q: %w", stanza.PinPriority, err)
	}
	kind, selector, _ := strings.Cut(strings.TrimSpace(stanza.Pin), " ")
	selector = strings.TrimSpace(selector)
	switch kind {
	case "release":
		release := map[string]string{}
		for _, part := range strings.Split(selector, ",") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok {
				return nil, fmt.Errorf("malformed release selector: %q", selector)
			}
			release[k] = v
		}
		return &pin{priority: priority, release: release}, nil
	case "origin":
		return &pin{priority: priority, origin: selector}, nil
	default:
		return nil, fmt.Errorf("unsupported pin type: %q", kind)
	}
}

// filePriority resolves an index file's priority: the first matching
// wildcard pin wins, otherwise apt's defaults apply.
func filePriority(f *apt.PackageFile, pins []pin) int {
	for i := range pins {
		if pins[i].matches(f) {
			return pins[i].priority
		}
	}
	if f.NotSource {
		return priorityInstalled
	}
	if f.NotAutomatic {
		if f.ButAutomaticUpgrades {
			return priorityInstalled
		}
		return priorityNotAutomatic
	}
	return priorityDefault
}
