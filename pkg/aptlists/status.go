package aptlists

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"pault.ag/go/debian/control"
)

type statusParagraph struct {
	Package      string
	Version      string
	Architecture string
	Status       string
}

// readStatus reads the dpkg status database and returns the installed
// packages. Packages in other states (config-files, half-installed)
// are skipped.
func readStatus(ctx context.Context, path string) ([]statusParagraph, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path)

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			log.V(1).Info("dpkg status file does not exist")
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	dec, err := control.NewDecoder(f, nil)
	if err != nil {
		return nil, err
	}
	var all []statusParagraph
	if err := dec.Decode(&all); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	var out []statusParagraph
	for _, p := range all {
		if !strings.HasSuffix(p.Status, " installed") {
			log.V(3).Info("skipping non-installed package", "package", p.Package, "status", p.Status)
			continue
		}
		out = append(out, p)
	}
	log.V(1).Info("decoded dpkg status", "installed", len(out), "total", len(all))
	return out, nil
}
