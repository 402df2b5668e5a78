package aptlists

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"pault.ag/go/debian/control"
)

// ReleaseFile is the subset of a Release (or InRelease) stanza the
// policy cares about.
type ReleaseFile struct {
	Origin               string
	Label                string
	Suite                string
	Codename             string
	Version              string
	NotAutomatic         string
	ButAutomaticUpgrades string
}

func (r *ReleaseFile) IsNotAutomatic() bool {
	return strings.EqualFold(r.NotAutomatic, "yes")
}

func (r *ReleaseFile) IsButAutomaticUpgrades() bool {
	return strings.EqualFold(r.ButAutomaticUpgrades, "yes")
}

// readRelease decodes the first of the given paths that exists. The
// second return value is the path that was read, so callers can tell
// InRelease apart from Release.
func readRelease(ctx context.Context, paths ...string) (*ReleaseFile, string, error) {
	log := logr.FromContextOrDiscard(ctx)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", err
		}
		rel, err := decodeRelease(f)
		_ = f.Close()
		if err != nil {
			return nil, "", fmt.Errorf("decoding %s: %w", path, err)
		}
		log.V(2).Info("decoded release file", "path", path, "suite", rel.Suite)
		return rel, path, nil
	}
	return nil, "", os.ErrNotExist
}

func decodeRelease(f *os.File) (*ReleaseFile, error) {
	dec, err := control.NewDecoder(f, nil)
	if err != nil {
		return nil, err
	}
	var rel ReleaseFile
	if err := dec.Decode(&rel); err != nil {
		return nil, err
	}
	return &rel, nil
}
