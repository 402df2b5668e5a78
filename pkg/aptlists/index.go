package aptlists

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"pault.ag/go/debian/control"
)

// indexEntry is one package stanza from a Packages list.
type indexEntry struct {
	Package      string
	Version      string
	Architecture string
	Filename     string
}

// readPackages reads a Packages list, preferring the uncompressed file
// and falling back to the gzip then xz variants. It returns the
// decoded entries and the path that was actually read.
func readPackages(ctx context.Context, path string) ([]indexEntry, string, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("path", path)

	if _, err := os.Stat(path); err == nil {
		entries, err := decodePackages(path)
		if err != nil {
			return nil, "", fmt.Errorf("decoding %s: %w", path, err)
		}
		log.V(2).Info("decoded package list", "count", len(entries))
		return entries, path, nil
	}

	variants := []struct {
		ext    string
		reader func(r io.Reader) (io.ReadCloser, error)
	}{
		{".gz", func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		}},
		{".xz", func(r io.Reader) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(xr), nil
		}},
	}
	for _, variant := range variants {
		compressed := path + variant.ext
		if _, err := os.Stat(compressed); err != nil {
			continue
		}
		entries, err := decodeCompressedPackages(ctx, compressed, variant.reader)
		if err != nil {
			return nil, "", fmt.Errorf("decoding %s: %w", compressed, err)
		}
		log.V(2).Info("decoded compressed package list", "path", compressed, "count", len(entries))
		return entries, compressed, nil
	}
	return nil, "", os.ErrNotExist
}

// decodeCompressedPackages stages the decompressed list in a temporary
// file before decoding it.
func decodeCompressedPackages(ctx context.Context, path string, reader func(r io.Reader) (io.ReadCloser, error)) ([]indexEntry, error) {
	log := logr.FromContextOrDiscard(ctx)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := reader(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dst := filepath.Join(os.TempDir(), fmt.Sprintf("%s-Packages", uuid.NewString()))
	log.V(3).Info("staging decompressed package list", "src", path, "dst", dst)
	tmp, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	defer os.Remove(dst)
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return nil, err
	}
	_ = tmp.Close()

	return decodePackages(dst)
}

func decodePackages(path string) ([]indexEntry, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := control.NewDecoder(f, nil)
	if err != nil {
		return nil, err
	}
	var out []indexEntry
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
