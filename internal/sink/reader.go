package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// OpenReader opens a sample file, decompressing .zst files transparently
func OpenReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, zstdExt) {
		return f, nil
	}

	zr, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &zstdReadCloser{Decoder: zr, f: f}, nil
}

type zstdReadCloser struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// ReadMetadata loads a metadata sidecar
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata %s: %w", path, err)
	}
	return &meta, nil
}

// MetadataPath returns the sidecar path of a sample file, if it exists.
// Channel split files share one sidecar.
func MetadataPath(path string) (string, bool) {
	path = strings.TrimSuffix(path, zstdExt)
	candidates := []string{path + metaExt}

	base := strings.TrimSuffix(path, fileExt)
	if i := strings.LastIndex(base, "_ch"); i >= 0 {
		if j := strings.LastIndex(base, "."); j > i {
			candidates = append(candidates, base[:i]+base[j:]+fileExt+metaExt)
		}
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, true
		}
	}
	return "", false
}
