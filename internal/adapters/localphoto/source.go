package localphoto

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Source implements ports.PhotoSource over the local filesystem. Refs are
// plain paths or file:// URLs; relative refs resolve under Root.
type Source struct {
	Root string
}

// New creates a Source. An empty root accepts absolute paths only.
func New(root string) *Source {
	return &Source{Root: root}
}

// Read returns the photo bytes and a sniffed content type.
func (s *Source) Read(ctx context.Context, ref string) ([]byte, string, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("read %s: empty file", path)
	}
	return data, contentType(path, data), nil
}

func (s *Source) resolve(ref string) (string, error) {
	p := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("parse %q: %w", ref, err)
		}
		p = u.Path
	}
	if p == "" {
		return "", fmt.Errorf("empty photo ref")
	}

	if !filepath.IsAbs(p) {
		if s.Root == "" {
			return "", fmt.Errorf("relative photo ref %q without a photo root", ref)
		}
		p = filepath.Join(s.Root, p)
	}
	p = filepath.Clean(p)

	if s.Root != "" {
		root := filepath.Clean(s.Root)
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("photo ref %q outside %s", ref, root)
		}
	}
	return p, nil
}

func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
