// Package media stores learner uploads on local disk.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/garywanggali/think-first/internal/artifact"
)

const (
	uploadDir = "uploads"

	MaxUploadBytes = 10 << 20
)

var (
	ErrTooLarge        = errors.New("media: upload too large")
	ErrUnsupportedType = errors.New("media: unsupported image type")
)

var allowedExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// Local keeps files under Root and serves them below URLPrefix.
type Local struct {
	Root      string
	URLPrefix string
}

func NewLocal(root, urlPrefix string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(root, uploadDir), 0o755); err != nil {
		return nil, fmt.Errorf("media: %w", err)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Local{Root: root, URLPrefix: urlPrefix}, nil
}

// Save writes r under a fresh name keeping the original extension.
func (l *Local) Save(r io.Reader, filename string) (artifact.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return artifact.Image{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	name := uuid.NewString() + ext
	dst := filepath.Join(l.Root, uploadDir, name)
	f, err := os.Create(dst)
	if err != nil {
		return artifact.Image{}, err
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxUploadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxUploadBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return artifact.Image{}, err
	}

	return artifact.Image{
		Ref:  l.URLPrefix + path.Join(uploadDir, name),
		Path: dst,
	}, nil
}

// Resolve maps a reference produced by Save back to its file; "" for
// anything else.
func (l *Local) Resolve(ref string) string {
	rel, ok := strings.CutPrefix(ref, l.URLPrefix)
	if !ok || rel == "" {
		return ""
	}
	clean := path.Clean("/" + rel)[1:]
	if clean != rel {
		return ""
	}
	p := filepath.Join(l.Root, filepath.FromSlash(clean))
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
