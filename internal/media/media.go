// Package media confines draft attachments to a data directory and archives
// them once posted.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

var (
	// ErrOutsideRoot is returned for paths that escape the library root.
	ErrOutsideRoot = errors.New("access denied: path must be within the media directory")
	// ErrUnsupported is returned for files that are not images or videos.
	ErrUnsupported = errors.New("unsupported media type")
)

// Library is a directory that attachments must live under.
type Library struct {
	root string
}

// New returns a library rooted at dir.
func New(dir string) (*Library, error) {
	if dir == "" {
		return nil, fmt.Errorf("media: root directory is required")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("media: resolve %s: %w", dir, err)
	}
	return &Library{root: root}, nil
}

// Root returns the absolute library root.
func (l *Library) Root() string {
	return l.root
}

// Resolve returns the absolute form of path if it lies inside the root.
func (l *Library) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return abs, nil
}

// imageExtensions are the file types Scan picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".heic": true,
}

// Scan lists the images directly inside dir, which must lie within the
// root, in name order. Files are matched by extension.
func (l *Library) Scan(dir string) ([]string, error) {
	abs, err := l.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		images = append(images, filepath.Join(abs, e.Name()))
	}
	return images, nil
}

// Kind reports the MIME type of a media file, sniffed from its header.
func Kind(path string) (string, error) {
	kind, err := filetype.MatchFile(path)
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", path, err)
	}
	if kind == types.Unknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	if kind.MIME.Type != "image" && kind.MIME.Type != "video" {
		return "", fmt.Errorf("%w: %s is %s", ErrUnsupported, path, kind.MIME.Value)
	}
	return kind.MIME.Value, nil
}

// Check resolves path inside the root and verifies it is an image or video.
func (l *Library) Check(path string) (string, error) {
	abs, err := l.Resolve(path)
	if err != nil {
		return "", err
	}
	if _, err := Kind(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// Archive moves a posted file into a "posted" folder next to it. A name
// collision gets a timestamp suffix.
func Archive(path string, now time.Time) (string, error) {
	dir := filepath.Join(filepath.Dir(path), "posted")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	name := filepath.Base(path)
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		dst = filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, now.Format("20060102150405"), ext))
	}

	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("move %s: %w", path, err)
	}
	return dst, nil
}
