package media

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestLibrary_Resolve(t *testing.T) {
	root := t.TempDir()
	lib, err := New(root)
	require.NoError(t, err)

	inside := filepath.Join(root, "img", "a.png")
	got, err := lib.Resolve(inside)
	require.NoError(t, err)
	assert.Equal(t, inside, got)

	tests := []string{
		"/etc/passwd",
		filepath.Join(root, "..", "escape.png"),
		root + "-sibling/a.png",
	}
	for _, p := range tests {
		t.Run(p, func(t *testing.T) {
			_, err := lib.Resolve(p)
			assert.ErrorIs(t, err, ErrOutsideRoot)
		})
	}
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestLibrary_Check(t *testing.T) {
	root := t.TempDir()
	lib, err := New(root)
	require.NoError(t, err)

	img := filepath.Join(root, "a.png")
	require.NoError(t, os.WriteFile(img, pngHeader, 0o644))
	txt := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("just text"), 0o644))

	got, err := lib.Check(img)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	kind, err := Kind(img)
	require.NoError(t, err)
	assert.Equal(t, "image/png", kind)

	_, err = lib.Check(txt)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = lib.Check(filepath.Join(root, "missing.png"))
	assert.Error(t, err)
}

func TestArchive(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "photo.png")
	require.NoError(t, os.WriteFile(src, pngHeader, 0o644))

	dst, err := Archive(src, time.Now())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "posted", "photo.png"), dst)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	// A second file with the same name gets a timestamp suffix.
	require.NoError(t, os.WriteFile(src, pngHeader, 0o644))
	ts := time.Date(2026, 2, 2, 6, 0, 0, 0, time.UTC)
	dst2, err := Archive(src, ts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "posted", "photo_20260202060000.png"), dst2)
}

func TestLibrary_Scan(t *testing.T) {
	root := t.TempDir()
	lib, err := New(root)
	require.NoError(t, err)

	shots := filepath.Join(root, "shots")
	require.NoError(t, os.MkdirAll(filepath.Join(shots, "posted"), 0o755))
	for _, name := range []string{"b.PNG", "a.jpg", "c.webp", "d.heic", "notes.txt", "clip.mp4"} {
		require.NoError(t, os.WriteFile(filepath.Join(shots, name), pngHeader, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(shots, "posted", "old.png"), pngHeader, 0o644))

	got, err := lib.Scan(shots)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(shots, "a.jpg"),
		filepath.Join(shots, "b.PNG"),
		filepath.Join(shots, "c.webp"),
		filepath.Join(shots, "d.heic"),
	}, got)

	_, err = lib.Scan(t.TempDir())
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = lib.Scan(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
