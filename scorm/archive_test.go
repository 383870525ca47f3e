package scorm

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip builds a zip fixture from name->content pairs
func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestOpenArchiveCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0644))

	_, err := OpenArchive(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptArchive))
}

func TestValidateMissingDescriptor(t *testing.T) {
	path := writeZip(t, map[string]string{
		"index.html": "<html></html>",
		"style.css":  "body {}",
	})

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	err = archive.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDescriptor))
}

func TestDescriptorAtRoot(t *testing.T) {
	path := writeZip(t, map[string]string{
		"imsmanifest.xml": twoEntryManifest,
		"index.html":      "<html></html>",
	})

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	require.NoError(t, archive.Validate())
	assert.Equal(t, "", archive.DescriptorDir())

	raw, err := archive.ReadDescriptor()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Golf Explained")
}

func TestDescriptorInSubdirectoryShallowestWins(t *testing.T) {
	path := writeZip(t, map[string]string{
		"course/imsmanifest.xml":        twoEntryManifest,
		"course/nested/imsmanifest.xml": "<manifest/>",
		"course/index.html":             "<html></html>",
	})

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	require.NoError(t, archive.Validate())
	assert.Equal(t, "course", archive.DescriptorDir())
}

func TestExtract(t *testing.T) {
	path := writeZip(t, map[string]string{
		"imsmanifest.xml":    twoEntryManifest,
		"playing/index.html": "<html>playing</html>",
	})

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()
	require.NoError(t, archive.Validate())

	dest := filepath.Join(t.TempDir(), "extracted")
	require.NoError(t, archive.Extract(dest))

	content, err := os.ReadFile(filepath.Join(dest, "playing", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>playing</html>", string(content))

	// No partial staging directory left behind
	_, err = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestExtractRejectsZipSlip(t *testing.T) {
	path := writeZip(t, map[string]string{
		"imsmanifest.xml": twoEntryManifest,
		"../../evil.sh":   "#!/bin/sh",
	})

	archive, err := OpenArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	parent := t.TempDir()
	dest := filepath.Join(parent, "extracted")
	err = archive.Extract(dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))

	// Nothing escaped and nothing half-written remains
	_, statErr := os.Stat(filepath.Join(parent, "evil.sh"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}
