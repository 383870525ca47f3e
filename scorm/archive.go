package scorm

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DescriptorFileName is the fixed descriptor a package must carry
const DescriptorFileName = "imsmanifest.xml"

// Archive wraps an opened package zip
type Archive struct {
	path       string
	reader     *zip.ReadCloser
	descriptor string // path of imsmanifest.xml inside the archive, set by Validate
}

// OpenArchive opens a package archive from disk
func OpenArchive(blobPath string) (*Archive, error) {
	reader, err := zip.OpenReader(blobPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	return &Archive{path: blobPath, reader: reader}, nil
}

// Close releases the underlying zip reader
func (a *Archive) Close() {
	if a.reader != nil {
		a.reader.Close()
	}
}

// Validate checks that the descriptor file exists somewhere in the archive.
// When it appears more than once the shallowest occurrence wins, since nested
// copies usually belong to embedded sub-packages.
func (a *Archive) Validate() error {
	best := ""
	bestDepth := -1
	for _, f := range a.reader.File {
		name := path.Clean(f.Name)
		if path.Base(name) != DescriptorFileName {
			continue
		}
		depth := strings.Count(name, "/")
		if bestDepth == -1 || depth < bestDepth {
			best, bestDepth = name, depth
		}
	}
	if best == "" {
		return ErrMissingDescriptor
	}
	a.descriptor = best
	return nil
}

// DescriptorDir returns the archive-relative directory holding the descriptor.
// Empty when the descriptor sits at the archive root. Validate must have run.
func (a *Archive) DescriptorDir() string {
	dir := path.Dir(a.descriptor)
	if dir == "." {
		return ""
	}
	return dir
}

// ReadDescriptor returns the raw descriptor bytes
func (a *Archive) ReadDescriptor() ([]byte, error) {
	for _, f := range a.reader.File {
		if path.Clean(f.Name) == a.descriptor {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, ErrMissingDescriptor
}

// Extract unpacks the archive into destination. The unpack happens in a
// sibling temp directory that is renamed into place at the end, so the caller
// either sees a fully populated destination or none at all.
func (a *Archive) Extract(destination string) error {
	staging := destination + ".partial"
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	if err := a.extractInto(staging); err != nil {
		os.RemoveAll(staging)
		return err
	}

	os.RemoveAll(destination)
	if err := os.Rename(staging, destination); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return nil
}

func (a *Archive) extractInto(dest string) error {
	for _, f := range a.reader.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		if err := copyEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func copyEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return nil
}

// safeJoin rejects zip entries that would escape the destination (zip slip)
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrExtractionFailed, name)
	}
	return target, nil
}
