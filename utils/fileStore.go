package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStore is the local-disk blob store for uploads and extracted package
// content. Content keys are package ids; launch URLs resolve under BaseURL.
type FileStore struct {
	UploadDir  string
	ContentDir string
	BaseURL    string
}

func NewFileStore(uploadDir, contentDir, baseURL string) *FileStore {
	return &FileStore{UploadDir: uploadDir, ContentDir: contentDir, BaseURL: baseURL}
}

// SaveUpload stores an uploaded archive under a unique name in the upload area
func (f *FileStore) SaveUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return f.SaveStream(file.Filename, src)
}

// SaveStream stores arbitrary blob content under a unique name in the upload area
func (f *FileStore) SaveStream(originalName string, r io.Reader) (string, error) {
	if err := os.MkdirAll(f.UploadDir, 0755); err != nil {
		return "", err
	}

	ext := filepath.Ext(originalName)
	filePath := filepath.Join(f.UploadDir, uuid.NewString()+ext)

	dst, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		os.Remove(filePath)
		return "", err
	}
	return filePath, nil
}

// Promote moves an extracted workspace tree to its final content location.
// The content path is immutable after this point.
func (f *FileStore) Promote(srcDir, packageID string) error {
	if err := os.MkdirAll(f.ContentDir, 0755); err != nil {
		return err
	}
	dest := filepath.Join(f.ContentDir, packageID)
	os.RemoveAll(dest)
	if err := os.Rename(srcDir, dest); err != nil {
		// Rename fails across filesystems; fall back to a copy
		if copyErr := copyTree(srcDir, dest); copyErr != nil {
			return fmt.Errorf("promote content: %v", copyErr)
		}
		os.RemoveAll(srcDir)
	}
	return nil
}

// PublicURL resolves the browser-facing URL of a file inside a package
func (f *FileStore) PublicURL(packageID, subPath string) string {
	if subPath == "" {
		return f.BaseURL + "/" + packageID
	}
	return f.BaseURL + "/" + path.Join(packageID, subPath)
}

// HashFile computes the sha256 content hash of a stored blob
func (f *FileStore) HashFile(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remove deletes a stored blob, ignoring already-gone files
func (f *FileStore) Remove(filePath string) {
	if filePath == "" {
		return
	}
	os.Remove(filePath)
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
