package testutils

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// CopyFile copies a file from source to destination.
func CopyFile(t *testing.T, src, dst string) error {
	t.Helper()

	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destinationFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destinationFile.Close()

	_, err = io.Copy(destinationFile, sourceFile)
	return err
}

// CopyDir copies the contents of a directory to another directory.
// Symlinks are copied but not followed.
func CopyDir(t *testing.T, srcDir, dstDir string) error {
	t.Helper()
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dstDir, relPath)
		if info.IsDir() {
			return os.MkdirAll(dstPath, 0700)
		}
		if info.Mode()&fs.ModeSymlink > 0 {
			lnk, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(lnk, dstPath)
		}
		return CopyFile(t, path, dstPath)
	})
}
