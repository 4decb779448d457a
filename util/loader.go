// Package util - File helpers for batch runs and model asset staging.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the position of the file in name order.
	Frame int
}

// IsImageFile reports whether path has an extension the loaders accept.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Subdirectories and files with other extensions are skipped. Files are
// ordered by name.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	var names []string
	for _, file := range files {
		if file.IsDir() || !IsImageFile(file.Name()) {
			continue
		}
		names = append(names, file.Name())
	}
	sort.Strings(names)

	images := make([]ImageFile, 0, len(names))
	for i, name := range names {
		img, err := LoadImageFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		img.Frame = i
		images = append(images, img)
	}

	return images, nil
}

// LoadImageFile reads a single image file.
func LoadImageFile(path string) (ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "reading %s", path)
	}
	return ImageFile{Path: path, Data: data}, nil
}
