package util

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// StageAsset copies name from src into destDir and returns the destination path.
//
// A destination that already exists with a non-zero size is left untouched,
// so staging is done once per asset version.
//
// Arguments:
//   - src: The bundle the asset is read from.
//   - name: The asset file name inside src.
//   - destDir: The directory the asset is copied into.
//
// Returns:
//   - string: The absolute destination path.
//   - error: An error if the asset cannot be read or written.
//
// @example
//
//	path, err := util.StageAsset(os.DirFS("bundle"), "yolov3-tiny-10cls-320.4.weights", "assets")
func StageAsset(src fs.FS, name, destDir string) (string, error) {
	dest, err := filepath.Abs(filepath.Join(destDir, filepath.Base(name)))
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", name)
	}

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.Wrapf(err, "creating %s", filepath.Dir(dest))
	}

	in, err := src.Open(name)
	if err != nil {
		return "", errors.Wrapf(err, "opening asset %s", name)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", dest)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return "", errors.Wrapf(err, "copying asset %s", name)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", errors.Wrapf(err, "writing %s", dest)
	}
	return dest, nil
}

// SplitVersionedName splits "name.version.ext" into its parts. The version is
// empty for "name.ext".
func SplitVersionedName(fileName string) (name, version, ext string) {
	base := filepath.Base(fileName)
	ext = strings.TrimPrefix(filepath.Ext(base), ".")
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	version = strings.TrimPrefix(filepath.Ext(stem), ".")
	name = strings.TrimSuffix(stem, filepath.Ext(stem))
	return name, version, ext
}

// PruneOtherVersions deletes the files in dir that share the name and
// extension of path but are not path itself.
//
// Returns:
//   - []string: The removed file names.
//   - error: An error if dir cannot be listed or a file cannot be removed.
func PruneOtherVersions(dir, path string) ([]string, error) {
	keep := filepath.Base(path)
	name, _, ext := SplitVersionedName(keep)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	var removed []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || n == keep || !strings.HasPrefix(n, name) || !strings.HasSuffix(n, ext) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return removed, errors.Wrapf(err, "removing %s", n)
		}
		removed = append(removed, n)
	}
	return removed, nil
}
