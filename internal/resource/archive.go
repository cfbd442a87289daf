package resource

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// Returned when an archive entry would be written outside the destination.
var errUnsafePath = errors.New("archive entry escapes destination")

// Extracts the tarball at path into dest.
//
// The compression is chosen from the name: ".tar.gz" and ".tgz" use gzip,
// ".tar.xz" and ".txz" use xz, anything else is read as a plain tar stream.
// The first strip path components of every entry are removed; entries that
// become empty are skipped.
func extract(path, name, dest string, strip int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := decompress(f, name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		rel := stripComponents(hdr.Name, strip)
		if rel == "" {
			continue
		}

		target, err := safeJoin(dest, rel)
		if err != nil {
			return err
		}
		if err := checkParents(dest, target); err != nil {
			return err
		}

		if err := writeEntry(tr, hdr, dest, target); err != nil {
			return err
		}
	}
}

// Wraps r with the decompressor implied by name.
func decompress(r io.Reader, name string) (io.Reader, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return gzip.NewReader(r)
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return xz.NewReader(r)
	default:
		return r, nil
	}
}

// Writes a single tar entry to target.
//
// Symbolic links must be relative and resolve inside dest. Existing links at
// target are replaced, never followed.
func writeEntry(tr *tar.Reader, hdr *tar.Header, dest, target string) error {
	mode := os.FileMode(hdr.Mode).Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := removeSymlink(target); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()

	case tar.TypeSymlink:
		if err := checkLink(dest, target, hdr.Linkname); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(hdr.Linkname, target)

	default:
		return nil
	}
}

// Removes the first n slash-separated components of name.
func stripComponents(name string, n int) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if len(parts) <= n {
		return ""
	}
	return strings.Join(parts[n:], "/")
}

// Joins rel onto dest, refusing results outside dest.
func safeJoin(dest, rel string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(rel))
	r, err := filepath.Rel(dest, target)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errUnsafePath, rel)
	}
	return target, nil
}

// Rejects link targets that are absolute or resolve outside dest.
func checkLink(dest, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: %s -> %s", errUnsafePath, target, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if _, err := safeJoin(dest, mustRel(dest, resolved)); err != nil {
		return fmt.Errorf("%w: %s -> %s", errUnsafePath, target, linkname)
	}
	return nil
}

// Returns target relative to dest, or target itself when no relative form
// exists so that [safeJoin] rejects it.
func mustRel(dest, target string) string {
	r, err := filepath.Rel(dest, target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(r)
}

// Refuses targets whose directories below dest include a symbolic link.
func checkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}

	dir := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s is a symbolic link", errUnsafePath, dir)
		}
	}
	return nil
}

// Removes path if it is a symbolic link.
func removeSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(path)
}
