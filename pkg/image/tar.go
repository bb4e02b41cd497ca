package image

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"slipway/pkg/errors"
)

// MediaTypeLayer is the media type recorded for slipway tar layers.
const MediaTypeLayer = "application/vnd.oci.image.layer.v1.tar"

// TarDir writes dir as a deterministic tar stream: entries are sorted,
// timestamps zeroed and ownership fixed, so the same tree always
// produces the same layer digest. Idempotent builds depend on this.
func TarDir(dir string, w io.Writer) error {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return errors.New(errors.CategoryIO, "tar", fmt.Sprintf("walk %s", dir), err)
	}
	sort.Strings(paths)

	tw := tar.NewWriter(w)
	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			return errors.New(errors.CategoryIO, "tar", fmt.Sprintf("stat %s", path), err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.New(errors.CategoryIO, "tar", "relative path", err)
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return errors.New(errors.CategoryIO, "tar", fmt.Sprintf("readlink %s", path), err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return errors.New(errors.CategoryIO, "tar", fmt.Sprintf("header for %s", path), err)
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.ModTime = time.Time{}
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""

		if err := tw.WriteHeader(hdr); err != nil {
			return errors.New(errors.CategoryIO, "tar", fmt.Sprintf("write header %s", hdr.Name), err)
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return errors.New(errors.CategoryIO, "tar", fmt.Sprintf("open %s", path), err)
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return errors.New(errors.CategoryIO, "tar", fmt.Sprintf("copy %s", path), err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		return errors.New(errors.CategoryIO, "tar", "close tar stream", err)
	}
	return nil
}

// symlinkEscapes reports whether a symlink entry resolves outside the
// extraction root. Links are confined so that a later entry writing
// through one cannot land outside the root either; the name-prefix
// check alone does not catch that, it never follows links.
func symlinkEscapes(name, linkname string) bool {
	if path.IsAbs(linkname) || filepath.IsAbs(linkname) {
		return true
	}
	dest := path.Join(path.Dir(path.Clean(filepath.ToSlash(name))), path.Clean(filepath.ToSlash(linkname)))
	return dest == ".." || strings.HasPrefix(dest, "../")
}

// Untar extracts a tar stream into dst, refusing entries that escape it,
// including escapes routed through symlinks extracted earlier.
func Untar(dst string, r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.New(errors.CategoryIO, "untar", "read tar entry", err)
		}

		name := filepath.FromSlash(hdr.Name)
		target := filepath.Join(dst, name)
		if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
			return errors.Newf(errors.CategoryIO, "untar", "entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)&os.ModePerm|0o100); err != nil {
				return errors.New(errors.CategoryIO, "untar", fmt.Sprintf("mkdir %s", target), err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.New(errors.CategoryIO, "untar", fmt.Sprintf("mkdir parent of %s", target), err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&os.ModePerm)
			if err != nil {
				return errors.New(errors.CategoryIO, "untar", fmt.Sprintf("create %s", target), err)
			}
			_, err = io.Copy(f, tr)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return errors.New(errors.CategoryIO, "untar", fmt.Sprintf("write %s", target), err)
			}
		case tar.TypeSymlink:
			if symlinkEscapes(hdr.Name, hdr.Linkname) {
				return errors.Newf(errors.CategoryIO, "untar", "symlink %q -> %q escapes destination", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errors.New(errors.CategoryIO, "untar", fmt.Sprintf("mkdir parent of %s", target), err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return errors.New(errors.CategoryIO, "untar", fmt.Sprintf("symlink %s", target), err)
			}
		default:
			// device nodes and the like have no business in an app layer
			return errors.Newf(errors.CategoryIO, "untar", "unsupported tar entry type %d for %q", hdr.Typeflag, hdr.Name)
		}
	}
}
