package image

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"slipway/pkg/errors"
	"slipway/pkg/logger"
)

// Store is a content-addressed image store on the local filesystem.
//
//	<root>/blobs/sha256/<hex>        layer tarballs, write-once
//	<root>/images/<name>/<tag>.json  tagged image manifests
type Store struct {
	root string
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{filepath.Join(dir, "blobs", "sha256"), filepath.Join(dir, "images")} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, errors.New(errors.CategoryIO, "store", fmt.Sprintf("create store directory %s", sub), err)
		}
	}
	return &Store{root: dir}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// WriteBlob streams r into the store and returns its digest and size.
// The blob is written to a temp file and renamed into place so a
// partial write never shows up under its digest. Writing a blob that
// already exists is a no-op.
func (s *Store) WriteBlob(r io.Reader) (digest.Digest, int64, error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, "blobs"), "ingest-*")
	if err != nil {
		return "", 0, errors.New(errors.CategoryIO, "store", "create blob temp file", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, errors.New(errors.CategoryIO, "store", "write blob", err)
	}

	d := digest.NewDigest(digest.SHA256, h)
	dst := s.blobPath(d)
	if _, statErr := os.Stat(dst); statErr == nil {
		return d, size, nil
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", 0, errors.New(errors.CategoryIO, "store", "commit blob", err)
	}
	logger.Debugf("stored blob %s (%d bytes)", d, size)
	return d, size, nil
}

// HasBlob reports whether the digest is present.
func (s *Store) HasBlob(d digest.Digest) bool {
	_, err := os.Stat(s.blobPath(d))
	return err == nil
}

// OpenBlob opens a stored blob for reading.
func (s *Store) OpenBlob(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath(d))
	if err != nil {
		return nil, errors.New(errors.CategoryIO, "store", fmt.Sprintf("open blob %s", d), err)
	}
	return f, nil
}

// VerifyBlob re-hashes a stored blob and checks it against its digest.
func (s *Store) VerifyBlob(d digest.Digest) error {
	f, err := s.OpenBlob(d)
	if err != nil {
		return err
	}
	defer f.Close()
	verifier := d.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		return errors.New(errors.CategoryIO, "store", "read blob", err)
	}
	if !verifier.Verified() {
		return errors.Newf(errors.CategoryIO, "store", "blob %s is corrupt", d)
	}
	return nil
}

// Save tags an image. Every referenced layer blob must already be in
// the store; a tag never points at a missing blob.
func (s *Store) Save(img *Image) error {
	if img.ID == "" {
		if _, err := img.ComputeID(); err != nil {
			return err
		}
	}
	for _, l := range img.Layers {
		if !s.HasBlob(l.Digest) {
			return errors.Newf(errors.CategoryIO, "store", "image %s references missing blob %s", img.Ref, l.Digest)
		}
	}

	raw, err := json.MarshalIndent(img, "", "  ")
	if err != nil {
		return errors.New(errors.CategoryIO, "store", "marshal image", err)
	}
	dir := filepath.Join(s.root, "images", img.Ref.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(errors.CategoryIO, "store", "create image directory", err)
	}
	tmp := filepath.Join(dir, "."+img.Ref.Tag+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.New(errors.CategoryIO, "store", "write image manifest", err)
	}
	if err := os.Rename(tmp, s.manifestPath(img.Ref)); err != nil {
		os.Remove(tmp)
		return errors.New(errors.CategoryIO, "store", "commit image manifest", err)
	}
	logger.Infof("saved image %s (%s)", img.Ref, img.ID)
	return nil
}

// Resolve loads a tagged image.
func (s *Store) Resolve(ref Ref) (*Image, error) {
	raw, err := os.ReadFile(s.manifestPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CategoryResolve, "store", "image %s not found", ref)
		}
		return nil, errors.New(errors.CategoryIO, "store", fmt.Sprintf("read image %s", ref), err)
	}
	var img Image
	if err := json.Unmarshal(raw, &img); err != nil {
		return nil, errors.New(errors.CategoryIO, "store", fmt.Sprintf("decode image %s", ref), err)
	}
	img.Ref = ref
	return &img, nil
}

// List returns all tagged images, sorted by reference.
func (s *Store) List() ([]*Image, error) {
	var out []*Image
	imagesDir := filepath.Join(s.root, "images")
	names, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, errors.New(errors.CategoryIO, "store", "list images", err)
	}
	for _, name := range names {
		if !name.IsDir() {
			continue
		}
		tags, err := os.ReadDir(filepath.Join(imagesDir, name.Name()))
		if err != nil {
			return nil, errors.New(errors.CategoryIO, "store", "list tags", err)
		}
		for _, tag := range tags {
			if tag.IsDir() || !strings.HasSuffix(tag.Name(), ".json") {
				continue
			}
			ref := Ref{Name: name.Name(), Tag: strings.TrimSuffix(tag.Name(), ".json")}
			img, err := s.Resolve(ref)
			if err != nil {
				return nil, err
			}
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.String() < out[j].Ref.String() })
	return out, nil
}

// Remove deletes a tag. Layer blobs are left in place; they may be
// shared with other tags.
func (s *Store) Remove(ref Ref) error {
	if err := os.Remove(s.manifestPath(ref)); err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.CategoryResolve, "store", "image %s not found", ref)
		}
		return errors.New(errors.CategoryIO, "store", fmt.Sprintf("remove image %s", ref), err)
	}
	return nil
}

func (s *Store) blobPath(d digest.Digest) string {
	return filepath.Join(s.root, "blobs", d.Algorithm().String(), d.Encoded())
}

func (s *Store) manifestPath(ref Ref) string {
	return filepath.Join(s.root, "images", ref.Name, ref.Tag+".json")
}
