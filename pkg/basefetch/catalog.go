// Package basefetch resolves pinned base image references against a
// local catalog of rootfs tarballs. Resolution is exact-match on
// name:tag; an unavailable tag aborts the build with no retry.
package basefetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"slipway/pkg/errors"
	"slipway/pkg/image"
	"slipway/pkg/logger"
)

// Meta is the optional sidecar metadata a catalog entry may carry.
type Meta struct {
	// Env is baked into images built on this base, before recipe env.
	Env map[string]string `json:"env,omitempty"`
	// Description is informational only.
	Description string `json:"description,omitempty"`
}

// BaseImage is a resolved catalog entry.
type BaseImage struct {
	Ref image.Ref
	// TarPath is the rootfs tarball for this base.
	TarPath string
	Size    int64
	Meta    Meta
}

// Catalog is a directory of base images:
//
//	<root>/<name>/<tag>.tar    rootfs tarball
//	<root>/<name>/<tag>.json   optional Meta sidecar
type Catalog struct {
	root string
}

// NewCatalog opens a catalog rooted at dir, creating it if needed.
func NewCatalog(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.CategoryIO, "basefetch", fmt.Sprintf("create catalog %s", dir), err)
	}
	return &Catalog{root: dir}, nil
}

// Resolve looks up a pinned reference. Unknown name or tag is a fatal
// resolve error; the builder never retries it.
func (c *Catalog) Resolve(ref image.Ref) (*BaseImage, error) {
	tarPath := filepath.Join(c.root, ref.Name, ref.Tag+".tar")
	info, err := os.Stat(tarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CategoryResolve, "basefetch",
				"base image %s not in catalog %s", ref, c.root)
		}
		return nil, errors.New(errors.CategoryIO, "basefetch", fmt.Sprintf("stat %s", tarPath), err)
	}

	base := &BaseImage{Ref: ref, TarPath: tarPath, Size: info.Size()}
	metaPath := filepath.Join(c.root, ref.Name, ref.Tag+".json")
	if raw, err := os.ReadFile(metaPath); err == nil {
		if err := json.Unmarshal(raw, &base.Meta); err != nil {
			return nil, errors.New(errors.CategoryResolve, "basefetch",
				fmt.Sprintf("decode metadata for %s", ref), err)
		}
	}
	logger.Debugf("resolved base %s -> %s (%d bytes)", ref, tarPath, base.Size)
	return base, nil
}

// List returns every reference present in the catalog, sorted.
func (c *Catalog) List() ([]image.Ref, error) {
	var refs []image.Ref
	names, err := os.ReadDir(c.root)
	if err != nil {
		return nil, errors.New(errors.CategoryIO, "basefetch", "list catalog", err)
	}
	for _, name := range names {
		if !name.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(c.root, name.Name()))
		if err != nil {
			return nil, errors.New(errors.CategoryIO, "basefetch", "list catalog entry", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar") {
				continue
			}
			refs = append(refs, image.Ref{Name: name.Name(), Tag: strings.TrimSuffix(e.Name(), ".tar")})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs, nil
}
