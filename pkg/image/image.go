// Package image defines the slipway image model and the on-disk
// content-addressed store. An image is an ordered list of tar layers
// plus the run-time config the builder committed: working directory,
// declared port, entrypoint and environment.
package image

import (
	"encoding/json"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"slipway/pkg/errors"
)

// Config is the run-time contract baked into an image at build time.
type Config struct {
	// BaseRef is the pinned base image this image was built from.
	BaseRef string `json:"baseRef"`
	// WorkDir is the working directory of the entry process.
	WorkDir string `json:"workDir"`
	// ExposedPort is the declared TCP contact point. The runtime health
	// check verifies the entry process actually binds it.
	ExposedPort int `json:"exposedPort"`
	// Entrypoint is the argv of the single supervised process.
	Entrypoint []string          `json:"entrypoint"`
	Env        map[string]string `json:"env,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// Layer is one tar blob in the store.
type Layer struct {
	MediaType string        `json:"mediaType"`
	Digest    digest.Digest `json:"digest"`
	Size      int64         `json:"size"`
}

// Descriptor returns the layer as an OCI descriptor.
func (l Layer) Descriptor() ocispec.Descriptor {
	return ocispec.Descriptor{MediaType: l.MediaType, Digest: l.Digest, Size: l.Size}
}

// Image is a committed, immutable build result.
type Image struct {
	ID       digest.Digest    `json:"id"`
	Ref      Ref              `json:"-"`
	Created  time.Time        `json:"created"`
	Platform ocispec.Platform `json:"platform"`
	Config   Config           `json:"config"`
	Layers   []Layer          `json:"layers"`
}

// identity is the canonical form hashed into the image ID. Created is
// deliberately excluded: two builds from identical inputs must produce
// the same ID.
type identity struct {
	Config Config          `json:"config"`
	Layers []digest.Digest `json:"layers"`
}

// ComputeID derives the content-addressed image ID from config and
// layer digests and stamps it on the image.
func (img *Image) ComputeID() (digest.Digest, error) {
	id := identity{Config: img.Config}
	for _, l := range img.Layers {
		id.Layers = append(id.Layers, l.Digest)
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return "", errors.New(errors.CategoryIO, "image", "marshal image identity", err)
	}
	img.ID = digest.FromBytes(raw)
	return img.ID, nil
}
