// Package recipe loads and validates the declarative build recipe that
// replaces a Dockerfile: pinned base image, working directory, copy
// rules, dependency manifest, declared port and entrypoint.
package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"slipway/pkg/errors"
	"slipway/pkg/image"
)

// CopyRules is the explicit include/exclude manifest applied when the
// build context is materialized. Patterns use gitignore syntax.
type CopyRules struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Recipe is one declarative build.
type Recipe struct {
	// Base is the pinned base image reference, e.g. python:3.11-slim.
	Base string `json:"base"`
	// Workdir is the absolute working directory inside the image.
	Workdir string    `json:"workdir"`
	Copy    CopyRules `json:"copy"`
	// Manifest names the dependency manifest inside the build context.
	Manifest string `json:"manifest"`
	// Expose is the TCP port the entry process must bind. It feeds both
	// the image metadata and the runtime health check.
	Expose int `json:"expose"`
	// Entrypoint is the argv of the single container process.
	Entrypoint []string          `json:"entrypoint"`
	Env        map[string]string `json:"env,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// Default returns the contract of the original dashboard image:
// python 3.11 slim base, everything copied into /app, pip manifest,
// port 8050, python app.py as the entry process.
func Default() *Recipe {
	return &Recipe{
		Base:       "python:3.11-slim",
		Workdir:    "/app",
		Manifest:   "requirements.txt",
		Expose:     8050,
		Entrypoint: []string{"python", "app.py"},
	}
}

// Load reads, parses and validates a recipe file. A recipe that fails
// validation never reaches the builder.
func Load(path string) (*Recipe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CategoryConfig, "recipe", fmt.Sprintf("read recipe %s", path), err)
	}
	return Parse(raw)
}

// Parse parses recipe YAML, applies defaults and validates.
func Parse(raw []byte) (*Recipe, error) {
	r := &Recipe{}
	if err := yaml.UnmarshalStrict(raw, r); err != nil {
		return nil, errors.New(errors.CategoryConfig, "recipe", "parse recipe", err)
	}
	r.applyDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recipe) applyDefaults() {
	if r.Workdir == "" {
		r.Workdir = "/app"
	}
	if r.Manifest == "" {
		r.Manifest = "requirements.txt"
	}
}

// Validate checks the recipe against the build contract. All failures
// are fatal config errors.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Base) == "" {
		return errors.Newf(errors.CategoryConfig, "recipe", "base image is required")
	}
	if _, err := image.ParseRef(r.Base); err != nil {
		return err
	}
	if !strings.HasPrefix(r.Workdir, "/") {
		return errors.Newf(errors.CategoryConfig, "recipe", "workdir %q must be absolute", r.Workdir)
	}
	if r.Expose < 1 || r.Expose > 65535 {
		return errors.Newf(errors.CategoryConfig, "recipe", "expose %d outside 1..65535", r.Expose)
	}
	if len(r.Entrypoint) == 0 {
		return errors.Newf(errors.CategoryConfig, "recipe", "entrypoint is required")
	}
	for _, arg := range r.Entrypoint {
		if strings.TrimSpace(arg) == "" {
			return errors.Newf(errors.CategoryConfig, "recipe", "entrypoint contains an empty argument")
		}
	}
	if r.Manifest != filepath.Base(r.Manifest) || r.Manifest == "." {
		return errors.Newf(errors.CategoryConfig, "recipe", "manifest %q must be a bare filename in the build context", r.Manifest)
	}
	return nil
}

// BaseRef returns the parsed base reference. Only valid after a
// successful Validate.
func (r *Recipe) BaseRef() image.Ref {
	ref, _ := image.ParseRef(r.Base)
	return ref
}
