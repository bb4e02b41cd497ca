package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"slipway/pkg/basefetch"
	"slipway/pkg/errors"
	"slipway/pkg/image"
	"slipway/pkg/logger"
	"slipway/pkg/manifest"
)

// Stage is one step of the build pipeline. Stages run strictly in
// declared order; the first failure aborts the build.
type Stage interface {
	Name() string
	Run(ctx context.Context, state *State) error
}

// vendorDir is where installed dependencies land, relative to the
// image working directory. The entry process finds it via PYTHONPATH.
const vendorDir = "vendor"

// resolveBase pins the base image from the catalog. A missing tag is
// fatal and never retried.
type resolveBase struct {
	catalog *basefetch.Catalog
}

func (s *resolveBase) Name() string { return "resolve-base" }

func (s *resolveBase) Run(ctx context.Context, state *State) error {
	base, err := s.catalog.Resolve(state.Recipe.BaseRef())
	if err != nil {
		return err
	}
	state.Base = base
	state.Config.BaseRef = base.Ref.String()
	return nil
}

// prepareWorkdir creates the staging tree and the working directory.
// Must run before any copy or install touches the staging tree.
type prepareWorkdir struct{}

func (s *prepareWorkdir) Name() string { return "prepare-workdir" }

func (s *prepareWorkdir) Run(ctx context.Context, state *State) error {
	workdir := filepath.Join(state.StagingDir, state.Recipe.Workdir)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return errors.New(errors.CategoryIO, s.Name(), "create working directory", err)
	}
	state.Config.WorkDir = state.Recipe.Workdir
	return nil
}

// copySource materializes the build context into the working
// directory, honoring the recipe's include/exclude rules.
type copySource struct{}

func (s *copySource) Name() string { return "copy-source" }

func (s *copySource) Run(ctx context.Context, state *State) error {
	matcher, err := newContextMatcher(state.ContextDir, state.Recipe.Copy)
	if err != nil {
		return err
	}
	dstRoot := filepath.Join(state.StagingDir, state.Recipe.Workdir)

	err = filepath.Walk(state.ContextDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(state.ContextDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if matcher.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			logger.Debugf("skipping irregular file %s", rel)
			return nil
		}
		if !matcher.copies(rel) {
			logger.Debugf("excluded from copy: %s", rel)
			return nil
		}
		if err := copyFile(path, filepath.Join(dstRoot, rel), info.Mode()); err != nil {
			return err
		}
		state.CopiedFiles++
		return nil
	})
	if err != nil {
		return errors.Wrap(errors.CategoryIO, s.Name(), "materialize build context", err)
	}
	if state.CopiedFiles == 0 {
		return errors.Newf(errors.CategoryBuild, s.Name(), "build context %s produced no files after copy rules", state.ContextDir)
	}
	logger.Infof("copied %d files from %s", state.CopiedFiles, state.ContextDir)
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// installDeps parses the dependency manifest and installs it into the
// staged vendor tree. Any unresolved requirement aborts the build; the
// staging tree is discarded by the builder so no partial install
// survives.
type installDeps struct {
	installer manifest.Installer
}

func (s *installDeps) Name() string { return "install-deps" }

func (s *installDeps) Run(ctx context.Context, state *State) error {
	manifestPath := filepath.Join(state.ContextDir, state.Recipe.Manifest)
	if _, err := os.Stat(manifestPath); err != nil {
		return errors.New(errors.CategoryManifest, s.Name(),
			fmt.Sprintf("dependency manifest %s not found in build context", state.Recipe.Manifest), err)
	}
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	state.Manifest = m
	if len(m.Requirements) == 0 {
		return nil
	}

	target := filepath.Join(state.StagingDir, state.Recipe.Workdir, vendorDir)
	if err := s.installer.Install(ctx, m, target); err != nil {
		return err
	}
	state.DepsInstalled = true
	return nil
}

// declarePort records the declared contact point in the image config.
// Declaration is metadata; the runtime health check enforces it.
type declarePort struct{}

func (s *declarePort) Name() string { return "declare-port" }

func (s *declarePort) Run(ctx context.Context, state *State) error {
	state.Config.ExposedPort = state.Recipe.Expose
	return nil
}

// setEntrypoint fixes the startup argv and merges environment: base
// metadata first, then recipe env, then the vendor path for installed
// dependencies.
type setEntrypoint struct{}

func (s *setEntrypoint) Name() string { return "entrypoint" }

func (s *setEntrypoint) Run(ctx context.Context, state *State) error {
	state.Config.Entrypoint = append([]string{}, state.Recipe.Entrypoint...)

	env := map[string]string{}
	for k, v := range state.Base.Meta.Env {
		env[k] = v
	}
	for k, v := range state.Recipe.Env {
		env[k] = v
	}
	if state.DepsInstalled {
		// Relative entry, resolved against the working directory.
		env["PYTHONPATH"] = vendorDir
	}
	if len(env) > 0 {
		state.Config.Env = env
	}
	if len(state.Recipe.Labels) > 0 {
		state.Config.Labels = state.Recipe.Labels
	}
	return nil
}

// commit turns the base tarball and the staged tree into store layers
// and tags the image. Nothing is tagged unless every prior stage
// succeeded.
type commit struct {
	store *image.Store
}

func (s *commit) Name() string { return "commit" }

func (s *commit) Run(ctx context.Context, state *State) error {
	baseTar, err := os.Open(state.Base.TarPath)
	if err != nil {
		return errors.New(errors.CategoryIO, s.Name(), "open base tarball", err)
	}
	baseDigest, baseSize, err := s.store.WriteBlob(baseTar)
	baseTar.Close()
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(image.TarDir(state.StagingDir, pw))
	}()
	appDigest, appSize, err := s.store.WriteBlob(pr)
	if err != nil {
		return err
	}

	img := &image.Image{
		Ref:     state.TargetRef,
		Created: time.Now().UTC(),
		Config:  state.Config,
		Layers: []image.Layer{
			{MediaType: image.MediaTypeLayer, Digest: baseDigest, Size: baseSize},
			{MediaType: image.MediaTypeLayer, Digest: appDigest, Size: appSize},
		},
	}
	img.Platform.OS = "linux"
	img.Platform.Architecture = hostArch()
	if _, err := img.ComputeID(); err != nil {
		return err
	}
	if err := s.store.Save(img); err != nil {
		return err
	}
	state.Image = img
	return nil
}
