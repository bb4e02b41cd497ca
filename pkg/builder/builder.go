// Package builder runs the staged build pipeline that turns a recipe
// plus a build context into a committed image: resolve the base, stage
// the working directory, copy sources, install dependencies, declare
// the port, fix the entrypoint, commit. Stages execute sequentially
// and the first failure aborts the build with nothing tagged.
package builder

import (
	"context"
	"fmt"
	"os"
	goruntime "runtime"
	"time"

	"slipway/pkg/basefetch"
	"slipway/pkg/errors"
	"slipway/pkg/image"
	"slipway/pkg/logger"
	"slipway/pkg/manifest"
	"slipway/pkg/recipe"
)

// Builder wires the stores and the installer into a build pipeline.
type Builder struct {
	Store     *image.Store
	Catalog   *basefetch.Catalog
	Installer manifest.Installer

	// OnStage, when set, is called with each stage name as it starts.
	// The CLI uses it to drive its spinner.
	OnStage func(name string)
}

// New returns a Builder over the given store and catalog.
func New(store *image.Store, catalog *basefetch.Catalog, installer manifest.Installer) *Builder {
	return &Builder{Store: store, Catalog: catalog, Installer: installer}
}

func (b *Builder) stages() []Stage {
	return []Stage{
		&resolveBase{catalog: b.Catalog},
		&prepareWorkdir{},
		&copySource{},
		&installDeps{installer: b.Installer},
		&declarePort{},
		&setEntrypoint{},
		&commit{store: b.Store},
	}
}

// Build runs the pipeline. The staging tree is always discarded; on
// success only the committed layers and the tagged manifest remain.
// Building the same recipe and context twice yields the same image ID.
func (b *Builder) Build(ctx context.Context, rec *recipe.Recipe, contextDir string, target image.Ref) (*Result, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	info, err := os.Stat(contextDir)
	if err != nil || !info.IsDir() {
		return nil, errors.Newf(errors.CategoryBuild, "build", "build context %s is not a directory", contextDir)
	}

	staging, err := os.MkdirTemp("", "slipway-build-*")
	if err != nil {
		return nil, errors.New(errors.CategoryIO, "build", "create staging directory", err)
	}
	defer os.RemoveAll(staging)

	state := &State{
		Recipe:     rec,
		ContextDir: contextDir,
		TargetRef:  target,
		StagingDir: staging,
	}

	var timings []StageTiming
	for _, stage := range b.stages() {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(errors.CategoryBuild, stage.Name(), "build cancelled", err)
		}
		if b.OnStage != nil {
			b.OnStage(stage.Name())
		}
		logger.Debugf("stage %s starting", stage.Name())
		started := time.Now()
		if err := stage.Run(ctx, state); err != nil {
			return nil, errors.New(errors.CategoryBuild, stage.Name(),
				fmt.Sprintf("build of %s aborted", target), err)
		}
		timings = append(timings, StageTiming{Name: stage.Name(), Duration: time.Since(started)})
		logger.Debugf("stage %s done in %s", stage.Name(), time.Since(started))
	}

	logger.Infof("built %s (%s) in %d stages", target, state.Image.ID, len(timings))
	return &Result{Image: state.Image, Timings: timings}, nil
}

func hostArch() string {
	return goruntime.GOARCH
}
