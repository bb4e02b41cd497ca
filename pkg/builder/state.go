package builder

import (
	"time"

	"slipway/pkg/basefetch"
	"slipway/pkg/image"
	"slipway/pkg/manifest"
	"slipway/pkg/recipe"
)

// State is threaded through every build stage. Stages fill it in
// strictly in declared order; nothing here is shared across builds.
type State struct {
	Recipe     *recipe.Recipe
	ContextDir string
	// TargetRef is the name:tag the committed image is saved under.
	TargetRef image.Ref

	// StagingDir is the image tree under construction. It is discarded
	// whether or not the build succeeds; only committed layers survive.
	StagingDir string

	Base     *basefetch.BaseImage
	Manifest *manifest.Manifest
	// Config accumulates the run-time contract committed into the image.
	Config image.Config
	// CopiedFiles counts files materialized from the build context.
	CopiedFiles int
	// DepsInstalled is set when the install stage staged a vendor tree.
	DepsInstalled bool

	// Image is set by the commit stage.
	Image *image.Image
}

// StageTiming records how long one stage ran.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Result is a successful build.
type Result struct {
	Image   *image.Image
	Timings []StageTiming
}
