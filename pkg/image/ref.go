package image

import (
	"strings"

	"slipway/pkg/errors"
)

// Ref names an image as name:tag. Tags are mandatory everywhere in
// slipway; an unpinned reference is rejected at parse time.
type Ref struct {
	Name string
	Tag  string
}

func (r Ref) String() string {
	return r.Name + ":" + r.Tag
}

// ParseRef splits a name:tag reference. The tag must be present and
// must not be "latest" so that builds stay reproducible.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, errors.Newf(errors.CategoryConfig, "ref", "empty image reference")
	}
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return Ref{}, errors.Newf(errors.CategoryConfig, "ref", "reference %q must be pinned as name:tag", s)
	}
	name, tag := s[:idx], s[idx+1:]
	if strings.ContainsAny(name, " \t/\\") {
		return Ref{}, errors.Newf(errors.CategoryConfig, "ref", "invalid image name %q", name)
	}
	if tag == "latest" {
		return Ref{}, errors.Newf(errors.CategoryConfig, "ref", "floating tag %q is not allowed, pin a version", tag)
	}
	return Ref{Name: name, Tag: tag}, nil
}
