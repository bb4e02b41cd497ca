package builder

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"slipway/pkg/errors"
	"slipway/pkg/recipe"
)

// defaultExcludes are never copied into an image. Build metadata and
// VCS state have no business in the runtime filesystem.
var defaultExcludes = []string{
	".git/",
	".slipwayignore",
	"__pycache__/",
	"*.pyc",
	".DS_Store",
}

// ignoreFileName is honored in the build context root, in addition to
// the recipe's copy rules.
const ignoreFileName = ".slipwayignore"

// contextMatcher decides which build context paths are materialized.
type contextMatcher struct {
	exclude *ignore.GitIgnore
	include *ignore.GitIgnore
}

// newContextMatcher compiles the recipe copy rules plus the context's
// .slipwayignore into a matcher.
func newContextMatcher(contextDir string, rules recipe.CopyRules) (*contextMatcher, error) {
	patterns := append([]string{}, defaultExcludes...)
	patterns = append(patterns, rules.Exclude...)

	ignorePath := filepath.Join(contextDir, ignoreFileName)
	if raw, err := os.ReadFile(ignorePath); err == nil {
		patterns = append(patterns, strings.Split(string(raw), "\n")...)
	} else if !os.IsNotExist(err) {
		return nil, errors.New(errors.CategoryIO, "copy-source", "read "+ignoreFileName, err)
	}

	m := &contextMatcher{exclude: ignore.CompileIgnoreLines(patterns...)}
	if len(rules.Include) > 0 {
		m.include = ignore.CompileIgnoreLines(rules.Include...)
	}
	return m, nil
}

// skipDir reports whether a directory subtree can be pruned entirely.
func (m *contextMatcher) skipDir(relPath string) bool {
	return m.exclude.MatchesPath(relPath + "/")
}

// copies reports whether a file at relPath is copied into the image.
func (m *contextMatcher) copies(relPath string) bool {
	if m.exclude.MatchesPath(relPath) {
		return false
	}
	if m.include != nil {
		return m.include.MatchesPath(relPath)
	}
	return true
}
