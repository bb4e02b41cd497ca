// Package manifest parses requirements.txt-style dependency manifests
// and installs them into a staged image tree. The manifest is consumed
// exactly once, at build time; any unresolved entry aborts the build.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"slipway/pkg/errors"
)

// Requirement is one declared third-party package.
type Requirement struct {
	// Name is the package name as written.
	Name string
	// Constraint is the version constraint including its operator,
	// e.g. "==2.9.0". Empty when the requirement is unpinned.
	Constraint string
	// Marker is the raw environment marker after ';', kept opaque.
	Marker string
}

// String renders the requirement back into manifest form.
func (r Requirement) String() string {
	s := r.Name + r.Constraint
	if r.Marker != "" {
		s += " ; " + r.Marker
	}
	return s
}

// Manifest is a parsed dependency manifest.
type Manifest struct {
	Path         string
	Requirements []Requirement
}

var (
	nameRe      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(\[[A-Za-z0-9,._-]+\])?$`)
	constraints = []string{"==", ">=", "<=", "~=", "!=", "<", ">"}
)

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.CategoryManifest, "parse", fmt.Sprintf("read manifest %s", path), err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

// Parse parses a manifest stream. Blank lines and '#' comments are
// skipped; duplicate package names are fatal so the installed set is
// unambiguous.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	seen := map[string]int{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		req, err := parseLine(line)
		if err != nil {
			return nil, errors.Newf(errors.CategoryManifest, "parse", "line %d: %v", lineNo, err)
		}
		key := normalizeName(req.Name)
		if prev, dup := seen[key]; dup {
			return nil, errors.Newf(errors.CategoryManifest, "parse",
				"line %d: duplicate requirement %q (first on line %d)", lineNo, req.Name, prev)
		}
		seen[key] = lineNo
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.CategoryManifest, "parse", "read manifest", err)
	}
	return m, nil
}

func parseLine(line string) (Requirement, error) {
	var req Requirement
	if i := strings.Index(line, ";"); i >= 0 {
		req.Marker = strings.TrimSpace(line[i+1:])
		line = strings.TrimSpace(line[:i])
	}

	spec := line
	for _, op := range constraints {
		if i := strings.Index(line, op); i >= 0 {
			spec = strings.TrimSpace(line[:i])
			req.Constraint = strings.ReplaceAll(strings.TrimSpace(line[i:]), " ", "")
			break
		}
	}
	req.Name = spec
	if req.Name == "" {
		return Requirement{}, fmt.Errorf("requirement has no package name")
	}
	if !nameRe.MatchString(req.Name) {
		return Requirement{}, fmt.Errorf("invalid package name %q", req.Name)
	}
	return req, nil
}

// normalizeName folds case and treats '-', '_' and '.' as equal, the
// same way pip deduplicates package names.
func normalizeName(name string) string {
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}
