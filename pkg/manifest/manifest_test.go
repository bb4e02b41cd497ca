package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipway/pkg/errors"
)

func TestParse(t *testing.T) {
	input := `
# dashboard dependencies
dash==2.9.0
pandas>=1.5
plotly
dash-bootstrap-components==1.4.1  # dark theme
gunicorn ; python_version >= "3.8"
`
	m, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, m.Requirements, 5)

	assert.Equal(t, Requirement{Name: "dash", Constraint: "==2.9.0"}, m.Requirements[0])
	assert.Equal(t, Requirement{Name: "pandas", Constraint: ">=1.5"}, m.Requirements[1])
	assert.Equal(t, Requirement{Name: "plotly"}, m.Requirements[2])
	assert.Equal(t, Requirement{Name: "dash-bootstrap-components", Constraint: "==1.4.1"}, m.Requirements[3])
	assert.Equal(t, "gunicorn", m.Requirements[4].Name)
	assert.Equal(t, `python_version >= "3.8"`, m.Requirements[4].Marker)
}

func TestParseConstraintOperators(t *testing.T) {
	tests := []struct {
		line       string
		constraint string
	}{
		{"a==1.0", "==1.0"},
		{"a>=1.0", ">=1.0"},
		{"a<=1.0", "<=1.0"},
		{"a~=1.0", "~=1.0"},
		{"a!=1.0", "!=1.0"},
		{"a<2", "<2"},
		{"a>1", ">1"},
		{"a >= 1.0, < 2.0", ">=1.0,<2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			m, err := Parse(strings.NewReader(tt.line))
			require.NoError(t, err)
			require.Len(t, m.Requirements, 1)
			assert.Equal(t, "a", m.Requirements[0].Name)
			assert.Equal(t, tt.constraint, m.Requirements[0].Constraint)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, input := range []string{
		"==2.9.0",            // no name
		"bad name==1.0",      // space in name
		"-leading==1.0",      // bad first character
		"dash==1.0\nDash>=2", // duplicate, case-folded
		"a_b==1\na-b==2",     // duplicate after normalization
	} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryManifest), "got %v", err)
		})
	}
}

func TestParseExtras(t *testing.T) {
	m, err := Parse(strings.NewReader("uvicorn[standard]==0.22.0"))
	require.NoError(t, err)
	assert.Equal(t, "uvicorn[standard]", m.Requirements[0].Name)
	assert.Equal(t, "==0.22.0", m.Requirements[0].Constraint)
}

func TestRequirementString(t *testing.T) {
	r := Requirement{Name: "dash", Constraint: "==2.9.0"}
	assert.Equal(t, "dash==2.9.0", r.String())

	r.Marker = `python_version >= "3.8"`
	assert.Equal(t, `dash==2.9.0 ; python_version >= "3.8"`, r.String())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte("dash==2.9.0\n"), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.Path)
	require.Len(t, m.Requirements, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryManifest))
}
