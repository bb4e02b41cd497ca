package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Ref
		wantErr bool
	}{
		{name: "pinned", in: "python:3.11-slim", want: Ref{Name: "python", Tag: "3.11-slim"}},
		{name: "custom tag", in: "dashboard:v2", want: Ref{Name: "dashboard", Tag: "v2"}},
		{name: "whitespace trimmed", in: "  app:1.0  ", want: Ref{Name: "app", Tag: "1.0"}},
		{name: "missing tag", in: "python", wantErr: true},
		{name: "empty tag", in: "python:", wantErr: true},
		{name: "empty name", in: ":3.11", wantErr: true},
		{name: "latest rejected", in: "python:latest", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "name with slash", in: "a/b:1.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRefString(t *testing.T) {
	assert.Equal(t, "python:3.11-slim", Ref{Name: "python", Tag: "3.11-slim"}.String())
}
