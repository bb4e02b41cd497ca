package image

import (
	stderrors "errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipway/pkg/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestWriteBlobContentAddressed(t *testing.T) {
	s := testStore(t)

	d1, size, err := s.WriteBlob(strings.NewReader("layer data"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	assert.True(t, s.HasBlob(d1))

	// Same content, same digest, still one blob.
	d2, _, err := s.WriteBlob(strings.NewReader("layer data"))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	rc, err := s.OpenBlob(d1)
	require.NoError(t, err)
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "layer data", string(raw))

	require.NoError(t, s.VerifyBlob(d1))
}

func TestVerifyBlobDetectsCorruption(t *testing.T) {
	s := testStore(t)
	d, _, err := s.WriteBlob(strings.NewReader("good bytes"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.blobPath(d), []byte("tampered"), 0o644))
	assert.Error(t, s.VerifyBlob(d))
}

func testImage(t *testing.T, s *Store, ref Ref) *Image {
	t.Helper()
	d, size, err := s.WriteBlob(strings.NewReader("app layer"))
	require.NoError(t, err)
	img := &Image{
		Ref: ref,
		Config: Config{
			BaseRef:     "python:3.11-slim",
			WorkDir:     "/app",
			ExposedPort: 8050,
			Entrypoint:  []string{"python", "app.py"},
		},
		Layers: []Layer{{MediaType: MediaTypeLayer, Digest: d, Size: size}},
	}
	_, err = img.ComputeID()
	require.NoError(t, err)
	return img
}

func TestSaveResolveRoundtrip(t *testing.T) {
	s := testStore(t)
	ref := Ref{Name: "dashboard", Tag: "v1"}
	img := testImage(t, s, ref)

	require.NoError(t, s.Save(img))

	got, err := s.Resolve(ref)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)
	assert.Equal(t, img.Config, got.Config)
	assert.Equal(t, img.Layers, got.Layers)
	assert.Equal(t, ref, got.Ref)
}

func TestSaveRejectsMissingBlob(t *testing.T) {
	s := testStore(t)
	img := testImage(t, s, Ref{Name: "dashboard", Tag: "v1"})
	img.Layers[0].Digest = "sha256:0000000000000000000000000000000000000000000000000000000000000000"
	img.ID = "" // force recompute

	err := s.Save(img)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIO))
}

func TestResolveUnknownIsResolveError(t *testing.T) {
	s := testStore(t)

	_, err := s.Resolve(Ref{Name: "nope", Tag: "v1"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Category: errors.CategoryResolve}))
}

func TestListAndRemove(t *testing.T) {
	s := testStore(t)
	refA := Ref{Name: "alpha", Tag: "1"}
	refB := Ref{Name: "beta", Tag: "2"}
	require.NoError(t, s.Save(testImage(t, s, refA)))
	require.NoError(t, s.Save(testImage(t, s, refB)))

	imgs, err := s.List()
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, "alpha:1", imgs[0].Ref.String())
	assert.Equal(t, "beta:2", imgs[1].Ref.String())

	require.NoError(t, s.Remove(refA))
	imgs, err = s.List()
	require.NoError(t, err)
	require.Len(t, imgs, 1)

	err = s.Remove(refA)
	assert.True(t, errors.IsCategory(err, errors.CategoryResolve))
}
