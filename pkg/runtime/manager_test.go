package runtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipway/pkg/errors"
)

func TestManagerGetByIDPrefixAndName(t *testing.T) {
	m, store := newManager(t)
	img := buildTestImage(t, store, 8050, "/bin/sh", "-c", "true")

	c, err := m.Create(context.Background(), img, Options{Name: "dashboard"})
	require.NoError(t, err)

	byID, err := m.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, byID)

	byPrefix, err := m.Get(c.ID()[:8])
	require.NoError(t, err)
	assert.Same(t, c, byPrefix)

	byName, err := m.Get("dashboard")
	require.NoError(t, err)
	assert.Same(t, c, byName)

	_, err = m.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRuntime))
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	m, store := newManager(t)
	img := buildTestImage(t, store, 8050, "/bin/sh", "-c", "true")

	_, err := m.Create(context.Background(), img, Options{Name: "dashboard"})
	require.NoError(t, err)
	_, err = m.Create(context.Background(), img, Options{Name: "dashboard"})
	require.Error(t, err)
}

func TestManagerListSorted(t *testing.T) {
	m, store := newManager(t)
	img := buildTestImage(t, store, 8050, "/bin/sh", "-c", "true")

	_, err := m.Create(context.Background(), img, Options{Name: "zeta"})
	require.NoError(t, err)
	_, err = m.Create(context.Background(), img, Options{Name: "alpha"})
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name())
	assert.Equal(t, "zeta", list[1].Name())
}

func TestManagerStopAll(t *testing.T) {
	m, store := newManager(t)
	img := buildTestImage(t, store, 8050, "/bin/sh", "-c", "sleep 30")

	a, err := m.Create(context.Background(), img, Options{Name: "a", StopTimeout: 2 * time.Second})
	require.NoError(t, err)
	b, err := m.Create(context.Background(), img, Options{Name: "b", StopTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))

	require.NoError(t, m.StopAll(context.Background()))
	assert.Equal(t, StatusStopped, a.Status())
	assert.Equal(t, StatusStopped, b.Status())
}

func TestManagerRemove(t *testing.T) {
	m, store := newManager(t)
	img := buildTestImage(t, store, 8050, "/bin/sh", "-c", "sleep 30")

	c, err := m.Create(context.Background(), img, Options{Name: "doomed"})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	err = m.Remove(c)
	require.Error(t, err, "running containers cannot be removed")

	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, m.Remove(c))

	_, err = m.Get("doomed")
	assert.Error(t, err)
	_, err = os.Stat(c.Rootfs())
	assert.True(t, os.IsNotExist(err))
}

func TestManagerRunEnforcesPortContract(t *testing.T) {
	m, store := newManager(t)
	img := buildTestImage(t, store, freePort(t), "/bin/sh", "-c", "sleep 30")

	_, err := m.Run(context.Background(), img, Options{
		GracePeriod:   10 * time.Millisecond,
		HealthTimeout: 300 * time.Millisecond,
		StopTimeout:   2 * time.Second,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRuntime))
}
