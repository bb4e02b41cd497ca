package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"slipway/pkg/errors"
	"slipway/pkg/image"
	"slipway/pkg/logger"
)

// Manager materializes containers from the image store and tracks
// them by ID and name.
type Manager struct {
	store  *image.Store
	runDir string

	mu         sync.Mutex
	containers map[string]*Container
}

// NewManager returns a Manager keeping instance rootfs trees under runDir.
func NewManager(store *image.Store, runDir string) (*Manager, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, errors.New(errors.CategoryIO, "manager", fmt.Sprintf("create run directory %s", runDir), err)
	}
	return &Manager{store: store, runDir: runDir, containers: map[string]*Container{}}, nil
}

// Create materializes every image layer, in order, into a fresh
// instance rootfs and returns a created container.
func (m *Manager) Create(ctx context.Context, img *image.Image, opts Options) (*Container, error) {
	if len(img.Config.Entrypoint) == 0 {
		return nil, errors.Newf(errors.CategoryRuntime, "create", "image %s has no entrypoint", img.Ref)
	}
	opts.applyDefaults()

	id := uuid.NewString()
	rootfs := filepath.Join(m.runDir, id, "rootfs")
	if err := os.MkdirAll(rootfs, 0o755); err != nil {
		return nil, errors.New(errors.CategoryIO, "create", "create instance rootfs", err)
	}

	for _, layer := range img.Layers {
		if err := ctx.Err(); err != nil {
			os.RemoveAll(filepath.Join(m.runDir, id))
			return nil, errors.New(errors.CategoryRuntime, "create", "create cancelled", err)
		}
		rc, err := m.store.OpenBlob(layer.Digest)
		if err != nil {
			os.RemoveAll(filepath.Join(m.runDir, id))
			return nil, err
		}
		err = image.Untar(rootfs, rc)
		rc.Close()
		if err != nil {
			os.RemoveAll(filepath.Join(m.runDir, id))
			return nil, err
		}
	}

	workdir := filepath.Join(rootfs, img.Config.WorkDir)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		os.RemoveAll(filepath.Join(m.runDir, id))
		return nil, errors.New(errors.CategoryIO, "create", "create working directory", err)
	}

	name := opts.Name
	if name == "" {
		name = img.Ref.Name + "-" + shortID(id)
	}

	c := &Container{
		id:      id,
		name:    name,
		img:     img,
		rootfs:  rootfs,
		workdir: workdir,
		opts:    opts,
		status:  StatusCreated,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.containers {
		if existing.name == name {
			os.RemoveAll(filepath.Join(m.runDir, id))
			return nil, errors.Newf(errors.CategoryRuntime, "create", "container name %q already in use", name)
		}
	}
	m.containers[id] = c
	logger.Infof("created container %s (%s) from %s", name, shortID(id), img.Ref)
	return c, nil
}

// Run is the full serve path: create, start, verify the port contract.
// On a failed health check the container is already stopped.
func (m *Manager) Run(ctx context.Context, img *image.Image, opts Options) (*Container, error) {
	c, err := m.Create(ctx, img, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return c, err
	}
	if err := c.HealthCheck(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Get finds a container by full ID, ID prefix, or name.
func (m *Manager) Get(key string) (*Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.containers[key]; ok {
		return c, nil
	}
	var match *Container
	for id, c := range m.containers {
		if strings.HasPrefix(id, key) || c.name == key {
			if match != nil {
				return nil, errors.Newf(errors.CategoryRuntime, "get", "container key %q is ambiguous", key)
			}
			match = c
		}
	}
	if match == nil {
		return nil, errors.Newf(errors.CategoryRuntime, "get", "no container matches %q", key)
	}
	return match, nil
}

// List returns all tracked containers sorted by name.
func (m *Manager) List() []*Container {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Container, 0, len(m.containers))
	for _, c := range m.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// StopAll stops every container; used on shutdown.
func (m *Manager) StopAll(ctx context.Context) error {
	var firstErr error
	for _, c := range m.List() {
		if err := c.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Remove forgets a container and deletes its instance rootfs. Running
// containers must be stopped first.
func (m *Manager) Remove(c *Container) error {
	if c.Status() == StatusRunning {
		return errors.Newf(errors.CategoryRuntime, "remove", "container %s is running", shortID(c.id))
	}
	m.mu.Lock()
	delete(m.containers, c.id)
	m.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(m.runDir, c.id)); err != nil {
		return errors.New(errors.CategoryIO, "remove", "delete instance rootfs", err)
	}
	return nil
}
