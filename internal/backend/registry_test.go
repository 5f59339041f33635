package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend scripts availability and load outcomes for registry tests.
type fakeBackend struct {
	name      string
	available bool
	loadErr   error
	loads     int
	unloads   int
}

func (f *fakeBackend) Name() string                       { return f.name }
func (f *fakeBackend) IsAvailable(_ context.Context) bool { return f.available }
func (f *fakeBackend) Unload(_ context.Context) error     { f.unloads++; return nil }
func (f *fakeBackend) HardwareInfo(_ context.Context) map[string]string {
	return map[string]string{"backend": f.name, "mode": "fake"}
}

func (f *fakeBackend) Load(_ context.Context, path string, cfg Config) (*LoadResult, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, WrapError(f.name, f.loadErr)
	}
	return &LoadResult{Backend: f.name, HardwareUsed: cfg.HardwareUsed(), LoadTimeMS: 5, MemoryMB: 100}, nil
}

func (f *fakeBackend) Generate(_ context.Context, prompt string, _ GenerationConfig) (string, error) {
	return "echo: " + prompt, nil
}

func newTestRegistry(t *testing.T, backends ...*fakeBackend) *Registry {
	t.Helper()
	reg := NewRegistry(zerolog.Nop())
	for _, b := range backends {
		require.NoError(t, reg.Register(b, Capability{CPU: true}))
	}
	return reg
}

func TestRegistryOrderAndLookup(t *testing.T) {
	a := &fakeBackend{name: "alpha", available: true}
	b := &fakeBackend{name: "beta", available: false}
	reg := newTestRegistry(t, a, b)

	assert.Equal(t, []string{"alpha", "beta"}, reg.Names())
	assert.Equal(t, 0, reg.Index("alpha"))
	assert.Equal(t, 1, reg.Index("beta"))
	assert.Equal(t, -1, reg.Index("gamma"))

	got, ok := reg.Get("beta")
	require.True(t, ok)
	assert.Equal(t, "beta", got.Name())

	_, ok = reg.Get("gamma")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := newTestRegistry(t, &fakeBackend{name: "alpha"})
	err := reg.Register(&fakeBackend{name: "alpha"}, Capability{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryAvailableFilters(t *testing.T) {
	a := &fakeBackend{name: "alpha", available: true}
	b := &fakeBackend{name: "beta", available: false}
	c := &fakeBackend{name: "gamma", available: true}
	reg := newTestRegistry(t, a, b, c)

	assert.Equal(t, []string{"alpha", "gamma"}, reg.Available(context.Background()))

	statuses := reg.Statuses()
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Available)
	assert.False(t, statuses[1].Available)
	assert.NotEmpty(t, statuses[1].Err)
	assert.False(t, statuses[0].LastChecked.IsZero())

	// Availability flips are picked up on the next refresh.
	b.available = true
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, reg.Available(context.Background()))
}

func TestRegistryMarkFailed(t *testing.T) {
	reg := newTestRegistry(t, &fakeBackend{name: "alpha", available: true})
	reg.MarkFailed("alpha", errors.New("model blew up"))

	statuses := reg.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "model blew up", statuses[0].Err)
}

func TestRegistryCapability(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	capability := Capability{GPUVendors: []string{"nvidia"}, CPU: true}
	require.NoError(t, reg.Register(&fakeBackend{name: "alpha"}, capability))

	got, ok := reg.Capability("alpha")
	require.True(t, ok)
	assert.Equal(t, capability, got)

	_, ok = reg.Capability("missing")
	assert.False(t, ok)
}

func TestBuildRegistryDefaultOrder(t *testing.T) {
	reg := BuildRegistry(Options{}, zerolog.Nop())
	assert.Equal(t, []string{NameLlamaCpp, NameLlamaServer, NameLlamaFile}, reg.Names())
}

func TestBuildRegistryCustomOrderSkipsUnknown(t *testing.T) {
	reg := BuildRegistry(Options{Order: []string{NameLlamaFile, "exllama", NameLlamaServer}}, zerolog.Nop())
	assert.Equal(t, []string{NameLlamaFile, NameLlamaServer}, reg.Names())
}
