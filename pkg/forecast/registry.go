package forecast

import (
	"sync"
	"sync/atomic"

	"github.com/HatiCode/respond/pkg/models"
)

// Source yields the model currently being served, or nil.
type Source interface {
	Current() *models.Handle
}

// Registry holds the served model handle. Readers always see a complete
// handle; Reload swaps it wholesale and leaves the previous one in place on
// failure.
type Registry struct {
	path    string
	current atomic.Pointer[models.Handle]
	mu      sync.Mutex // serialises reloads
}

// NewRegistry creates an empty registry for the artifact at path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Path returns the artifact location.
func (r *Registry) Path() string { return r.path }

// Current returns the loaded handle or nil.
func (r *Registry) Current() *models.Handle {
	return r.current.Load()
}

// Set installs h directly.
func (r *Registry) Set(h *models.Handle) {
	r.current.Store(h)
}

// Reload reads the artifact from disk and installs it.
func (r *Registry) Reload() (*models.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := models.LoadHandle(r.path)
	if err != nil {
		return nil, err
	}
	r.current.Store(h)
	return h, nil
}
