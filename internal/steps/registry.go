package steps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/terracehq/terrace/pkg/catalog"
)

// TransformFunc builds one output dataset from the step's loaded inputs.
type TransformFunc func(ctx context.Context, sc *Context) (*catalog.Dataset, error)

// Transform is a registered step implementation. Version participates in
// the step's input checksum: bumping it marks every downstream dataset
// dirty without touching the data.
type Transform struct {
	URI     string
	Version string
	Fn      TransformFunc
}

// Registry holds transforms indexed by step URI.
type Registry struct {
	transforms map[string]Transform
	mu         sync.RWMutex
}

// NewRegistry creates an empty transform registry.
func NewRegistry() *Registry {
	return &Registry{transforms: make(map[string]Transform)}
}

// Register adds a transform. Panics on an invalid URI or a duplicate
// registration; both are authoring errors caught at init time.
func (r *Registry) Register(t Transform) {
	if _, err := Parse(t.URI); err != nil {
		panic(fmt.Sprintf("register transform: %v", err))
	}
	if t.Fn == nil {
		panic(fmt.Sprintf("register transform %s: nil function", t.URI))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transforms[t.URI]; exists {
		panic(fmt.Sprintf("transform already registered: %s", t.URI))
	}
	r.transforms[t.URI] = t
}

// Get returns the transform for the given step URI.
func (r *Registry) Get(uri string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[uri]
	return t, ok
}

// List returns all registered step URIs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uris := make([]string, 0, len(r.transforms))
	for uri := range r.transforms {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the global transform registry that init()-time
// registrations from the transforms packages land in.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a transform to the default registry.
func Register(t Transform) {
	defaultRegistry.Register(t)
}
