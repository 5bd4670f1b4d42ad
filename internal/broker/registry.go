// internal/broker/registry.go
package broker

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/markysoft/vani/api/schemas"
)

const (
	DefaultNamespace    = "vani"
	DefaultRegistryName = "jqueryCache"
)

// Registry holds library objects handed out by key. Keys are never reused and
// entries are never evicted; a registry lives exactly as long as its page.
type Registry struct {
	prefix string

	mu      sync.RWMutex
	objects map[schemas.HandleID]interface{}

	newID func() string
}

// NewRegistry creates a registry whose keys look like
// "<namespace>.<name>.<uuid>".
func NewRegistry(namespace, name string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if name == "" {
		name = DefaultRegistryName
	}
	return &Registry{
		prefix:  namespace + "." + name + ".",
		objects: make(map[schemas.HandleID]interface{}),
		newID:   func() string { return uuid.New().String() },
	}
}

// Store files obj under a fresh key and returns it.
func (r *Registry) Store(obj interface{}) schemas.HandleID {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := schemas.HandleID(r.prefix + r.newID())
		if _, taken := r.objects[id]; taken {
			continue
		}
		r.objects[id] = obj
		return id
	}
}

// Lookup returns the object stored under id.
func (r *Registry) Lookup(id schemas.HandleID) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[id]
	return obj, ok
}

// Owns reports whether key has this registry's prefix, whether or not an
// object is stored under it.
func (r *Registry) Owns(key string) bool {
	return strings.HasPrefix(key, r.prefix) && len(key) > len(r.prefix)
}

// Prefix returns the key prefix, including the trailing dot.
func (r *Registry) Prefix() string { return r.prefix }

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
