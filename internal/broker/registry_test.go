// internal/broker/registry_test.go
package broker

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markysoft/vani/api/schemas"
)

func TestRegistry_KeyFormat(t *testing.T) {
	r := NewRegistry("", "")
	id := r.Store("x")

	require.True(t, strings.HasPrefix(id.String(), "vani.jqueryCache."))
	_, err := uuid.Parse(strings.TrimPrefix(id.String(), "vani.jqueryCache."))
	assert.NoError(t, err)
	assert.True(t, r.Owns(id.String()))
	assert.False(t, r.Owns("vani.jqueryCache."))
	assert.False(t, r.Owns("other.jqueryCache.abc"))

	custom := NewRegistry("app", "objects")
	assert.Equal(t, "app.objects.", custom.Prefix())
}

func TestRegistry_StoreLookup(t *testing.T) {
	r := NewRegistry("", "")
	obj := &struct{ n int }{n: 7}

	id := r.Store(obj)
	got, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Same(t, obj, got)

	_, ok = r.Lookup(schemas.HandleID("vani.jqueryCache.missing"))
	assert.False(t, ok)
}

func TestRegistry_SameObjectTwiceGetsTwoKeys(t *testing.T) {
	r := NewRegistry("", "")
	obj := "shared"

	a := r.Store(obj)
	b := r.Store(obj)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RetriesOnCollision(t *testing.T) {
	r := NewRegistry("", "")
	ids := []string{"dup", "dup", "fresh"}
	r.newID = func() string {
		next := ids[0]
		ids = ids[1:]
		return next
	}

	first := r.Store(1)
	second := r.Store(2)
	assert.Equal(t, schemas.HandleID("vani.jqueryCache.dup"), first)
	assert.Equal(t, schemas.HandleID("vani.jqueryCache.fresh"), second)

	v, _ := r.Lookup(first)
	assert.Equal(t, 1, v)
}

func TestRegistry_ConcurrentStore(t *testing.T) {
	r := NewRegistry("", "")
	const workers, perWorker = 8, 200

	var wg sync.WaitGroup
	seen := sync.Map{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := r.Store(fmt.Sprintf("%d-%d", w, i))
				_, dup := seen.LoadOrStore(id, struct{}{})
				assert.False(t, dup)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, workers*perWorker, r.Len())
}

func TestRegistry_LongSessionNeverEvicts(t *testing.T) {
	r := NewRegistry("", "")
	first := r.Store("first")
	for i := 0; i < 10000; i++ {
		r.Store(i)
	}

	assert.Equal(t, 10001, r.Len(), "the registry has no size bound")
	v, ok := r.Lookup(first)
	require.True(t, ok)
	assert.Equal(t, "first", v)
}
