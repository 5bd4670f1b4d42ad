// internal/broker/broker_test.go
package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markysoft/vani/api/schemas"
)

type selection struct{ selector string }

func (s *selection) WrapperKind() string { return "selection" }

// mockMethod records calls made through a MethodFunc.
type mockMethod struct{ mock.Mock }

func (m *mockMethod) call(ctx context.Context, args []interface{}) (interface{}, error) {
	ret := m.Called(args)
	return ret.Get(0), ret.Error(1)
}

func newTestBroker(t *testing.T) *Broker {
	return New(NewRegistry("", ""), WithLogger(zaptest.NewLogger(t)))
}

func TestInvoke_ReturnsPlainValue(t *testing.T) {
	b := newTestBroker(t)
	m := new(mockMethod)
	m.On("call", []interface{}{2, 3}).Return(5, nil).Once()
	require.NoError(t, b.Register("math", MethodTable{"add": m.call}))

	res, err := b.Invoke(context.Background(), "math", "add", []interface{}{2, 3})
	require.NoError(t, err)
	assert.Equal(t, schemas.ValueResult(5), res)
	assert.Equal(t, 0, b.Registry().Len())
	m.AssertExpectations(t)
}

func TestInvoke_WrapsLibraryObjects(t *testing.T) {
	b := newTestBroker(t)
	find := func(ctx context.Context, args []interface{}) (interface{}, error) {
		return &selection{selector: args[0].(string)}, nil
	}
	b.SetRoot(MethodTable{"find": find})

	first, err := b.Invoke(context.Background(), "", "find", []interface{}{".item"})
	require.NoError(t, err)
	second, err := b.Invoke(context.Background(), "", "find", []interface{}{".item"})
	require.NoError(t, err)

	require.True(t, first.IsHandle())
	require.True(t, second.IsHandle())
	assert.NotEqual(t, first.Handle, second.Handle)
	assert.Equal(t, 2, b.Registry().Len())

	obj, ok := b.Registry().Lookup(first.Handle)
	require.True(t, ok)
	assert.Equal(t, ".item", obj.(*selection).selector)
}

func TestInvoke_FallsBackToRoot(t *testing.T) {
	b := newTestBroker(t)
	b.SetRoot(MethodTable{"who": func(context.Context, []interface{}) (interface{}, error) { return "root", nil }})
	require.NoError(t, b.Register("named", MethodTable{"who": func(context.Context, []interface{}) (interface{}, error) { return "named", nil }}))

	testCases := map[string]string{
		"":           "root",
		"unknownRef": "root",
		"named":      "named",
	}
	for ref, want := range testCases {
		res, err := b.Invoke(context.Background(), ref, "who", nil)
		require.NoError(t, err)
		assert.Equal(t, want, res.Value, "ref %q", ref)
	}
}

func TestInvoke_Errors(t *testing.T) {
	ctx := context.Background()

	b := newTestBroker(t)
	_, err := b.Invoke(ctx, "", "anything", nil)
	assert.ErrorIs(t, err, ErrNoTarget)

	b.SetRoot(MethodTable{})
	_, err = b.Invoke(ctx, "", "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	boom := errors.New("selector is invalid")
	b.SetRoot(MethodTable{"find": func(context.Context, []interface{}) (interface{}, error) { return nil, boom }})
	_, err = b.Invoke(ctx, "", "find", []interface{}{"::"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.Registry().Len())
}

func TestInvoke_NilAndFalsyValuesPassThrough(t *testing.T) {
	b := newTestBroker(t)
	b.SetRoot(MethodTable{
		"nothing": func(context.Context, []interface{}) (interface{}, error) { return nil, nil },
		"zero":    func(context.Context, []interface{}) (interface{}, error) { return 0, nil },
	})

	res, err := b.Invoke(context.Background(), "", "nothing", nil)
	require.NoError(t, err)
	assert.Equal(t, schemas.ValueResult(nil), res)

	res, err = b.Invoke(context.Background(), "", "zero", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Value)
}

func TestWithWrappedPredicate(t *testing.T) {
	b := New(nil, WithWrappedPredicate(func(v interface{}) bool {
		_, isMap := v.(map[string]int)
		return isMap
	}))
	b.SetRoot(MethodTable{
		"obj": func(context.Context, []interface{}) (interface{}, error) { return map[string]int{"a": 1}, nil },
		"sel": func(context.Context, []interface{}) (interface{}, error) { return &selection{}, nil },
	})

	res, err := b.Invoke(context.Background(), "", "obj", nil)
	require.NoError(t, err)
	assert.True(t, res.IsHandle())

	res, err = b.Invoke(context.Background(), "", "sel", nil)
	require.NoError(t, err)
	assert.False(t, res.IsHandle())
}

func TestRegister_Validation(t *testing.T) {
	b := newTestBroker(t)
	assert.Error(t, b.Register("", MethodTable{}))
	assert.Error(t, b.Register("x", nil))
}

func TestDeref(t *testing.T) {
	b := newTestBroker(t)
	obj := &selection{selector: "a"}
	id := b.Registry().Store(obj)

	out, err := b.Deref([]interface{}{string(id), "plain", 3, []interface{}{id}})
	require.NoError(t, err)
	assert.Same(t, obj, out[0])
	assert.Equal(t, "plain", out[1])
	assert.Equal(t, 3, out[2])
	assert.Same(t, obj, out[3].([]interface{})[0])

	_, err = b.Deref([]interface{}{"vani.jqueryCache.never-issued"})
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestInvoke_HandleRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	b.SetRoot(MethodTable{
		"find": func(_ context.Context, args []interface{}) (interface{}, error) {
			return &selection{selector: args[0].(string)}, nil
		},
		"selector": func(_ context.Context, args []interface{}) (interface{}, error) {
			sel, ok := args[0].(*selection)
			if !ok {
				return nil, errors.New("expected a selection")
			}
			return sel.selector, nil
		},
	})
	ctx := context.Background()

	res, err := b.Invoke(ctx, "", "find", []interface{}{"#main"})
	require.NoError(t, err)

	args, err := b.Deref([]interface{}{res.Interface()})
	require.NoError(t, err)
	res, err = b.Invoke(ctx, "", "selector", args)
	require.NoError(t, err)
	assert.Equal(t, "#main", res.Value)
}
