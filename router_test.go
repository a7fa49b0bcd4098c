package cqrskit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerTestMessageA struct{}
type routerTestMessageB struct{}

// TestRouterLookupReturnsRegisteredHandler checks the basic register/lookup
// round trip.
func TestRouterLookupReturnsRegisteredHandler(t *testing.T) {
	r := NewRouter("test router", DefaultRaise)
	r.register(typeOf[routerTestMessageA](), false, "handler-a")

	handler, wantsWrapper, found := r.lookup(typeOf[routerTestMessageA]())
	require.True(t, found)
	assert.False(t, wantsWrapper)
	assert.Equal(t, "handler-a", handler)

	_, _, found = r.lookup(typeOf[routerTestMessageB]())
	assert.False(t, found)
}

// TestRouterDuplicateRegistrationPanics checks that registering a second
// handler for a type already registered is a programming error caught at
// registration time.
func TestRouterDuplicateRegistrationPanics(t *testing.T) {
	r := NewRouter("test router", DefaultRaise)
	r.register(typeOf[routerTestMessageA](), false, "first")

	assert.Panics(t, func() {
		r.register(typeOf[routerTestMessageA](), false, "second")
	})
}

// TestRouterDefaultRaiseMissError checks that a DefaultRaise router
// produces a usable ErrNoHandler naming the router and the message type.
func TestRouterDefaultRaiseMissError(t *testing.T) {
	r := NewRouter("test router", DefaultRaise)
	err := r.missError(typeOf[routerTestMessageA]())
	require.Error(t, err)

	var noHandler ErrNoHandler
	require.ErrorAs(t, err, &noHandler)
	assert.Equal(t, "test router", noHandler.RouterName)
	assert.Contains(t, noHandler.MessageType, "routerTestMessageA")
}

// TestTypeOfHandlesInterfaceTypes checks that typeOf recovers an
// interface's static type even though reflect.TypeOf alone cannot do this
// for a nil interface value.
func TestTypeOfHandlesInterfaceTypes(t *testing.T) {
	tp := typeOf[Command]()
	assert.Equal(t, "Command", tp.Name())
}
