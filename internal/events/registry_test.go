package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishInRegistrationOrder(t *testing.T) {
	r := NewRegistry()

	var got []string
	r.Attach(func(Event) { got = append(got, "first") })
	r.Attach(func(Event) { got = append(got, "second") })
	r.Attach(func(Event) { got = append(got, "third") })

	r.Publish(Event{Type: TypeMessage})
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestDetach(t *testing.T) {
	r := NewRegistry()

	calls := 0
	detach := r.Attach(func(Event) { calls++ })
	r.Publish(Event{Type: TypeMessage})

	detach()
	detach() // second detach is a no-op
	r.Publish(Event{Type: TypeMessage})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.Len())
}

func TestReentrantAttach(t *testing.T) {
	r := NewRegistry()

	nested := 0
	r.Attach(func(Event) {
		r.Attach(func(Event) { nested++ })
	})

	r.Publish(Event{Type: TypeMessage})
	assert.Equal(t, 0, nested, "handler attached mid-dispatch only sees later events")

	r.Publish(Event{Type: TypeMessage})
	assert.Equal(t, 1, nested)
}

func TestEveryHandlerSeesEveryEvent(t *testing.T) {
	r := NewRegistry()

	counts := make([]int, 3)
	for i := range counts {
		i := i
		r.Attach(func(Event) { counts[i]++ })
	}

	for _, typ := range []Type{TypeOrderStatus, TypeAccountChanged, TypeDelisting} {
		r.Publish(Event{Type: typ})
	}
	assert.Equal(t, []int{3, 3, 3}, counts)
}
