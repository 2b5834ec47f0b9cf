package observe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject_NotifyInOrder(t *testing.T) {
	var s Subject[int]
	var got []string

	s.Subscribe(func(v int) { got = append(got, "a") })
	s.Subscribe(func(v int) { got = append(got, "b") })

	s.Notify(1)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSubject_Unsubscribe(t *testing.T) {
	var s Subject[string]
	calls := 0

	unsubscribe := s.Subscribe(func(string) { calls++ })
	s.Notify("x")
	unsubscribe()
	unsubscribe()
	s.Notify("y")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Len())
}

func TestSubject_ListenerMaySubscribe(t *testing.T) {
	var s Subject[int]
	s.Subscribe(func(int) {
		s.Subscribe(func(int) {})
	})

	assert.NotPanics(t, func() { s.Notify(1) })
	assert.Equal(t, 2, s.Len())
}
