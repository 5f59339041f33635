package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	f := NewFanout(4)
	a, cancelA := f.Subscribe()
	b, cancelB := f.Subscribe()
	defer cancelA()
	defer cancelB()

	f.Publish(New(ModelLoaded, "llamacpp", "m.gguf", nil))

	ea := <-a
	eb := <-b
	assert.Equal(t, ModelLoaded, ea.Name)
	assert.Equal(t, ModelLoaded, eb.Name)
	assert.Equal(t, "llamacpp", ea.Backend)
	assert.False(t, ea.At.IsZero())
}

func TestFanoutDropsOldestWhenFull(t *testing.T) {
	f := NewFanout(2)
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(Event{Name: "e1"})
	f.Publish(Event{Name: "e2"})
	f.Publish(Event{Name: "e3"}) // evicts e1

	got := []string{(<-ch).Name, (<-ch).Name}
	assert.Equal(t, []string{"e2", "e3"}, got)
	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event %q", e.Name)
	default:
	}
}

func TestFanoutCancelIsIdempotent(t *testing.T) {
	f := NewFanout(1)
	ch, cancel := f.Subscribe()
	require.Equal(t, 1, f.SubscriberCount())

	cancel()
	cancel()
	assert.Equal(t, 0, f.SubscriberCount())

	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")

	// Publishing with no subscribers must not panic.
	f.Publish(Event{Name: "late"})
}

func TestLoggedForwards(t *testing.T) {
	sink := NewMemory()
	logged := NewLogged(zerolog.Nop(), sink)

	logged.Publish(New(LoadingStarted, "llamacpp", "m.gguf", map[string]any{"attempt": 1}))

	require.Len(t, sink.Events(), 1)
	assert.Equal(t, []string{LoadingStarted}, sink.Names())

	// A nil next only logs.
	NewLogged(zerolog.Nop(), nil).Publish(Event{Name: ModelUnloaded})
}
