package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Fanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	defer unsubA()
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish(Event{Type: TypeAdvisory, Data: "hi"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, TypeAdvisory, e.Type)
		assert.Equal(t, "hi", e.Data)
		assert.False(t, e.Time.IsZero())
	}
}

func TestBus_PreservesTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	b.Publish(Event{Type: TypeCompletion, Time: at})
	assert.Equal(t, at, (<-ch).Time)
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeCompletion})
	b.Publish(Event{Type: TypeCompletion})

	assert.Len(t, ch, 1)
	assert.Equal(t, uint64(1), Dropped(b))
}

func TestBus_UnsubscribeCloses(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TypeNewMessage})
}
