package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
	mutex  sync.Mutex
}

func (r *recorder) handle(event Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []Type {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	types := []Type{}
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

func TestSinkDeliversInOrder(t *testing.T) {
	sink := NewSink()

	r1 := &recorder{}
	r2 := &recorder{}
	_, err := sink.Subscribe(r1.handle)
	require.NoError(t, err)
	_, err = sink.Subscribe(r2.handle)
	require.NoError(t, err)

	emitted := []Type{TypeInitialized, TypePlay, TypeBufferingStart, TypeBufferingUpdate, TypeBufferingEnd, TypePause, TypeSeek, TypeCompleted}
	for _, eventType := range emitted {
		sink.Emit(Event{Type: eventType})
	}

	sink.Close()

	assert.Equal(t, emitted, r1.types())
	assert.Equal(t, emitted, r2.types())
}

func TestSinkUnsubscribe(t *testing.T) {
	sink := NewSink()
	defer sink.Close()

	r1 := &recorder{}
	r2 := &recorder{}
	unsubscribe1, err := sink.Subscribe(r1.handle)
	require.NoError(t, err)
	_, err = sink.Subscribe(r2.handle)
	require.NoError(t, err)

	unsubscribe1()
	unsubscribe1()

	sink.Emit(Event{Type: TypePlay})

	assert.Eventually(t, func() bool {
		return len(r2.types()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, r1.types())
}

func TestSinkDropsAfterClose(t *testing.T) {
	sink := NewSink()

	r := &recorder{}
	_, err := sink.Subscribe(r.handle)
	require.NoError(t, err)

	sink.Emit(Event{Type: TypePlay})
	sink.Close()
	sink.Close()
	sink.Emit(Event{Type: TypePause})

	assert.Equal(t, []Type{TypePlay}, r.types())

	_, err = sink.Subscribe(r.handle)
	assert.Error(t, err)
}

func TestSinkSurvivesHandlerPanic(t *testing.T) {
	sink := NewSink()

	r := &recorder{}
	_, err := sink.Subscribe(func(event Event) {
		if event.Type == TypeError {
			panic("handler failure")
		}
	})
	require.NoError(t, err)
	_, err = sink.Subscribe(r.handle)
	require.NoError(t, err)

	sink.Emit(Event{Type: TypeError, Message: "Failed to load video: decode"})
	sink.Emit(Event{Type: TypePlay})
	sink.Close()

	assert.Equal(t, []Type{TypePlay}, r.types()[1:])
}
