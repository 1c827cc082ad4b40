package event

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	topicPrefix string = "playback_event:"
)

// Sink delivers events in emission order on a single delivery goroutine
type Sink struct {
	bus    evbus.Bus
	topics []string // subscription topics in subscription order

	queue  []Event
	notify chan struct{}
	done   chan struct{}
	closed bool
	mutex  sync.Mutex
}

// NewSink creates a new Sink and starts its delivery goroutine
func NewSink() *Sink {
	sink := &Sink{
		bus:    evbus.New(),
		topics: []string{},
		queue:  []Event{},
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go sink.deliver()

	return sink
}

// Emit queues an event. Events emitted after Close are dropped.
func (sink *Sink) Emit(event Event) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()

	if sink.closed {
		return
	}

	sink.queue = append(sink.queue, event)

	select {
	case sink.notify <- struct{}{}:
	default:
	}
}

// Subscribe registers a handler and returns a function that removes it
func (sink *Sink) Subscribe(handler Handler) (func(), error) {
	if handler == nil {
		return nil, xerrors.Errorf("handler cannot be nil")
	}

	sink.mutex.Lock()
	defer sink.mutex.Unlock()

	if sink.closed {
		return nil, xerrors.Errorf("event sink is closed")
	}

	// one topic per subscription so that unsubscribing never removes another handler
	topic := topicPrefix + xid.New().String()
	callback := func(event Event) {
		handler(event)
	}

	err := sink.bus.Subscribe(topic, callback)
	if err != nil {
		return nil, xerrors.Errorf("failed to subscribe to events: %w", err)
	}

	sink.topics = append(sink.topics, topic)

	unsubscribe := func() {
		sink.mutex.Lock()
		defer sink.mutex.Unlock()

		for i, t := range sink.topics {
			if t == topic {
				sink.topics = append(sink.topics[:i:i], sink.topics[i+1:]...)
				// the bus holds its lock while a handler runs, handlers may unsubscribe themselves
				go sink.bus.Unsubscribe(topic, callback)
				return
			}
		}
	}

	return unsubscribe, nil
}

// Close delivers queued events and stops the delivery goroutine. Safe to call many times.
func (sink *Sink) Close() {
	sink.mutex.Lock()
	if sink.closed {
		sink.mutex.Unlock()
		<-sink.done
		return
	}

	sink.closed = true
	close(sink.notify)
	sink.mutex.Unlock()

	<-sink.done
}

func (sink *Sink) deliver() {
	logger := log.WithFields(log.Fields{
		"package":  "event",
		"struct":   "Sink",
		"function": "deliver",
	})

	defer close(sink.done)

	for {
		_, ok := <-sink.notify

		for {
			sink.mutex.Lock()
			if len(sink.queue) == 0 {
				sink.mutex.Unlock()
				break
			}

			event := sink.queue[0]
			sink.queue = sink.queue[1:]
			topics := make([]string, len(sink.topics))
			copy(topics, sink.topics)
			sink.mutex.Unlock()

			for _, topic := range topics {
				sink.publish(logger, topic, event)
			}
		}

		if !ok {
			return
		}
	}
}

func (sink *Sink) publish(logger *log.Entry, topic string, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event handler panicked on %q: %v", event.Type, r)
		}
	}()

	sink.bus.Publish(topic, event)
}
