package watermilldb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pco-network/pco/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

type subscriber struct {
	topic   string
	handler func(events []domain.Event)
}

type eventRepository struct {
	publisher message.Publisher

	subscribers    map[string][]subscriber // topic -> subscribers
	subscriberLock *sync.Mutex
}

// NewEventRepository publishes events on an in-process go channel pubsub.
func NewEventRepository(_ ...interface{}) (domain.EventRepository, error) {
	publisher := gochannel.NewGoChannel(gochannel.Config{}, NewLogger())
	return NewWatermillEventRepository(publisher), nil
}

func NewWatermillEventRepository(publisher message.Publisher) domain.EventRepository {
	return &eventRepository{
		publisher:      publisher,
		subscribers:    make(map[string][]subscriber),
		subscriberLock: &sync.Mutex{},
	}
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if len(topics) == 0 {
		e.subscribers = make(map[string][]subscriber)
		return
	}

	for _, topic := range topics {
		delete(e.subscribers, topic)
	}
}

func (e *eventRepository) Close() {
	//nolint:errcheck
	e.publisher.Close()
}

func (e *eventRepository) RegisterEventsHandler(topic string, handler func(events []domain.Event)) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	e.subscribers[topic] = append(e.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})
}

func (e *eventRepository) Save(_ context.Context, topic string, id string, events []domain.Event) error {
	if len(events) <= 0 {
		return nil
	}

	if err := e.publish(topic, id, events); err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}

	e.dispatch(topic, events)
	return nil
}

// dispatch runs the handlers in go routines, each one with its own copy of
// the events.
func (e *eventRepository) dispatch(topic string, events []domain.Event) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	for _, subscriber := range e.subscribers[topic] {
		go subscriber.handler(append([]domain.Event{}, events...))
	}
}

func (e *eventRepository) publish(topic, id string, events []domain.Event) error {
	watermillMessages := toWatermillMessages(id, events)
	return e.publisher.Publish(topic, watermillMessages...)
}

func toWatermillMessages(id string, events []domain.Event) []*message.Message {
	watermillMessages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			log.WithError(err).Warnf("failed to serialize %s event", event.GetType())
			continue
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("id", id)
		msg.Metadata.Set("type", event.GetType().String())
		watermillMessages = append(watermillMessages, msg)
	}

	return watermillMessages
}
