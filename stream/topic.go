package stream

import (
	"fmt"
	"strings"
	"sync"
)

// Stream topics:
//
//	firehose         every event
//	queue:<name>     events for one queue
//	type:<type>      events of one type, e.g. type:failed
const TopicFirehose = "firehose"

// QueueTopic returns the stream topic for a queue.
func QueueTopic(queue string) string { return "queue:" + queue }

// TypeTopic returns the stream topic for an event type.
func TypeTopic(t EventType) string { return "type:" + string(t) }

// ValidateTopic checks a stream topic name.
func ValidateTopic(topic string) error {
	if topic == TopicFirehose {
		return nil
	}
	kind, value, ok := strings.Cut(topic, ":")
	if !ok || value == "" {
		return fmt.Errorf("stream: invalid topic %q", topic)
	}
	switch kind {
	case "queue":
		return nil
	case "type":
		switch EventType(value) {
		case EventEnqueued, EventDequeued, EventProcessed, EventFailed:
			return nil
		}
		return fmt.Errorf("stream: unknown event type %q", value)
	default:
		return fmt.Errorf("stream: unknown topic kind %q", kind)
	}
}

// topicsFor returns every stream topic evt is delivered on.
func topicsFor(evt *Event) []string {
	topics := []string{TopicFirehose, TypeTopic(evt.Type)}
	if evt.Queue != "" {
		topics = append(topics, QueueTopic(evt.Queue))
	}
	return topics
}

// TopicRegistry maps stream topics to subscribers. It is safe for
// concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber // topic → subscriber ID → subscriber
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]map[string]*Subscriber)}
}

// Subscribe adds sub to topic.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.topics[topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
}

// UnsubscribeAll removes a subscriber from every topic.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for topic, subs := range tr.topics {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(tr.topics, topic)
		}
	}
}

// Broadcast delivers evt once to every subscriber of any of topics and
// returns how many accepted it.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) int {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			seen[id] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// TopicCount returns the number of topics with subscribers.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}
