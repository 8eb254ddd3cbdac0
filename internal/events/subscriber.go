package events

import "encoding/json"

// Message is one approval event as received from the bus, with the topic it
// was published on.
type Message struct {
	Topic string
	Data  []byte
}

// Decode unmarshals the payload into the given event struct.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Subscriber tails events from the bus by topic pattern.
type Subscriber interface {
	Subscribe(pattern string) (<-chan Message, func(), error)
	Close() error
}
