package spend

import "time"

const (
	EventProposed = "spend_proposed"
	EventVoted    = "spend_voted"
	EventResolved = "spend_resolved"
)

// Event reports a change to a spend proposal.
type Event struct {
	EventType    string        `json:"type"`
	Txid         string        `json:"txid"`
	Party        int           `json:"party,omitempty"`
	Address      string        `json:"address,omitempty"`
	Accepted     *bool         `json:"accepted,omitempty"`
	Status       string        `json:"status"`
	Destinations []Destination `json:"destinations,omitempty"`
	OccurredAt   time.Time     `json:"timestamp"`
}

func (e Event) Type() string {
	return e.EventType
}

func (e Event) Timestamp() time.Time {
	return e.OccurredAt
}

// Publisher receives spend events. *event.Bus[Event] satisfies it.
type Publisher interface {
	Publish(Event)
}
