package domain

import "encoding/json"

// Entity types carried by the change feed. Only contacts and deals have rules.
const (
	EntityContact = "contact"
	EntityDeal    = "deal"
)

// Event types reported for a change.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// ChangeRecord is a single entry of the change feed.
type ChangeRecord struct {
	EntityType string
	EventType  string
	Data       json.RawMessage
	AckKey     string
	Revision   int64
}

// Triggers reports whether the event type should run business rules.
func (r ChangeRecord) Triggers() bool {
	return r.EventType == EventCreated || r.EventType == EventUpdated
}

// Result tells the feed whether a record may be acknowledged.
type Result int

const (
	// Ack lets the cursor advance past the record.
	Ack Result = iota
	// Skip leaves the record unacknowledged so the feed delivers it again.
	Skip
)

func (r Result) String() string {
	if r == Skip {
		return "skip"
	}
	return "ack"
}
