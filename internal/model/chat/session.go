package chat

import "time"

// ClientRecord is the persisted view of a client. Records outlive the
// connection that created them and are never evicted. Times carry
// millisecond precision so every store round-trips them unchanged.
type ClientRecord struct {
	ID          string    `json:"id" bson:"id"`
	ConnectedAt time.Time `json:"connectedAt" bson:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen" bson:"lastSeen"`
}

// RecordTime normalises t to the precision ClientRecord stores.
func RecordTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
