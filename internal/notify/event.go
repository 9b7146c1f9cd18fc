// Package notify dispatches record-change notifications through the
// message broker and hosts the background consumer that materializes
// them into the notification log.
package notify

// RecordTouchedEvent is published after a write to any entity succeeds.
// It carries enough for downstream consumers to log or fan out member
// notifications without querying the primary database.
type RecordTouchedEvent struct {
	Entity     string `json:"entity"`
	RecordID   string `json:"record_id"`
	Operation  string `json:"operation"`
	UserID     string `json:"user_id"`
	OccurredAt string `json:"occurred_at"`
}

const queueName = "record.touched"
