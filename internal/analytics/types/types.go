// Package types holds the shapes shared by the analytics consumer, its router
// and the BigQuery writer.
package types

import (
	"encoding/json"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
)

// Envelope is an order event after broker attributes and the outbox payload
// envelope have been merged.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// PayloadVersion treats an unset version as the current outbox version.
func (e Envelope) PayloadVersion() int {
	if e.Version <= 0 {
		return outbox.CurrentVersion
	}
	return e.Version
}

// OrderEventRow is one row of the order_events table. Amounts are decimal
// strings so BigQuery loads them as NUMERIC.
type OrderEventRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	OrderID          string             `bigquery:"order_id"`
	OrderNumber      string             `bigquery:"order_number"`
	UserID           string             `bigquery:"user_id"`
	Status           string             `bigquery:"status"`
	PreviousStatus   *string            `bigquery:"previous_status"`
	TotalAmount      *string            `bigquery:"total_amount"`
	ParticipantCount *int64             `bigquery:"participant_count"`
	ItemCount        *int64             `bigquery:"item_count"`
	CancelReason     *string            `bigquery:"cancel_reason"`
	Items            cbigquery.NullJSON `bigquery:"items"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}
