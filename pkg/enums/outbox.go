package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	AggregateOrder OutboxAggregateType = "order"

	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderDeleted       OutboxEventType = "order_deleted"
)

// eventAggregates fixes the aggregate every event type is emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:       AggregateOrder,
	EventOrderStatusChanged: AggregateOrder,
	EventOrderCancelled:     AggregateOrder,
	EventOrderDeleted:       AggregateOrder,
}

// AggregateFor returns the aggregate e belongs to, or false for unknown events.
func AggregateFor(e OutboxEventType) (OutboxAggregateType, bool) {
	a, ok := eventAggregates[e]
	return a, ok
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

func (a OutboxAggregateType) IsValid() bool {
	for _, owner := range eventAggregates {
		if owner == a {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxDLQErrorReason records why a row was parked in the dead-letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) String() string { return string(r) }

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}
