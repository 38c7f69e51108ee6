package enums

import "fmt"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregateReturn OutboxAggregateType = "return_request"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateReturn
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderCancelled     OutboxEventType = "order.cancelled"
	EventOrderStatusChanged OutboxEventType = "order.status_changed"
	EventPaymentCaptured    OutboxEventType = "payment.captured"
	EventPaymentFailed      OutboxEventType = "payment.failed"
	EventRefundIssued       OutboxEventType = "refund.issued"
	EventReturnRequested    OutboxEventType = "return.requested"
	EventReturnResolved     OutboxEventType = "return.resolved"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCancelled,
	EventOrderStatusChanged,
	EventPaymentCaptured,
	EventPaymentFailed,
	EventRefundIssued,
	EventReturnRequested,
	EventReturnResolved,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxDLQErrorReason explains why an event stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
