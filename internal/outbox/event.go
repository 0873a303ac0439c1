package outbox

// Event is the domain event envelope written to the outbox table. The
// Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types published by the booking service.
const (
	EventNotificationRequested = "room.notification.requested.v1"
	EventAuditRecorded         = "room.audit.recorded.v1"
	EventBookingCreated        = "room.booking.created.v1"
	EventBookingOverridden     = "room.booking.overridden.v1"
)
