package events

// Broker names shared with the reservation service.
const (
	ExchangeVendorReservation   = "vendor_reservation"
	QueueReservationStatus      = "reservation_status_queue"
	RoutingKeyReservationStatus = "reservation.status"
)

// Topology is the exchange, queue and bindings a publisher declares.
type Topology struct {
	Exchange    string
	Queue       string
	RoutingKeys []string
}

// DefaultTopology is the durable topic exchange bound to the reservation
// status queue.
func DefaultTopology() Topology {
	return Topology{
		Exchange:    ExchangeVendorReservation,
		Queue:       QueueReservationStatus,
		RoutingKeys: []string{RoutingKeyReservationStatus},
	}
}
