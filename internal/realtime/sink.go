package realtime

import (
	"time"

	"github.com/privilegehq/satsgate/internal/settlement"
)

// Sink adapts the hub to the purchase service's event interface.
type Sink struct {
	hub *Hub
}

// NewSink wraps a hub for use as a purchase event sink.
func NewSink(hub *Hub) *Sink {
	return &Sink{hub: hub}
}

// PurchaseSettled broadcasts a purchase_settled event.
func (s *Sink) PurchaseSettled(resourceID string, tierIndex int, status settlement.Status, txRef string) {
	s.hub.Broadcast(&Event{
		Type:      EventPurchaseSettled,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"resourceId": resourceID,
			"tierIndex":  tierIndex,
			"status":     string(status),
			"txRef":      txRef,
		},
	})
}

// AccessVerified broadcasts an access_verified event.
func (s *Sink) AccessVerified(resourceID string, tierIndex int, allowed bool) {
	s.hub.Broadcast(&Event{
		Type:      EventAccessVerified,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"resourceId": resourceID,
			"tierIndex":  tierIndex,
			"allowed":    allowed,
		},
	})
}
