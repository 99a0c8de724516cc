// Package analytics records product events emitted by the dispute and
// settlement surfaces.
//
// Recording is best-effort: a failed write is logged and counted, never
// surfaced to the request that produced the event.
package analytics

import (
	"context"
	"time"

	"github.com/peerswapd/peerswap/internal/logging"
)

// Event types recorded by the service.
const (
	EventDisputeViewed     = "dispute_viewed"
	EventFeeQuoted         = "fee_quoted"
	EventApprovalSubmitted = "approval_submitted"
	EventImageUploaded     = "image_uploaded"
	EventSummaryViewed     = "summary_viewed"
)

// Event is a single recorded product event.
type Event struct {
	ID        int64     `json:"id"`
	EventType string    `json:"eventType"`
	Actor     string    `json:"actor,omitempty"`
	OrderID   string    `json:"orderId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists and queries analytics events.
type Store interface {
	Append(ctx context.Context, event *Event) error
	ByOrder(ctx context.Context, orderID string, since time.Time) ([]*Event, error)
	CountByType(ctx context.Context) (map[string]int64, error)
}

// Recorder writes events to a store without letting storage failures
// propagate to callers.
type Recorder struct {
	store Store
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record persists an event, logging instead of failing when the store is
// unavailable.
func (r *Recorder) Record(ctx context.Context, eventType, actor, orderID, detail string) {
	if r == nil || r.store == nil {
		return
	}
	err := r.store.Append(ctx, &Event{
		EventType: eventType,
		Actor:     actor,
		OrderID:   orderID,
		Detail:    detail,
	})
	if err != nil {
		logging.L(ctx).Warn("analytics event dropped",
			"event_type", eventType,
			"order_id", orderID,
			"error", err)
	}
}
