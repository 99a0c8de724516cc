package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Append(ctx, &Event{EventType: EventDisputeViewed, Actor: "0xabc", OrderID: "41"}))
	require.NoError(t, s.Append(ctx, &Event{EventType: EventFeeQuoted, OrderID: "41"}))
	require.NoError(t, s.Append(ctx, &Event{EventType: EventDisputeViewed, OrderID: "99"}))

	events, err := s.ByOrder(ctx, "41", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventDisputeViewed, events[0].EventType)
	assert.Equal(t, EventFeeQuoted, events[1].EventType)
	assert.Equal(t, int64(1), events[0].ID)
	assert.False(t, events[0].CreatedAt.IsZero())

	counts, err := s.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[EventDisputeViewed])
	assert.Equal(t, int64(1), counts[EventFeeQuoted])
}

func TestMemoryStore_SinceFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	old := &Event{EventType: EventSummaryViewed, OrderID: "7", CreatedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, s.Append(ctx, old))
	require.NoError(t, s.Append(ctx, &Event{EventType: EventSummaryViewed, OrderID: "7"}))

	events, err := s.ByOrder(ctx, "7", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemoryStore_CopiesEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	e := &Event{EventType: EventImageUploaded, OrderID: "3"}
	require.NoError(t, s.Append(ctx, e))
	e.OrderID = "mutated"

	events, err := s.ByOrder(ctx, "3", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	events[0].Detail = "also mutated"
	again, err := s.ByOrder(ctx, "3", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, again[0].Detail)
}

type failingStore struct{}

func (failingStore) Append(context.Context, *Event) error { return errors.New("db down") }
func (failingStore) ByOrder(context.Context, string, time.Time) ([]*Event, error) {
	return nil, errors.New("db down")
}
func (failingStore) CountByType(context.Context) (map[string]int64, error) {
	return nil, errors.New("db down")
}

func TestRecorder_SwallowsStoreErrors(t *testing.T) {
	r := NewRecorder(failingStore{})
	// Must not panic or propagate anything.
	r.Record(context.Background(), EventApprovalSubmitted, "0xabc", "41", "amount=100")
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), EventDisputeViewed, "", "", "")

	NewRecorder(nil).Record(context.Background(), EventDisputeViewed, "", "", "")
}

func TestRecorder_Records(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	r := NewRecorder(s)

	r.Record(ctx, EventDisputeViewed, "0xabc", "41", "phase=dispute_open_unpaid")

	events, err := s.ByOrder(ctx, "41", time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "0xabc", events[0].Actor)
	assert.Equal(t, "phase=dispute_open_unpaid", events[0].Detail)
}
