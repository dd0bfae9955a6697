package monitoring

import (
	"testing"

	"blocktix/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type staticSource []*models.Event

func (s staticSource) Events() []*models.Event { return s }

func TestMonitor_CollectCapacity(t *testing.T) {
	slotted := &models.Event{ID: "ev-1", Capacity: &models.Slotted{
		Labels:         []string{"10:00", "14:00"},
		Total:          map[string]int{"10:00": 2, "14:00": 3},
		Available:      map[string]int{"10:00": 0, "14:00": 3},
		TotalSeats:     5,
		RemainingSeats: 3,
	}}
	legacy := &models.Event{ID: "ev-2", Capacity: &models.Unslotted{TotalSeats: 10, RemainingSeats: 4}}

	m := NewMonitor(staticSource{slotted, legacy}, 0)
	m.Collect()

	assert.Equal(t, 0.0, testutil.ToFloat64(slotAvailability.WithLabelValues("ev-1", "10:00")))
	assert.Equal(t, 3.0, testutil.ToFloat64(slotAvailability.WithLabelValues("ev-1", "14:00")))
	assert.Equal(t, 3.0, testutil.ToFloat64(eventRemaining.WithLabelValues("ev-1")))
	assert.Equal(t, 4.0, testutil.ToFloat64(eventRemaining.WithLabelValues("ev-2")))
}

func TestMonitor_CollectDropsDeletedEvents(t *testing.T) {
	m := NewMonitor(staticSource{{ID: "gone", Capacity: &models.Unslotted{TotalSeats: 1, RemainingSeats: 1}}}, 0)
	m.Collect()
	assert.Equal(t, 1, testutil.CollectAndCount(eventRemaining))

	m.source = staticSource{}
	m.Collect()
	assert.Equal(t, 0, testutil.CollectAndCount(eventRemaining))
}

func TestTrackers(t *testing.T) {
	before := testutil.ToFloat64(reservations.WithLabelValues("ok"))
	TrackReservation("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(reservations.WithLabelValues("ok")))

	minted := testutil.ToFloat64(ticketsMinted)
	TrackTicketsMinted(3)
	assert.Equal(t, minted+3, testutil.ToFloat64(ticketsMinted))

	paid := testutil.ToFloat64(paymentRequests.WithLabelValues("rejected"))
	TrackPayment("rejected")
	assert.Equal(t, paid+1, testutil.ToFloat64(paymentRequests.WithLabelValues("rejected")))
}
