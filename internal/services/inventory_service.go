package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blocktix/internal/status"
	"blocktix/internal/store"
	"blocktix/models"
	"blocktix/monitoring"
)

// InventoryService owns event records and their capacity counters.
type InventoryService struct {
	store store.Store
	now   func() time.Time
}

func NewInventoryService(st store.Store) *InventoryService {
	return &InventoryService{store: st, now: time.Now}
}

// CreateEvent persists a new event at full availability. spec must already
// be validated.
func (s *InventoryService) CreateEvent(ctx context.Context, spec models.EventSpec, organizer string) (*models.Event, error) {
	ev := models.NewEvent(spec, organizer, s.now().UnixMilli())

	data, err := encodeEvent(ev)
	if err != nil {
		return nil, err
	}
	id, err := s.store.Create(ctx, store.Events, data)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	ev.ID = id

	slog.Info("Event created", "event_id", id, "organizer", organizer, "seats", spec.TotalCapacity())
	return ev, nil
}

func (s *InventoryService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	doc, err := s.store.Read(ctx, store.Events, eventID)
	if err != nil {
		return nil, err
	}
	return decodeEvent(*doc)
}

// Reserve atomically checks and decrements the counter slot resolves to and
// returns the event as it stands after the decrement.
func (s *InventoryService) Reserve(ctx context.Context, eventID, slot string, quantity int) (*models.Event, error) {
	doc, err := s.store.WriteAtomic(ctx, store.Events, eventID, func(current []byte) ([]byte, error) {
		ev, err := decodeEvent(store.Document{ID: eventID, Data: current})
		if err != nil {
			return nil, err
		}
		if err := ev.Reserve(slot, quantity); err != nil {
			return nil, err
		}
		return encodeEvent(ev)
	})
	if err != nil {
		monitoring.TrackReservation(reservationResult(err))
		return nil, err
	}
	monitoring.TrackReservation("ok")

	ev, err := decodeEvent(*doc)
	if err != nil {
		return nil, err
	}

	slog.Info("Seats reserved", "event_id", eventID, "slot", slot, "quantity", quantity, "available", ev.Availability(slot))
	return ev, nil
}

// ResetCapacity replaces details and slots of an event. Every counter goes
// back to full capacity; earlier sell-through is not carried over.
func (s *InventoryService) ResetCapacity(ctx context.Context, eventID string, spec models.EventSpec) (*models.Event, error) {
	ev, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ev.Replace(spec)

	data, err := encodeEvent(ev)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, store.Events, eventID, data); err != nil {
		return nil, fmt.Errorf("reset capacity: %w", err)
	}

	slog.Info("Event capacity reset", "event_id", eventID, "seats", spec.TotalCapacity())
	return ev, nil
}

func (s *InventoryService) DeleteEvent(ctx context.Context, eventID string) error {
	if err := s.store.Delete(ctx, store.Events, eventID); err != nil {
		return err
	}
	slog.Info("Event deleted", "event_id", eventID)
	return nil
}

func reservationResult(err error) string {
	switch {
	case errors.Is(err, status.ErrInsufficientCapacity):
		return "insufficient"
	case errors.Is(err, status.ErrConflict):
		return "conflict"
	case errors.Is(err, status.ErrNotFound):
		return "not_found"
	case errors.Is(err, status.ErrValidation):
		return "invalid"
	}
	return "error"
}
