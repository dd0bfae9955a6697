package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"blocktix/internal/store"
	"blocktix/models"
)

// CatalogService keeps read views over the latest full snapshots of events
// and tickets. Views are rebuilt from scratch on every snapshot.
type CatalogService struct {
	store      store.Store
	retryDelay time.Duration

	mu      sync.RWMutex
	events  []*models.Event
	tickets []*models.Ticket
}

func NewCatalogService(st store.Store) *CatalogService {
	return &CatalogService{store: st, retryDelay: 2 * time.Second}
}

// Start follows both collections until ctx is done, resubscribing whenever a
// subscription fails or ends.
func (c *CatalogService) Start(ctx context.Context) {
	go c.follow(ctx, store.Events, c.applyEvents)
	go c.follow(ctx, store.Tickets, c.applyTickets)
}

// Refresh rebuilds both views from a one-off read of the store.
func (c *CatalogService) Refresh(ctx context.Context) error {
	events, err := c.store.List(ctx, store.Events)
	if err != nil {
		return err
	}
	tickets, err := c.store.List(ctx, store.Tickets)
	if err != nil {
		return err
	}
	c.applyEvents(events)
	c.applyTickets(tickets)
	return nil
}

func (c *CatalogService) follow(ctx context.Context, collection string, apply func([]store.Document)) {
	for {
		snapshots, err := c.store.Subscribe(ctx, collection)
		if err != nil {
			slog.Error("Failed to subscribe", "collection", collection, "error", err)
		} else {
			for snap := range snapshots {
				apply(snap)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
			slog.Warn("Restarting subscription", "collection", collection)
		}
	}
}

func (c *CatalogService) applyEvents(docs []store.Document) {
	events := make([]*models.Event, 0, len(docs))
	for _, doc := range docs {
		ev, err := decodeEvent(doc)
		if err != nil {
			slog.Warn("Skipping malformed event", "event_id", doc.ID, "error", err)
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})

	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

func (c *CatalogService) applyTickets(docs []store.Document) {
	tickets := make([]*models.Ticket, 0, len(docs))
	for _, doc := range docs {
		t, err := decodeTicket(doc)
		if err != nil {
			slog.Warn("Skipping malformed ticket", "ticket_id", doc.ID, "error", err)
			continue
		}
		tickets = append(tickets, t)
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt > tickets[j].CreatedAt
	})

	c.mu.Lock()
	c.tickets = tickets
	c.mu.Unlock()
}

// Events returns copies of all events, newest first.
func (c *CatalogService) Events() []*models.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Event, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Clone()
	}
	return out
}

func (c *CatalogService) Event(eventID string) (*models.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ev := range c.events {
		if ev.ID == eventID {
			return ev.Clone(), true
		}
	}
	return nil, false
}

func (c *CatalogService) EventsByOrganizer(identity string) []*models.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.Event
	for _, ev := range c.events {
		if models.SameIdentity(ev.Organizer, identity) {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// TicketsOwnedBy returns identity's tickets, newest first.
func (c *CatalogService) TicketsOwnedBy(identity string) []*models.Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.Ticket
	for _, t := range c.tickets {
		if t.OwnedBy(identity) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Market returns every listed ticket.
func (c *CatalogService) Market() []*models.Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.Ticket
	for _, t := range c.tickets {
		if t.IsForSale {
			out = append(out, t.Clone())
		}
	}
	return out
}
