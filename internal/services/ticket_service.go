package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"blocktix/internal/status"
	"blocktix/internal/store"
	"blocktix/models"

	"github.com/shopspring/decimal"
)

// TicketService owns ticket records and the resale state machine. Every
// transition is applied inside an atomic write, so ownership is checked
// against the stored owner rather than a stale copy.
type TicketService struct {
	store store.Store
	now   func() time.Time
}

func NewTicketService(st store.Store) *TicketService {
	return &TicketService{store: st, now: time.Now}
}

// Mint creates one active ticket for owner. A purchase of N seats mints N
// independent tickets.
func (s *TicketService) Mint(ctx context.Context, ev *models.Event, slot string, price decimal.Decimal, owner string) (*models.Ticket, error) {
	t := models.NewTicket(ev, slot, price, owner, s.now().UnixMilli())

	data, err := encodeTicket(t)
	if err != nil {
		return nil, err
	}
	id, err := s.store.Create(ctx, store.Tickets, data)
	if err != nil {
		return nil, fmt.Errorf("mint ticket: %w", err)
	}
	t.ID = id
	return t, nil
}

func (s *TicketService) Get(ctx context.Context, ticketID string) (*models.Ticket, error) {
	doc, err := s.store.Read(ctx, store.Tickets, ticketID)
	if err != nil {
		return nil, err
	}
	return decodeTicket(*doc)
}

// ListForSale moves the ticket to the resale market at price. Only the
// current owner may list.
func (s *TicketService) ListForSale(ctx context.Context, ticketID string, price decimal.Decimal, caller string) (*models.Ticket, error) {
	t, err := s.mutate(ctx, ticketID, func(t *models.Ticket) error {
		if !t.OwnedBy(caller) {
			return status.ErrNotOwner
		}
		return t.List(price)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Ticket listed", "ticket_id", ticketID, "price", price.String())
	return t, nil
}

// Cancel withdraws a listing. Cancelling a ticket that is not listed
// succeeds without changes.
func (s *TicketService) Cancel(ctx context.Context, ticketID, caller string) (*models.Ticket, error) {
	current, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !current.OwnedBy(caller) {
		return nil, status.ErrNotOwner
	}
	if !current.IsForSale {
		return current, nil
	}

	t, err := s.mutate(ctx, ticketID, func(t *models.Ticket) error {
		if !t.OwnedBy(caller) {
			return status.ErrNotOwner
		}
		t.Cancel()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Ticket listing cancelled", "ticket_id", ticketID)
	return t, nil
}

// Transfer hands a listed ticket to buyer at agreedPrice. When seller is set
// the listing must still belong to seller at agreedPrice, otherwise the
// transfer fails with status.ErrListingChanged.
func (s *TicketService) Transfer(ctx context.Context, ticketID, buyer, seller string, agreedPrice decimal.Decimal) (*models.Ticket, error) {
	t, err := s.mutate(ctx, ticketID, func(t *models.Ticket) error {
		if !t.IsForSale {
			return status.ErrNotListed
		}
		if seller != "" && (!t.OwnedBy(seller) || !t.ResalePrice.Equal(agreedPrice)) {
			return status.ErrListingChanged
		}
		return t.Transfer(buyer, agreedPrice)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Ticket transferred", "ticket_id", ticketID, "from", seller, "to", buyer, "price", agreedPrice.String())
	return t, nil
}

func (s *TicketService) mutate(ctx context.Context, ticketID string, apply func(*models.Ticket) error) (*models.Ticket, error) {
	doc, err := s.store.WriteAtomic(ctx, store.Tickets, ticketID, func(current []byte) ([]byte, error) {
		t, err := decodeTicket(store.Document{ID: ticketID, Data: current})
		if err != nil {
			return nil, err
		}
		if err := apply(t); err != nil {
			return nil, err
		}
		return encodeTicket(t)
	})
	if err != nil {
		return nil, err
	}
	return decodeTicket(*doc)
}
