package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"blocktix/internal/status"
	"blocktix/models"
	"blocktix/monitoring"

	"github.com/shopspring/decimal"
)

// Payer moves value between identities and returns once the transfer is
// confirmed or has definitely failed.
type Payer interface {
	Pay(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Payment, error)
}

// InflightGuard admits one purchase per identity at a time. release must be
// safe to call more than once.
type InflightGuard interface {
	Acquire(ctx context.Context, identity string) (release func(), err error)
}

type Notifier interface {
	Notify(ctx context.Context, recipient string, msg models.Notification)
}

type Reconciler interface {
	Record(ctx context.Context, rec models.UnfulfilledPayment) error
}

type PurchaseResult struct {
	Event   *models.Event    `json:"event"`
	Tickets []*models.Ticket `json:"tickets"`
	Payment *models.Payment  `json:"payment"`
}

type ResaleResult struct {
	Ticket  *models.Ticket  `json:"ticket"`
	Payment *models.Payment `json:"payment"`
}

// MarketplaceService is the entry point for every user action. It sequences
// payment, reservation and ticket writes. Payment always completes before any
// state is touched, and nothing is rolled back once a payment has cleared.
type MarketplaceService struct {
	inventory      *InventoryService
	tickets        *TicketService
	payer          Payer
	guard          InflightGuard
	notifier       Notifier
	reconciler     Reconciler
	paymentTimeout time.Duration
	now            func() time.Time
}

func NewMarketplaceService(
	inventory *InventoryService,
	tickets *TicketService,
	payer Payer,
	guard InflightGuard,
	notifier Notifier,
	reconciler Reconciler,
	paymentTimeout time.Duration,
) *MarketplaceService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if reconciler == nil {
		reconciler = LogReconciler{}
	}
	return &MarketplaceService{
		inventory:      inventory,
		tickets:        tickets,
		payer:          payer,
		guard:          guard,
		notifier:       notifier,
		reconciler:     reconciler,
		paymentTimeout: paymentTimeout,
		now:            time.Now,
	}
}

func (s *MarketplaceService) CreateEvent(ctx context.Context, spec models.EventSpec, organizer string) (*models.Event, error) {
	if err := requireIdentity("organizer", organizer); err != nil {
		return nil, err
	}
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ev, err := s.inventory.CreateEvent(ctx, spec, organizer)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, "", models.Notification{Type: models.NotifyEventsChanged, EventID: ev.ID})
	return ev, nil
}

// UpdateEvent replaces an event's details and slots. All counters restart at
// full capacity.
func (s *MarketplaceService) UpdateEvent(ctx context.Context, eventID string, spec models.EventSpec, caller string) (*models.Event, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorizeOrganizer(ctx, eventID, caller); err != nil {
		return nil, err
	}

	ev, err := s.inventory.ResetCapacity(ctx, eventID, spec)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, "", models.Notification{Type: models.NotifyEventsChanged, EventID: eventID})
	return ev, nil
}

// DeleteEvent removes the event permanently. Tickets already minted keep
// their denormalized event details.
func (s *MarketplaceService) DeleteEvent(ctx context.Context, eventID, caller string) error {
	if err := s.authorizeOrganizer(ctx, eventID, caller); err != nil {
		return err
	}
	if err := s.inventory.DeleteEvent(ctx, eventID); err != nil {
		return err
	}

	s.notifier.Notify(ctx, "", models.Notification{Type: models.NotifyEventsChanged, EventID: eventID})
	return nil
}

func (s *MarketplaceService) authorizeOrganizer(ctx context.Context, eventID, caller string) error {
	ev, err := s.inventory.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !models.SameIdentity(ev.Organizer, caller) {
		return status.ErrNotOrganizer
	}
	return nil
}

// BuyPrimary pays the organizer price*quantity, then reserves the seats and
// mints one ticket per seat.
func (s *MarketplaceService) BuyPrimary(ctx context.Context, eventID, slot string, quantity int, buyer string) (*PurchaseResult, error) {
	start := s.now()
	defer func() { monitoring.TrackPurchase("primary", time.Since(start)) }()

	if err := requireIdentity("buyer", buyer); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, status.NewValidationError("quantity", "must be at least 1")
	}

	ev, err := s.inventory.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	slot = strings.TrimSpace(slot)
	if ev.IsSlotted() {
		if slot == "" {
			return nil, status.NewValidationError("slot", "required for slotted events")
		}
		if !ev.HasSlot(slot) {
			return nil, status.NewValidationError("slot", fmt.Sprintf("unknown slot %q", slot))
		}
	} else {
		slot = ""
	}

	// Early answer for sold-out slots. The authoritative check is the
	// reservation after payment.
	if available := ev.Availability(slot); available < quantity {
		return nil, fmt.Errorf("%w: requested %d, available %d", status.ErrInsufficientCapacity, quantity, available)
	}

	release, err := s.guard.Acquire(ctx, buyer)
	if err != nil {
		return nil, err
	}
	defer release()

	amount := ev.Price.Mul(decimal.NewFromInt(int64(quantity)))
	payment, err := s.pay(ctx, buyer, ev.Organizer, amount)
	if err != nil {
		return nil, err
	}

	// TODO: refund the buyer when reservation or minting fails below, once
	// the wallet gateway can send reversals. Until then the payment is only
	// queued for reconciliation.
	reserved, err := s.inventory.Reserve(ctx, eventID, slot, quantity)
	if err != nil {
		return nil, s.unfulfilled(ctx, models.UnfulfilledPayment{
			Operation: "primary",
			Payment:   *payment,
			EventID:   eventID,
			Slot:      slot,
			Quantity:  quantity,
			Amount:    amount,
		}, err)
	}

	minted := make([]*models.Ticket, 0, quantity)
	for i := 0; i < quantity; i++ {
		t, err := s.tickets.Mint(ctx, reserved, slot, ev.Price, buyer)
		if err != nil {
			monitoring.TrackTicketsMinted(len(minted))
			return nil, s.unfulfilled(ctx, models.UnfulfilledPayment{
				Operation: "primary",
				Payment:   *payment,
				EventID:   eventID,
				Slot:      slot,
				Quantity:  quantity,
				Minted:    len(minted),
				Amount:    amount,
			}, err)
		}
		minted = append(minted, t)
	}
	monitoring.TrackTicketsMinted(len(minted))

	ids := ticketIDs(minted)
	slog.Info("Primary purchase completed", "event_id", eventID, "slot", slot, "buyer", buyer, "tickets", ids, "tx_hash", payment.TxHash)

	s.notifier.Notify(ctx, buyer, models.Notification{
		Type:      models.NotifyTicketsMinted,
		EventID:   eventID,
		TicketIDs: ids,
		Slot:      reserved.SlotLabel(slot),
		Price:     amount.String(),
		TxHash:    payment.TxHash,
	})
	s.notifier.Notify(ctx, "", models.Notification{Type: models.NotifyEventsChanged, EventID: eventID})

	return &PurchaseResult{Event: reserved, Tickets: minted, Payment: payment}, nil
}

// BuyResale pays the listing price to the current owner and transfers the
// ticket to buyer.
func (s *MarketplaceService) BuyResale(ctx context.Context, ticketID, buyer string) (*ResaleResult, error) {
	start := s.now()
	defer func() { monitoring.TrackPurchase("resale", time.Since(start)) }()

	if err := requireIdentity("buyer", buyer); err != nil {
		return nil, err
	}

	listing, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !listing.IsForSale {
		return nil, status.ErrNotListed
	}
	if listing.OwnedBy(buyer) {
		return nil, status.ErrSelfTransfer
	}

	release, err := s.guard.Acquire(ctx, buyer)
	if err != nil {
		return nil, err
	}
	defer release()

	seller, price := listing.Owner, listing.ResalePrice
	payment, err := s.pay(ctx, buyer, seller, price)
	if err != nil {
		monitoring.TrackResale("buy", "payment_failed")
		return nil, err
	}

	// TODO: refund the buyer when the transfer fails below, once the wallet
	// gateway can send reversals.
	t, err := s.tickets.Transfer(ctx, ticketID, buyer, seller, price)
	if err != nil {
		monitoring.TrackResale("buy", "failed")
		return nil, s.unfulfilled(ctx, models.UnfulfilledPayment{
			Operation: "resale",
			Payment:   *payment,
			EventID:   listing.EventID,
			TicketID:  ticketID,
			Quantity:  1,
			Amount:    price,
		}, err)
	}
	monitoring.TrackResale("buy", "ok")

	n := models.Notification{
		EventID:   t.EventID,
		TicketIDs: []string{t.ID},
		Price:     price.String(),
		TxHash:    payment.TxHash,
	}
	n.Type = models.NotifyTicketSold
	s.notifier.Notify(ctx, seller, n)
	n.Type = models.NotifyTicketTransferred
	s.notifier.Notify(ctx, buyer, n)

	return &ResaleResult{Ticket: t, Payment: payment}, nil
}

func (s *MarketplaceService) ListTicket(ctx context.Context, ticketID string, price decimal.Decimal, caller string) (*models.Ticket, error) {
	t, err := s.tickets.ListForSale(ctx, ticketID, price, caller)
	if err != nil {
		monitoring.TrackResale("list", "failed")
		return nil, err
	}
	monitoring.TrackResale("list", "ok")

	s.notifier.Notify(ctx, "", models.Notification{
		Type:      models.NotifyTicketListed,
		EventID:   t.EventID,
		TicketIDs: []string{t.ID},
		Price:     price.String(),
	})
	return t, nil
}

func (s *MarketplaceService) CancelListing(ctx context.Context, ticketID, caller string) (*models.Ticket, error) {
	t, err := s.tickets.Cancel(ctx, ticketID, caller)
	if err != nil {
		monitoring.TrackResale("cancel", "failed")
		return nil, err
	}
	monitoring.TrackResale("cancel", "ok")
	return t, nil
}

func (s *MarketplaceService) pay(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Payment, error) {
	if s.paymentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.paymentTimeout)
		defer cancel()
	}

	payment, err := s.payer.Pay(ctx, from, to, amount)
	switch {
	case err == nil:
		monitoring.TrackPayment("confirmed")
		return payment, nil
	case errors.Is(err, status.ErrPaymentRejected):
		monitoring.TrackPayment("rejected")
	default:
		monitoring.TrackPayment("unavailable")
		if !errors.Is(err, status.ErrPaymentUnavailable) {
			err = fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
		}
	}
	return nil, err
}

// unfulfilled records a cleared payment whose purchase did not complete and
// returns the error to surface to the caller.
func (s *MarketplaceService) unfulfilled(ctx context.Context, rec models.UnfulfilledPayment, cause error) error {
	rec.Reason = cause.Error()
	rec.At = s.now()

	monitoring.TrackUnfulfilledPayment(rec.Operation)
	if err := s.reconciler.Record(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("Failed to record unfulfilled payment", "tx_hash", rec.Payment.TxHash, "error", err)
		_ = LogReconciler{}.Record(ctx, rec)
	}

	return &status.FulfillmentError{
		Operation: rec.Operation,
		TxHash:    rec.Payment.TxHash,
		Requested: rec.Quantity,
		Minted:    rec.Minted,
		Err:       cause,
	}
}

func requireIdentity(field, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return status.NewValidationError(field, "wallet not connected")
	}
	return nil
}

func ticketIDs(tickets []*models.Ticket) []string {
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	return ids
}
