package models

import (
	"blocktix/internal/status"

	"github.com/shopspring/decimal"
)

// StandardSlot labels tickets minted against events without time slots.
const StandardSlot = "Standard"

type TicketState string

const (
	TicketActive TicketState = "active"
	TicketListed TicketState = "listed"
)

type Ticket struct {
	ID            string          `json:"id,omitempty"`
	EventID       string          `json:"eventId"`
	EventName     string          `json:"eventName"`
	EventDate     string          `json:"eventDate"`
	TimeSlot      string          `json:"timeSlot"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	ResalePrice   decimal.Decimal `json:"resalePrice"`
	IsForSale     bool            `json:"isForSale"`
	Owner         string          `json:"owner"`
	CreatedAt     int64           `json:"createdAt"`
}

// NewTicket mints an active ticket. Event name and date are copied at mint
// time and never re-synced.
func NewTicket(ev *Event, slot string, price decimal.Decimal, owner string, createdAt int64) *Ticket {
	return &Ticket{
		EventID:       ev.ID,
		EventName:     ev.Name,
		EventDate:     ev.Date,
		TimeSlot:      ev.SlotLabel(slot),
		PurchasePrice: price,
		ResalePrice:   decimal.Zero,
		Owner:         owner,
		CreatedAt:     createdAt,
	}
}

func (t *Ticket) Clone() *Ticket {
	cp := *t
	return &cp
}

func (t *Ticket) State() TicketState {
	if t.IsForSale {
		return TicketListed
	}
	return TicketActive
}

func (t *Ticket) OwnedBy(identity string) bool {
	return SameIdentity(t.Owner, identity)
}

// List puts the ticket on the resale market. Listing an already listed
// ticket updates its price.
func (t *Ticket) List(price decimal.Decimal) error {
	if !price.IsPositive() {
		return status.ErrInvalidPrice
	}
	t.IsForSale = true
	t.ResalePrice = price
	return nil
}

// Cancel withdraws the listing. Cancelling an active ticket is a no-op.
func (t *Ticket) Cancel() {
	t.IsForSale = false
	t.ResalePrice = decimal.Zero
}

// Transfer hands a listed ticket to buyer at the agreed price and delists it.
func (t *Ticket) Transfer(buyer string, agreedPrice decimal.Decimal) error {
	if !t.IsForSale {
		return status.ErrNotListed
	}
	if SameIdentity(buyer, t.Owner) {
		return status.ErrSelfTransfer
	}
	t.Owner = buyer
	t.PurchasePrice = agreedPrice
	t.ResalePrice = decimal.Zero
	t.IsForSale = false
	return nil
}
