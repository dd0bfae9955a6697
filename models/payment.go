package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a wallet confirmation for a transfer of value.
type Payment struct {
	TxHash      string          `json:"tx_hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// UnfulfilledPayment records a payment that cleared while the purchase it paid
// for did not complete. It is raised for operator follow-up only.
type UnfulfilledPayment struct {
	Operation string          `json:"operation"` // primary, resale
	Payment   Payment         `json:"payment"`
	EventID   string          `json:"event_id,omitempty"`
	TicketID  string          `json:"ticket_id,omitempty"`
	Slot      string          `json:"slot,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	Minted    int             `json:"minted"`
	Reason    string          `json:"reason"`
	Amount    decimal.Decimal `json:"amount"`
	At        time.Time       `json:"at"`
}

type NotificationType string

const (
	NotifyTicketsMinted     NotificationType = "tickets_minted"
	NotifyTicketListed      NotificationType = "ticket_listed"
	NotifyTicketSold        NotificationType = "ticket_sold"
	NotifyTicketTransferred NotificationType = "ticket_transferred"
	NotifyEventsChanged     NotificationType = "events_changed"
)

type Notification struct {
	Type      NotificationType `json:"type"`
	EventID   string           `json:"event_id,omitempty"`
	TicketIDs []string         `json:"ticket_ids,omitempty"`
	Slot      string           `json:"slot,omitempty"`
	Price     string           `json:"price,omitempty"`
	TxHash    string           `json:"tx_hash,omitempty"`
}
