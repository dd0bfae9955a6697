package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"blocktix/internal/status"

	"github.com/shopspring/decimal"
)

// Capacity is the seat-accounting schema of an event: *Slotted or *Unslotted.
type Capacity interface {
	Seats() (total, remaining int)
	clone() Capacity
}

// Slotted tracks capacity per time slot. RemainingSeats mirrors the sum of
// Available and is decremented together with it.
type Slotted struct {
	Labels         []string
	Total          map[string]int
	Available      map[string]int
	TotalSeats     int
	RemainingSeats int
}

func (s *Slotted) Seats() (int, int) { return s.TotalSeats, s.RemainingSeats }

func (s *Slotted) clone() Capacity {
	c := &Slotted{
		Labels:         slices.Clone(s.Labels),
		Total:          make(map[string]int, len(s.Total)),
		Available:      make(map[string]int, len(s.Available)),
		TotalSeats:     s.TotalSeats,
		RemainingSeats: s.RemainingSeats,
	}
	for k, v := range s.Total {
		c.Total[k] = v
	}
	for k, v := range s.Available {
		c.Available[k] = v
	}
	return c
}

// Unslotted is the legacy single-pool schema.
type Unslotted struct {
	TotalSeats     int
	RemainingSeats int
}

func (u *Unslotted) Seats() (int, int) { return u.TotalSeats, u.RemainingSeats }

func (u *Unslotted) clone() Capacity {
	c := *u
	return &c
}

// NewSlotted builds a slotted capacity with every slot at full availability.
func NewSlotted(slots []SlotSpec) *Slotted {
	s := &Slotted{
		Labels:    make([]string, 0, len(slots)),
		Total:     make(map[string]int, len(slots)),
		Available: make(map[string]int, len(slots)),
	}
	for _, slot := range slots {
		s.Labels = append(s.Labels, slot.Label)
		s.Total[slot.Label] = slot.Capacity
		s.Available[slot.Label] = slot.Capacity
		s.TotalSeats += slot.Capacity
	}
	s.RemainingSeats = s.TotalSeats
	return s
}

type Event struct {
	ID          string
	Name        string
	Date        string
	Location    string
	Description string
	Price       decimal.Decimal
	Organizer   string
	CreatedAt   int64
	Capacity    Capacity
}

// NewEvent creates an event at full availability from a validated spec.
func NewEvent(spec EventSpec, organizer string, createdAt int64) *Event {
	e := &Event{Organizer: organizer, CreatedAt: createdAt}
	e.apply(spec)
	return e
}

func (e *Event) apply(spec EventSpec) {
	e.Name = spec.Name
	e.Date = spec.Date
	e.Location = spec.Location
	e.Description = spec.Description
	e.Price = spec.Price
	e.Capacity = NewSlotted(spec.Slots)
}

// Replace overwrites details and slots from spec and resets every counter to
// full capacity. Sell-through of the previous configuration is not carried over.
func (e *Event) Replace(spec EventSpec) {
	e.apply(spec)
}

func (e *Event) IsSlotted() bool {
	s, ok := e.Capacity.(*Slotted)
	return ok && s != nil
}

func (e *Event) HasSlot(slot string) bool {
	s, ok := e.Capacity.(*Slotted)
	if !ok {
		return false
	}
	_, exists := s.Total[slot]
	return exists
}

// Availability resolves the counter a reservation against slot reads from:
// the slot's own counter on slotted events, the aggregate otherwise.
func (e *Event) Availability(slot string) int {
	switch c := e.Capacity.(type) {
	case *Slotted:
		if slot != "" {
			return c.Available[slot]
		}
		return c.RemainingSeats
	case *Unslotted:
		return c.RemainingSeats
	}
	return 0
}

// Reserve checks and decrements capacity in one step. The caller is
// responsible for making the step atomic against the backing store.
func (e *Event) Reserve(slot string, quantity int) error {
	if quantity < 1 {
		return status.NewValidationError("quantity", "must be at least 1")
	}

	available := e.Availability(slot)
	if available < quantity {
		return fmt.Errorf("%w: requested %d, available %d", status.ErrInsufficientCapacity, quantity, available)
	}

	switch c := e.Capacity.(type) {
	case *Slotted:
		if slot != "" {
			c.Available[slot] = available - quantity
		}
		c.RemainingSeats = max(0, c.RemainingSeats-quantity)
	case *Unslotted:
		c.RemainingSeats = available - quantity
	}
	return nil
}

// SlotLabel is the label stamped on tickets minted against slot.
func (e *Event) SlotLabel(slot string) string {
	if !e.IsSlotted() || slot == "" {
		return StandardSlot
	}
	return slot
}

func (e *Event) Clone() *Event {
	c := *e
	if e.Capacity != nil {
		c.Capacity = e.Capacity.clone()
	}
	return &c
}

// eventRecord is the persisted shape of an Event.
type eventRecord struct {
	ID                string          `json:"id,omitempty"`
	Name              string          `json:"name"`
	Date              string          `json:"date"`
	Location          string          `json:"location"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Organizer         string          `json:"organizer"`
	CreatedAt         int64           `json:"createdAt"`
	TimeSlots         []string        `json:"timeSlots,omitempty"`
	SlotTotalCapacity map[string]int  `json:"slotTotalCapacity,omitempty"`
	SlotAvailability  map[string]int  `json:"slotAvailability,omitempty"`
	TotalSeats        int             `json:"totalSeats"`
	RemainingSeats    int             `json:"remainingSeats"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	rec := eventRecord{
		ID:          e.ID,
		Name:        e.Name,
		Date:        e.Date,
		Location:    e.Location,
		Description: e.Description,
		Price:       e.Price,
		Organizer:   e.Organizer,
		CreatedAt:   e.CreatedAt,
	}
	switch c := e.Capacity.(type) {
	case *Slotted:
		rec.TimeSlots = c.Labels
		rec.SlotTotalCapacity = c.Total
		rec.SlotAvailability = c.Available
		rec.TotalSeats = c.TotalSeats
		rec.RemainingSeats = c.RemainingSeats
	case *Unslotted:
		rec.TotalSeats = c.TotalSeats
		rec.RemainingSeats = c.RemainingSeats
	}
	return json.Marshal(rec)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var rec eventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	*e = Event{
		ID:          rec.ID,
		Name:        rec.Name,
		Date:        rec.Date,
		Location:    rec.Location,
		Description: rec.Description,
		Price:       rec.Price,
		Organizer:   rec.Organizer,
		CreatedAt:   rec.CreatedAt,
	}

	if len(rec.TimeSlots) == 0 && len(rec.SlotAvailability) == 0 {
		e.Capacity = &Unslotted{TotalSeats: rec.TotalSeats, RemainingSeats: rec.RemainingSeats}
		return nil
	}

	labels := rec.TimeSlots
	if len(labels) == 0 {
		for label := range rec.SlotAvailability {
			labels = append(labels, label)
		}
		sort.Strings(labels)
	}
	s := &Slotted{
		Labels:         labels,
		Total:          rec.SlotTotalCapacity,
		Available:      rec.SlotAvailability,
		TotalSeats:     rec.TotalSeats,
		RemainingSeats: rec.RemainingSeats,
	}
	if s.Total == nil {
		s.Total = map[string]int{}
	}
	if s.Available == nil {
		s.Available = map[string]int{}
	}
	e.Capacity = s
	return nil
}
