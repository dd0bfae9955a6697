package models

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"blocktix/internal/status"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Bounds on organizer input. With both in place the aggregate capacity of an
// event always fits in an int.
const (
	MaxSlotCapacity = 1_000_000
	MaxSlots        = 500
)

type SlotSpec struct {
	Label    string `json:"time" validate:"required"`
	Capacity int    `json:"capacity" validate:"gt=0,lte=1000000"`
}

// EventSpec is the organizer's input for creating or replacing an event.
type EventSpec struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Location    string          `json:"location" validate:"max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Price       decimal.Decimal `json:"price"`
	Slots       []SlotSpec      `json:"slots" validate:"required,min=1,max=500,unique=Label,dive"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator, reporting fields by their json name.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationFailure converts validator errors into a *status.ValidationError
// naming the first violated field.
func ValidationFailure(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return status.NewValidationError(field, fe.Tag())
	}
	return err
}

// Normalize trims free-text fields and slot labels in place.
func (s *EventSpec) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Date = strings.TrimSpace(s.Date)
	s.Location = strings.TrimSpace(s.Location)
	for i := range s.Slots {
		s.Slots[i].Label = strings.TrimSpace(s.Slots[i].Label)
	}
}

func (s EventSpec) Validate() error {
	if err := Validator().Struct(s); err != nil {
		return ValidationFailure(err)
	}
	if s.Price.IsNegative() {
		return status.NewValidationError("price", "must not be negative")
	}
	if _, err := time.Parse(time.DateOnly, s.Date); err != nil {
		return status.NewValidationError("date", "datetime")
	}
	return nil
}

// TotalCapacity is the aggregate seat count across all slots.
func (s EventSpec) TotalCapacity() int {
	total := 0
	for _, slot := range s.Slots {
		total += slot.Capacity
	}
	return total
}
