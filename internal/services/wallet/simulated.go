package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blocktix/internal/status"
	"blocktix/models"
	"blocktix/utils"

	"github.com/shopspring/decimal"
)

// Simulated settles payments against in-memory balances. It backs local
// development and tests.
type Simulated struct {
	mu             sync.Mutex
	defaultBalance decimal.Decimal
	balances       map[string]decimal.Decimal
	rejecting      map[string]bool
	unavailable    bool
	payments       []models.Payment
}

func NewSimulated(defaultBalance decimal.Decimal) *Simulated {
	return &Simulated{
		defaultBalance: defaultBalance,
		balances:       make(map[string]decimal.Decimal),
		rejecting:      make(map[string]bool),
	}
}

// Fund sets the balance of address.
func (s *Simulated) Fund(address string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[models.NormalizeIdentity(address)] = amount
}

// RejectFrom makes every payment from address fail as if its owner declined.
func (s *Simulated) RejectFrom(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejecting[models.NormalizeIdentity(address)] = true
}

// SetUnavailable toggles a simulated outage.
func (s *Simulated) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *Simulated) Pay(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return nil, fmt.Errorf("%w: simulated outage", status.ErrPaymentUnavailable)
	}

	src, dst := models.NormalizeIdentity(from), models.NormalizeIdentity(to)
	if s.rejecting[src] {
		return nil, fmt.Errorf("%w: user rejected the request", status.ErrPaymentRejected)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", status.ErrPaymentRejected, amount)
	}

	balance := s.balanceLocked(src)
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: insufficient funds: balance %s, amount %s", status.ErrPaymentRejected, balance, amount)
	}

	hash, err := utils.RandomTxHash()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
	}

	s.balances[src] = balance.Sub(amount)
	s.balances[dst] = s.balanceLocked(dst).Add(amount)

	payment := models.Payment{TxHash: hash, From: from, To: to, Amount: amount, ConfirmedAt: time.Now()}
	s.payments = append(s.payments, payment)
	return &payment, nil
}

func (s *Simulated) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable {
		return decimal.Zero, fmt.Errorf("%w: simulated outage", status.ErrPaymentUnavailable)
	}
	return s.balanceLocked(models.NormalizeIdentity(address)), nil
}

// Payments returns every confirmed payment in order.
func (s *Simulated) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Payment(nil), s.payments...)
}

func (s *Simulated) balanceLocked(key string) decimal.Decimal {
	if b, ok := s.balances[key]; ok {
		return b
	}
	return s.defaultBalance
}
