package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"blocktix/internal/services/wallet"
	"blocktix/internal/store"
	"blocktix/internal/store/localstore"
	"blocktix/models"
	"blocktix/security"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	organizer = "0xOrganizer"
	buyerA    = "0xBuyerA"
	buyerB    = "0xBuyerB"
)

type testEnv struct {
	store       store.Store
	inventory   *InventoryService
	tickets     *TicketService
	wallet      *wallet.Simulated
	notifier    *recordingNotifier
	reconciler  *mockReconciler
	guard       *security.LocalGuard
	marketplace *MarketplaceService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, localstore.New())
}

func newTestEnvWithStore(t *testing.T, st store.Store) *testEnv {
	t.Helper()
	t.Cleanup(func() { st.Close() })

	env := &testEnv{
		store:      st,
		inventory:  NewInventoryService(st),
		tickets:    NewTicketService(st),
		wallet:     wallet.NewSimulated(decimal.NewFromInt(10)),
		notifier:   &recordingNotifier{},
		reconciler: &mockReconciler{},
		guard:      security.NewLocalGuard(),
	}
	env.marketplace = NewMarketplaceService(env.inventory, env.tickets, env.wallet, env.guard, env.notifier, env.reconciler, 0)
	return env
}

func (env *testEnv) createEvent(t *testing.T, slots ...models.SlotSpec) *models.Event {
	t.Helper()
	ev, err := env.marketplace.CreateEvent(context.Background(), models.EventSpec{
		Name:     "Test Concert",
		Date:     "2026-11-20",
		Location: "Test Arena",
		Price:    decimal.RequireFromString("0.05"),
		Slots:    slots,
	}, organizer)
	require.NoError(t, err)
	return ev
}

func (env *testEnv) ticketsOf(t *testing.T, owner string) []*models.Ticket {
	t.Helper()
	docs, err := env.store.List(context.Background(), store.Tickets)
	require.NoError(t, err)

	var out []*models.Ticket
	for _, doc := range docs {
		tk, err := decodeTicket(doc)
		require.NoError(t, err)
		if tk.OwnedBy(owner) {
			out = append(out, tk)
		}
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	Recipient string
	Msg       models.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient string, msg models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipient: recipient, Msg: msg})
}

func (n *recordingNotifier) find(recipient string, typ models.NotificationType) (models.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.sent {
		if s.Recipient == recipient && s.Msg.Type == typ {
			return s.Msg, true
		}
	}
	return models.Notification{}, false
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Record(ctx context.Context, rec models.UnfulfilledPayment) error {
	args := m.Called(rec)
	return args.Error(0)
}

var errStoreDown = errors.New("store unavailable")

// faultyStore fails ticket creation after allow successful creates.
type faultyStore struct {
	store.Store
	allow   int64
	created atomic.Int64
}

func (s *faultyStore) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if collection == store.Tickets && s.created.Add(1) > s.allow {
		return "", errStoreDown
	}
	return s.Store.Create(ctx, collection, data)
}

// payHook runs a callback after the wrapped payer confirms a payment.
type payHook struct {
	Payer
	after func()
}

func (p *payHook) Pay(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Payment, error) {
	payment, err := p.Payer.Pay(ctx, from, to, amount)
	if err == nil && p.after != nil {
		p.after()
	}
	return payment, err
}
