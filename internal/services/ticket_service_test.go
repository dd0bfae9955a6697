package services

import (
	"context"
	"testing"

	"blocktix/internal/status"
	"blocktix/internal/store"
	"blocktix/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintOne(t *testing.T, env *testEnv, owner string) *models.Ticket {
	t.Helper()
	ev := env.createEvent(t, models.SlotSpec{Label: "19:00", Capacity: 10})
	tk, err := env.tickets.Mint(context.Background(), ev, "19:00", ev.Price, owner)
	require.NoError(t, err)
	return tk
}

func TestTicketService_Mint(t *testing.T) {
	env := newTestEnv(t)
	tk := mintOne(t, env, buyerA)

	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, "Test Concert", tk.EventName)
	assert.Equal(t, "2026-11-20", tk.EventDate)
	assert.Equal(t, "19:00", tk.TimeSlot)
	assert.Equal(t, models.TicketActive, tk.State())
	assert.True(t, tk.PurchasePrice.Equal(decimal.RequireFromString("0.05")))

	stored, err := env.tickets.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, stored.ID)
	assert.Equal(t, buyerA, stored.Owner)
}

func TestTicketService_ListCancelRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tk := mintOne(t, env, buyerA)

	listed, err := env.tickets.ListForSale(ctx, tk.ID, decimal.RequireFromString("0.08"), buyerA)
	require.NoError(t, err)
	assert.True(t, listed.IsForSale)
	assert.True(t, listed.ResalePrice.Equal(decimal.RequireFromString("0.08")))

	relisted, err := env.tickets.ListForSale(ctx, tk.ID, decimal.RequireFromString("0.07"), buyerA)
	require.NoError(t, err)
	assert.True(t, relisted.ResalePrice.Equal(decimal.RequireFromString("0.07")))

	cancelled, err := env.tickets.Cancel(ctx, tk.ID, buyerA)
	require.NoError(t, err)
	assert.False(t, cancelled.IsForSale)
	assert.True(t, cancelled.ResalePrice.IsZero())
	assert.Equal(t, buyerA, cancelled.Owner)
	assert.True(t, cancelled.PurchasePrice.Equal(tk.PurchasePrice))
}

func TestTicketService_CancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tk := mintOne(t, env, buyerA)

	before, err := env.store.Read(ctx, store.Tickets, tk.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := env.tickets.Cancel(ctx, tk.ID, buyerA)
		require.NoError(t, err)
		assert.Equal(t, models.TicketActive, got.State())
	}

	after, err := env.store.Read(ctx, store.Tickets, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Rev, after.Rev)
}

func TestTicketService_ListRejectsNonPositivePrice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tk := mintOne(t, env, buyerA)

	for _, price := range []string{"-1", "0"} {
		_, err := env.tickets.ListForSale(ctx, tk.ID, decimal.RequireFromString(price), buyerA)
		assert.ErrorIs(t, err, status.ErrInvalidPrice, price)
	}

	stored, err := env.tickets.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsForSale)
	assert.True(t, stored.ResalePrice.IsZero())
}

func TestTicketService_OwnerChecks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tk := mintOne(t, env, buyerA)

	_, err := env.tickets.ListForSale(ctx, tk.ID, decimal.NewFromInt(1), buyerB)
	assert.ErrorIs(t, err, status.ErrNotOwner)

	_, err = env.tickets.ListForSale(ctx, tk.ID, decimal.NewFromInt(1), "0xbuyera")
	require.NoError(t, err, "identity comparison ignores case")

	_, err = env.tickets.Cancel(ctx, tk.ID, buyerB)
	assert.ErrorIs(t, err, status.ErrNotOwner)

	_, err = env.tickets.Cancel(ctx, "missing", buyerA)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestTicketService_Transfer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tk := mintOne(t, env, buyerA)
	price := decimal.RequireFromString("0.08")

	_, err := env.tickets.Transfer(ctx, tk.ID, buyerB, buyerA, price)
	assert.ErrorIs(t, err, status.ErrNotListed)

	_, err = env.tickets.ListForSale(ctx, tk.ID, price, buyerA)
	require.NoError(t, err)

	_, err = env.tickets.Transfer(ctx, tk.ID, buyerB, buyerA, decimal.RequireFromString("0.06"))
	assert.ErrorIs(t, err, status.ErrListingChanged)

	_, err = env.tickets.Transfer(ctx, tk.ID, buyerA, buyerA, price)
	assert.ErrorIs(t, err, status.ErrSelfTransfer)

	moved, err := env.tickets.Transfer(ctx, tk.ID, buyerB, buyerA, price)
	require.NoError(t, err)
	assert.Equal(t, buyerB, moved.Owner)
	assert.True(t, moved.PurchasePrice.Equal(price))
	assert.False(t, moved.IsForSale)

	_, err = env.tickets.Transfer(ctx, tk.ID, "0xBuyerC", buyerA, price)
	assert.ErrorIs(t, err, status.ErrNotListed)
}
