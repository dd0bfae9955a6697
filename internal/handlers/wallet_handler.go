package handlers

import (
	"context"
	"net/http"

	"blocktix/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type BalanceReader interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}

type WalletHandler struct {
	wallet BalanceReader
}

func NewWalletHandler(wallet BalanceReader) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

func (h *WalletHandler) Balance(e *core.RequestEvent) error {
	address := e.Request.PathValue("address")
	if !models.IsAddress(address) {
		return apis.NewBadRequestError("Invalid wallet address", nil)
	}

	balance, err := h.wallet.Balance(e.Request.Context(), address)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"address": models.ChecksumAddress(address),
		"balance": balance.String(),
	})
}
