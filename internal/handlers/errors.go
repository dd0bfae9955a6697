package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"blocktix/internal/status"
	"blocktix/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// WalletHeader carries the caller's connected wallet address.
const WalletHeader = "X-Wallet-Address"

func callerIdentity(e *core.RequestEvent) string {
	return strings.TrimSpace(e.Request.Header.Get(WalletHeader))
}

func requireCaller(e *core.RequestEvent) (string, error) {
	caller := callerIdentity(e)
	if caller == "" {
		return "", apis.NewUnauthorizedError("Connect a wallet first", nil)
	}
	return caller, nil
}

func bindAndValidate(e *core.RequestEvent, dst any) error {
	if err := e.BindBody(dst); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if err := models.Validator().Struct(dst); err != nil {
		return toApiError(models.ValidationFailure(err))
	}
	return nil
}

// toApiError maps domain errors onto HTTP responses.
func toApiError(err error) error {
	var (
		verr *status.ValidationError
		ferr *status.FulfillmentError
	)

	switch {
	case errors.As(err, &ferr):
		slog.Error("Purchase paid but not fulfilled", "tx_hash", ferr.TxHash, "minted", ferr.Minted, "requested", ferr.Requested, "error", ferr.Err)
		return apis.NewApiError(http.StatusInternalServerError,
			fmt.Sprintf("Payment %s was received but the purchase did not complete (%d of %d tickets issued). It has been flagged for follow-up.",
				ferr.TxHash, ferr.Minted, ferr.Requested), nil)
	case errors.As(err, &verr):
		return apis.NewBadRequestError(verr.Error(), nil)
	case errors.Is(err, status.ErrInvalidPrice), errors.Is(err, status.ErrSelfTransfer):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrPaymentRejected):
		return apis.NewApiError(http.StatusPaymentRequired, err.Error(), nil)
	case errors.Is(err, status.ErrNotOwner), errors.Is(err, status.ErrNotOrganizer):
		return apis.NewForbiddenError(err.Error(), nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("The requested resource wasn't found", nil)
	case errors.Is(err, status.ErrInsufficientCapacity),
		errors.Is(err, status.ErrNotListed),
		errors.Is(err, status.ErrListingChanged),
		errors.Is(err, status.ErrConflict),
		errors.Is(err, status.ErrInFlight):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, status.ErrPaymentUnavailable):
		return apis.NewApiError(http.StatusServiceUnavailable, "Wallet is unavailable, try again later", nil)
	}

	slog.Error("Unhandled request error", "error", err)
	return apis.NewInternalServerError("Something went wrong", nil)
}
