package handlers

import (
	"net/http"

	"blocktix/internal/services"
	"blocktix/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type TicketHandler struct {
	marketplace *services.MarketplaceService
	catalog     *services.CatalogService
}

func NewTicketHandler(marketplace *services.MarketplaceService, catalog *services.CatalogService) *TicketHandler {
	return &TicketHandler{
		marketplace: marketplace,
		catalog:     catalog,
	}
}

// MyTickets - tickets owned by the connected wallet.
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	tickets := h.catalog.TicketsOwnedBy(caller)
	if tickets == nil {
		tickets = []*models.Ticket{}
	}
	return e.JSON(http.StatusOK, map[string]any{
		"owner":   models.ChecksumAddress(caller),
		"tickets": tickets,
	})
}

// Market - every ticket listed for resale.
func (h *TicketHandler) Market(e *core.RequestEvent) error {
	listings := h.catalog.Market()
	if listings == nil {
		listings = []*models.Ticket{}
	}
	return e.JSON(http.StatusOK, map[string]any{
		"listings": listings,
		"total":    len(listings),
	})
}

type listRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (h *TicketHandler) List(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	var req listRequest
	if err := bindAndValidate(e, &req); err != nil {
		return err
	}

	t, err := h.marketplace.ListTicket(e.Request.Context(), e.Request.PathValue("ticketId"), req.Price, caller)
	if err != nil {
		return toApiError(err)
	}
	return e.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Cancel(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	t, err := h.marketplace.CancelListing(e.Request.Context(), e.Request.PathValue("ticketId"), caller)
	if err != nil {
		return toApiError(err)
	}
	return e.JSON(http.StatusOK, t)
}

// Buy - resale purchase at the listed price.
func (h *TicketHandler) Buy(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	res, err := h.marketplace.BuyResale(e.Request.Context(), e.Request.PathValue("ticketId"), caller)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Ticket purchased",
		"ticket":  res.Ticket,
		"tx_hash": res.Payment.TxHash,
		"amount":  res.Payment.Amount.String(),
	})
}
