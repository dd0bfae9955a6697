package handlers

import (
	"net/http"

	"blocktix/internal/services"
	"blocktix/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type EventHandler struct {
	marketplace *services.MarketplaceService
	catalog     *services.CatalogService
}

func NewEventHandler(marketplace *services.MarketplaceService, catalog *services.CatalogService) *EventHandler {
	return &EventHandler{
		marketplace: marketplace,
		catalog:     catalog,
	}
}

// ListEvents - all events, newest first. ?organizer= narrows to one organizer.
func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	events := h.catalog.Events()
	if organizer := e.Request.URL.Query().Get("organizer"); organizer != "" {
		events = h.catalog.EventsByOrganizer(organizer)
	}
	if events == nil {
		events = []*models.Event{}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"events": events,
		"total":  len(events),
	})
}

func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	ev, ok := h.catalog.Event(eventID)
	if !ok {
		return apis.NewNotFoundError("Event not found", nil)
	}
	return e.JSON(http.StatusOK, ev)
}

func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	var spec models.EventSpec
	if err := e.BindBody(&spec); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ev, err := h.marketplace.CreateEvent(e.Request.Context(), spec, caller)
	if err != nil {
		return toApiError(err)
	}
	return e.JSON(http.StatusCreated, ev)
}

// UpdateEvent - replace details and slots; every counter restarts at full capacity.
func (h *EventHandler) UpdateEvent(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	var spec models.EventSpec
	if err := e.BindBody(&spec); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ev, err := h.marketplace.UpdateEvent(e.Request.Context(), e.Request.PathValue("eventId"), spec, caller)
	if err != nil {
		return toApiError(err)
	}
	return e.JSON(http.StatusOK, ev)
}

func (h *EventHandler) DeleteEvent(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	if err := h.marketplace.DeleteEvent(e.Request.Context(), e.Request.PathValue("eventId"), caller); err != nil {
		return toApiError(err)
	}
	return e.NoContent(http.StatusNoContent)
}

// MaxPurchaseQuantity caps the tickets one primary purchase may mint. Each
// ticket is a separate write, so the cap bounds the request's fan-out.
const MaxPurchaseQuantity = 50

type purchaseRequest struct {
	Slot     string `json:"slot"`
	Quantity int    `json:"quantity" validate:"gte=1,lte=50"`
}

// Purchase - primary sale: pay the organizer, then reserve and mint.
func (h *EventHandler) Purchase(e *core.RequestEvent) error {
	caller, err := requireCaller(e)
	if err != nil {
		return err
	}

	req := purchaseRequest{Quantity: 1}
	if err := bindAndValidate(e, &req); err != nil {
		return err
	}

	res, err := h.marketplace.BuyPrimary(e.Request.Context(), e.Request.PathValue("eventId"), req.Slot, req.Quantity, caller)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Purchase completed",
		"tickets": res.Tickets,
		"event":   res.Event,
		"tx_hash": res.Payment.TxHash,
		"amount":  res.Payment.Amount.String(),
	})
}
