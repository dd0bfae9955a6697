package services

import (
	"encoding/json"
	"fmt"

	"blocktix/internal/store"
	"blocktix/models"
)

func encodeEvent(ev *models.Event) ([]byte, error) {
	rec := *ev
	rec.ID = ""
	return json.Marshal(rec)
}

func decodeEvent(doc store.Document) (*models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(doc.Data, &ev); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", doc.ID, err)
	}
	ev.ID = doc.ID
	return &ev, nil
}

func encodeTicket(t *models.Ticket) ([]byte, error) {
	rec := *t
	rec.ID = ""
	return json.Marshal(rec)
}

func decodeTicket(doc store.Document) (*models.Ticket, error) {
	var t models.Ticket
	if err := json.Unmarshal(doc.Data, &t); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", doc.ID, err)
	}
	t.ID = doc.ID
	return &t, nil
}
