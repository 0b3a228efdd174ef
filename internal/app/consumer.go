package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tradelink/ledger-service/internal/domain"
	"github.com/tradelink/ledger-service/internal/store"
)

// TripEventConsumer reacts to trip.completed events from the trip subsystem
// by issuing a freight invoice on the trip's account. The trip lifecycle
// itself lives outside this service; the event payload carries everything the
// ledger needs.
type TripEventConsumer struct {
	service *Service
}

func NewTripEventConsumer(service *Service) *TripEventConsumer {
	return &TripEventConsumer{service: service}
}

// HandleMessage processes one trip.completed message. Returning true acks the
// message; malformed payloads are acked and dropped since redelivery cannot
// fix them.
func (c *TripEventConsumer) HandleMessage(body []byte) bool {
	var event domain.TripCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("trip-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if event.TripID == uuid.Nil || event.AccountID == uuid.Nil {
		log.Printf("trip-consumer: missing trip or account id in event %+v", event)
		return true
	}
	if event.FreightPaise <= 0 {
		log.Printf("trip-consumer: non-positive freight for trip %s; acknowledging", event.TripID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("trip-consumer: processing error for trip %s: %v", event.TripID, err)
		return false
	}

	return true
}

func (c *TripEventConsumer) processEvent(ctx context.Context, event domain.TripCompletedEvent) error {
	description := event.Description
	if description == "" {
		description = fmt.Sprintf("Freight charges for trip %s", event.TripID)
	}

	payload := domain.CreateInvoicePayload{
		InvoiceNumber: tripInvoiceNumber(event.TripID),
		Amount:        event.FreightPaise,
		Description:   description,
	}

	_, err := c.service.CreateInvoice(ctx, event.CompletedBy, event.AccountID, payload)
	if err != nil {
		// A replayed trip.completed event hits the per-account invoice
		// number uniqueness; the invoice already exists, so ack.
		if errors.Is(err, store.ErrDuplicateInvoiceNumber) {
			log.Printf("trip-consumer: invoice already issued for trip %s; acknowledging", event.TripID)
			return nil
		}
		return fmt.Errorf("create trip invoice: %w", err)
	}
	return nil
}

// tripInvoiceNumber derives a deterministic invoice number from the trip id
// so replayed events cannot issue a second invoice.
func tripInvoiceNumber(tripID uuid.UUID) string {
	return "TRIP-" + tripID.String()
}
