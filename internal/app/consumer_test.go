package app

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/tradelink/ledger-service/internal/domain"
)

func tripConsumerFixture(t *testing.T) (*TripEventConsumer, *fakeRepo, *domain.Account, *domain.Account, uuid.UUID) {
	t.Helper()
	repo := newFakeRepo()
	orgA, orgB := uuid.New(), uuid.New()
	dispatcher := uuid.New()
	repo.addMember(orgA, dispatcher)
	owner, mirror := repo.addPair(orgA, orgB)

	service := NewService(repo, &publisherStub{}, nil)
	return NewTripEventConsumer(service), repo, owner, mirror, dispatcher
}

func TestTripConsumer_IssuesFreightInvoice(t *testing.T) {
	consumer, repo, owner, mirror, dispatcher := tripConsumerFixture(t)

	event := domain.TripCompletedEvent{
		TripID:       uuid.New(),
		AccountID:    owner.ID,
		FreightPaise: 75000,
		CompletedBy:  dispatcher,
	}
	body, _ := json.Marshal(event)

	if !consumer.HandleMessage(body) {
		t.Fatal("expected valid event to be acked")
	}

	if owner.Balance != 75000 || mirror.Balance != -75000 {
		t.Fatalf("expected freight applied to both sides, got %d / %d", owner.Balance, mirror.Balance)
	}
	if len(repo.invoices) != 1 {
		t.Fatalf("expected one invoice, got %d", len(repo.invoices))
	}
	for _, invoice := range repo.invoices {
		if invoice.InvoiceNumber != "TRIP-"+event.TripID.String() {
			t.Fatalf("expected deterministic trip invoice number, got %q", invoice.InvoiceNumber)
		}
	}
}

func TestTripConsumer_ReplayedEventAckedWithoutDoubleApply(t *testing.T) {
	consumer, repo, owner, mirror, dispatcher := tripConsumerFixture(t)

	event := domain.TripCompletedEvent{
		TripID:       uuid.New(),
		AccountID:    owner.ID,
		FreightPaise: 75000,
		CompletedBy:  dispatcher,
	}
	body, _ := json.Marshal(event)

	if !consumer.HandleMessage(body) {
		t.Fatal("expected first delivery to be acked")
	}
	if !consumer.HandleMessage(body) {
		t.Fatal("expected replay to be acked, not requeued")
	}

	if owner.Balance != 75000 || mirror.Balance != -75000 {
		t.Fatalf("expected single application under replay, got %d / %d", owner.Balance, mirror.Balance)
	}
	if len(repo.invoices) != 1 {
		t.Fatalf("expected one invoice after replay, got %d", len(repo.invoices))
	}
}

func TestTripConsumer_MalformedAndInvalidPayloadsAcked(t *testing.T) {
	consumer, repo, owner, _, dispatcher := tripConsumerFixture(t)

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Fatal("malformed payload must be acked; redelivery cannot fix it")
	}

	missingIDs, _ := json.Marshal(domain.TripCompletedEvent{FreightPaise: 1000})
	if !consumer.HandleMessage(missingIDs) {
		t.Fatal("event without ids must be acked and dropped")
	}

	zeroFreight, _ := json.Marshal(domain.TripCompletedEvent{
		TripID:      uuid.New(),
		AccountID:   owner.ID,
		CompletedBy: dispatcher,
	})
	if !consumer.HandleMessage(zeroFreight) {
		t.Fatal("event with zero freight must be acked and dropped")
	}

	if len(repo.invoices) != 0 || owner.Balance != 0 {
		t.Fatal("dropped events must not touch the ledger")
	}
}

func TestTripConsumer_TransientFailureRequeued(t *testing.T) {
	consumer, _, _, _, dispatcher := tripConsumerFixture(t)

	// Unknown account looks transient from the consumer's side (the account
	// pair may not be provisioned yet), so the message is requeued.
	event := domain.TripCompletedEvent{
		TripID:       uuid.New(),
		AccountID:    uuid.New(),
		FreightPaise: 1000,
		CompletedBy:  dispatcher,
	}
	body, _ := json.Marshal(event)

	if consumer.HandleMessage(body) {
		t.Fatal("expected processing failure to be nacked for redelivery")
	}
}
