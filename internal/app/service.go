/**
 * @description
 * This file contains the core business logic for the ledger-service. The
 * `Service` struct orchestrates every ledger operation, coordinating between
 * the database repository, the chat-service client, and the message broker.
 *
 * Key features:
 * - Resolves and enforces organization membership before any mutation begins.
 * - Enforces the creditor/debtor role split of the payment confirmation
 *   protocol: the creditor (account owner) requests, confirms and disputes;
 *   the debtor (counterparty) only attests.
 * - Publishes events to RabbitMQ and posts chat system messages strictly
 *   after the storage transaction has committed.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - github.com/go-playground/validator/v10: Request payload validation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tradelink/ledger-service/internal/domain"
	"github.com/tradelink/ledger-service/internal/store"
	"github.com/tradelink/ledger-service/pkg/rabbitmq"
)

var (
	// ErrForbidden means the caller is not a member of the organization side
	// required for the attempted operation.
	ErrForbidden = errors.New("caller is not a member of the required organization")
)

// RateLimitedError reports that a caller exceeded the mutation rate limit.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded; retry after %ds", e.RetryAfterSeconds)
}

// RateLimiter is the distributed limiter consulted before payment mutations.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// ChatPoster posts system messages into the account's chat thread. Delivery is
// best-effort and always happens after the ledger transaction has committed.
type ChatPoster interface {
	PostSystemMessage(ctx context.Context, accountID uuid.UUID, text string) error
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	chat          ChatPoster
	validate      *validator.Validate

	limiter                   RateLimiter
	paymentRateLimitPerMinute int
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, chat ChatPoster) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		chat:          chat,
		validate:      validator.New(),
	}
}

// SetPaymentRateLimiter installs the distributed rate limiter for payment
// mutations. A nil limiter or non-positive limit disables limiting.
func (s *Service) SetPaymentRateLimiter(limiter RateLimiter, perMinute int) {
	s.limiter = limiter
	s.paymentRateLimitPerMinute = perMinute
}

// requireMember verifies the user belongs to the given organization.
func (s *Service) requireMember(ctx context.Context, orgID uuid.UUID, userID uuid.UUID) error {
	member, err := s.repo.IsOrgMember(ctx, orgID, userID)
	if err != nil {
		return fmt.Errorf("membership lookup failed: %w", err)
	}
	if !member {
		return ErrForbidden
	}
	return nil
}

// requireEitherSide verifies the user belongs to one of the two organizations
// on the account.
func (s *Service) requireEitherSide(ctx context.Context, account *domain.Account, userID uuid.UUID) error {
	if err := s.requireMember(ctx, account.OwnerOrgID, userID); err == nil {
		return nil
	} else if !errors.Is(err, ErrForbidden) {
		return err
	}
	return s.requireMember(ctx, account.CounterpartyOrgID, userID)
}

func (s *Service) checkPaymentRateLimit(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil || s.paymentRateLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, "payment_mutation", userID.String(), s.paymentRateLimitPerMinute, time.Minute)
	if err != nil {
		// Limiter outages never block money movement; log and continue.
		log.Printf("level=warn component=service msg=\"rate limiter unavailable\" user_id=%s err=%v", userID, err)
		return nil
	}
	if count > s.paymentRateLimitPerMinute {
		return &RateLimitedError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// CreateOrGetAccount establishes (or fetches) the mirrored account pair
// between the caller's organization and a counterparty. The caller must be a
// member of the owner organization.
func (s *Service) CreateOrGetAccount(ctx context.Context, userID uuid.UUID, ownerOrgID uuid.UUID, payload domain.CreateAccountPayload) (*domain.AccountResult, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, ownerOrgID, userID); err != nil {
		return nil, err
	}

	account, isNew, err := s.repo.GetOrCreateAccountPair(ctx, ownerOrgID, payload.CounterpartyOrgID)
	if err != nil {
		return nil, err
	}
	if isNew {
		log.Printf("level=info component=service msg=\"account pair created\" owner_org=%s counterparty_org=%s account_id=%s",
			ownerOrgID, payload.CounterpartyOrgID, account.ID)
	}
	return &domain.AccountResult{Account: account, IsNew: isNew}, nil
}

// ListAccounts retrieves paginated accounts owned by an organization the
// caller belongs to.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID, orgID uuid.UUID, opts domain.ListOptions) ([]domain.Account, error) {
	if err := s.requireMember(ctx, orgID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListAccountsByOwner(ctx, orgID, opts)
}

// GetAccount retrieves a single account the caller is allowed to see.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEitherSide(ctx, account, userID); err != nil {
		return nil, err
	}
	return account, nil
}

// CreateInvoice issues an invoice against an account, applying the mirrored
// balance delta to both sides atomically. Only members of the account owner's
// organization may invoice.
func (s *Service) CreateInvoice(ctx context.Context, userID uuid.UUID, accountID uuid.UUID, payload domain.CreateInvoicePayload) (*domain.Invoice, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, err
	}

	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, account.OwnerOrgID, userID); err != nil {
		return nil, err
	}

	invoice := &domain.Invoice{
		ID:            uuid.New(),
		AccountID:     accountID,
		InvoiceNumber: payload.InvoiceNumber,
		Amount:        payload.Amount,
		Description:   payload.Description,
		DueDate:       payload.DueDate,
		Status:        domain.InvoiceStatusOpen,
		CreatedBy:     userID,
	}
	if err := s.repo.CreateInvoiceWithEntries(ctx, invoice); err != nil {
		if errors.Is(err, store.ErrMirrorAccountMissing) {
			log.Printf("level=error component=service msg=\"mirror account missing during invoice creation\" account_id=%s", accountID)
		}
		return nil, err
	}

	s.publishEvent(ctx, "ledger.invoice.created", domain.InvoiceCreatedEvent{
		InvoiceID:     invoice.ID,
		AccountID:     invoice.AccountID,
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.Amount,
		CreatedBy:     invoice.CreatedBy,
		Timestamp:     time.Now().UTC(),
	})
	return invoice, nil
}

// MarkInvoicePaid transitions an invoice from OPEN to PAID. Reconciliation
// only; no ledger effect.
func (s *Service) MarkInvoicePaid(ctx context.Context, userID uuid.UUID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccountByID(ctx, invoice.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, account.OwnerOrgID, userID); err != nil {
		return nil, err
	}
	return s.repo.MarkInvoicePaid(ctx, invoiceID)
}

// ListInvoices retrieves paginated invoices for an account visible to the
// caller.
func (s *Service) ListInvoices(ctx context.Context, userID uuid.UUID, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Invoice, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEitherSide(ctx, account, userID); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, accountID, opts)
}

// CreatePayment records a direct (already settled) payment with immediate
// mirrored ledger effect. Members of either side may record one; the storage
// layer validates balance sufficiency under a row lock.
func (s *Service) CreatePayment(ctx context.Context, userID uuid.UUID, accountID uuid.UUID, payload domain.CreatePaymentPayload) (*domain.Payment, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, err
	}
	if err := s.checkPaymentRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEitherSide(ctx, account, userID); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      payload.Amount,
		Tag:         payload.Tag,
		Mode:        payload.Mode,
		Reference:   payload.Reference,
		Remarks:     payload.Remarks,
		RequestedBy: userID,
	}
	if err := s.repo.CreateDirectPayment(ctx, payment); err != nil {
		return nil, err
	}

	s.notifyPayment(ctx, "ledger.payment.recorded", payment, userID)
	s.postChatMessage(ctx, accountID, fmt.Sprintf("Payment of %d recorded (%s).", payment.Amount, payment.Mode))
	return payment, nil
}

// CreatePaymentRequest opens the two-party confirmation protocol. Only
// members of the owner (creditor) organization may request. No balance
// effect until confirmation.
func (s *Service) CreatePaymentRequest(ctx context.Context, userID uuid.UUID, accountID uuid.UUID, payload domain.CreatePaymentRequestPayload) (*domain.Payment, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, err
	}

	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, account.OwnerOrgID, userID); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      payload.Amount,
		Tag:         payload.Tag,
		Remarks:     payload.Remarks,
		InvoiceID:   payload.InvoiceID,
		Status:      domain.PaymentStatusPending,
		RequestedBy: userID,
	}
	if err := s.repo.CreatePaymentRequest(ctx, payment); err != nil {
		return nil, err
	}

	s.notifyPayment(ctx, "ledger.payment.requested", payment, userID)
	return payment, nil
}

// MarkPaymentAsPaid is the debtor's attestation that money was sent. Legal
// only from PENDING; only members of the counterparty (debtor) organization
// may attest. No balance effect.
func (s *Service) MarkPaymentAsPaid(ctx context.Context, userID uuid.UUID, paymentID uuid.UUID, payload domain.MarkPaymentPaidPayload) (*domain.Payment, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, err
	}
	if err := s.checkPaymentRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	payment, account, err := s.loadPaymentWithAccount(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, account.CounterpartyOrgID, userID); err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusMarkedAsPaid) {
		return nil, &store.InvalidPaymentStatusError{Current: payment.Status, Attempted: domain.PaymentStatusMarkedAsPaid}
	}

	marked, err := s.repo.MarkPaymentAsPaid(ctx, paymentID, store.MarkPaymentPaidParams{
		MarkedPaidBy:  userID,
		Mode:          payload.Mode,
		UTRNumber:     payload.UTRNumber,
		ProofNote:     payload.ProofNote,
		AttachmentIDs: payload.AttachmentIDs,
	})
	if err != nil {
		return nil, err
	}

	s.notifyPayment(ctx, "ledger.payment.marked_paid", marked, userID)
	return marked, nil
}

// ConfirmPayment is the creditor's final verification: the only transition of
// a requested payment that mutates balances. Legal only from MARKED_AS_PAID;
// only members of the owner (creditor) organization may confirm.
func (s *Service) ConfirmPayment(ctx context.Context, userID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error) {
	if err := s.checkPaymentRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	payment, account, err := s.loadPaymentWithAccount(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, account.OwnerOrgID, userID); err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusConfirmed) {
		return nil, &store.InvalidPaymentStatusError{Current: payment.Status, Attempted: domain.PaymentStatusConfirmed}
	}

	confirmed, err := s.repo.ConfirmPayment(ctx, paymentID, userID)
	if err != nil {
		if errors.Is(err, store.ErrMirrorAccountMissing) {
			log.Printf("level=error component=service msg=\"mirror account missing during payment confirmation\" payment_id=%s account_id=%s", paymentID, account.ID)
		}
		return nil, err
	}

	s.notifyPayment(ctx, "ledger.payment.confirmed", confirmed, userID)
	s.postChatMessage(ctx, account.ID, fmt.Sprintf("Payment of %d confirmed.", confirmed.Amount))
	return confirmed, nil
}

// DisputePayment records the creditor's rejection of an attestation. Legal
// only from MARKED_AS_PAID; terminal; no balance effect.
func (s *Service) DisputePayment(ctx context.Context, userID uuid.UUID, paymentID uuid.UUID, payload domain.DisputePaymentPayload) (*domain.Payment, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, err
	}

	payment, account, err := s.loadPaymentWithAccount(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, account.OwnerOrgID, userID); err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(domain.PaymentStatusDisputed) {
		return nil, &store.InvalidPaymentStatusError{Current: payment.Status, Attempted: domain.PaymentStatusDisputed}
	}

	disputed, err := s.repo.DisputePayment(ctx, paymentID, userID, payload.Reason)
	if err != nil {
		return nil, err
	}

	s.notifyPayment(ctx, "ledger.payment.disputed", disputed, userID)
	return disputed, nil
}

// GetPayment retrieves a single payment visible to the caller.
func (s *Service) GetPayment(ctx context.Context, userID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, account, err := s.loadPaymentWithAccount(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEitherSide(ctx, account, userID); err != nil {
		return nil, err
	}
	return payment, nil
}

// ListPayments retrieves paginated payments for an account visible to the
// caller.
func (s *Service) ListPayments(ctx context.Context, userID uuid.UUID, accountID uuid.UUID, opts domain.PaymentListOptions) ([]domain.Payment, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEitherSide(ctx, account, userID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, accountID, opts)
}

// ListPendingPayments retrieves payments still awaiting attestation or
// confirmation on an account visible to the caller.
func (s *Service) ListPendingPayments(ctx context.Context, userID uuid.UUID, accountID uuid.UUID, opts domain.ListOptions) ([]domain.Payment, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEitherSide(ctx, account, userID); err != nil {
		return nil, err
	}
	return s.repo.ListPendingPayments(ctx, accountID, opts)
}

// ListLedgerEntries retrieves the paginated audit timeline for an account
// visible to the caller, newest first.
func (s *Service) ListLedgerEntries(ctx context.Context, userID uuid.UUID, accountID uuid.UUID, opts domain.ListOptions) ([]domain.LedgerEntry, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEitherSide(ctx, account, userID); err != nil {
		return nil, err
	}
	return s.repo.ListLedgerEntries(ctx, accountID, opts)
}

func (s *Service) loadPaymentWithAccount(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, *domain.Account, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.repo.FindAccountByID(ctx, payment.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return payment, account, nil
}

// publishEvent publishes to the events exchange after a committed mutation.
// Publish failures are logged, never surfaced: the ledger state is already
// durable and collaborators reconcile via queries.
func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

func (s *Service) notifyPayment(ctx context.Context, routingKey string, payment *domain.Payment, actorID uuid.UUID) {
	s.publishEvent(ctx, routingKey, domain.PaymentEvent{
		PaymentID: payment.ID,
		AccountID: payment.AccountID,
		Amount:    payment.Amount,
		Status:    payment.Status,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) postChatMessage(ctx context.Context, accountID uuid.UUID, text string) {
	if s.chat == nil {
		return
	}
	if err := s.chat.PostSystemMessage(ctx, accountID, text); err != nil {
		log.Printf("level=warn component=service msg=\"chat system message failed\" account_id=%s err=%v", accountID, err)
	}
}
