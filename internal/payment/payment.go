package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"interior/internal/config"
)

const ProviderStripe = "stripe"

// Consumed event types.
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// Checkout metadata keys.
const (
	MetadataUserID       = "user_id"
	MetadataGenerationID = "generation_id"
	MetadataPurpose      = "purpose"

	PurposeCredits = "credits"
	PurposeHD      = "hd_unlock"
)

var (
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrUnknownPrice     = errors.New("payment: price is not mapped to credits")
	ErrNotConfigured    = errors.New("payment: provider is not configured")
)

type LineItem struct {
	PriceID  string
	Quantity int64
}

// CheckoutSession is the provider-neutral view of a checkout.
type CheckoutSession struct {
	ID                string
	Paid              bool
	ClientReferenceID string
	Metadata          map[string]string
	LineItems         []LineItem
	URL               string
}

// UserID resolves the buyer from client_reference_id, then metadata.
func (s *CheckoutSession) UserID() (uint, error) {
	if s == nil {
		return 0, errors.New("checkout session is nil")
	}
	ref := strings.TrimSpace(s.ClientReferenceID)
	if ref == "" {
		ref = strings.TrimSpace(s.Metadata[MetadataUserID])
	}
	if ref == "" {
		return 0, errors.New("checkout session carries no user reference")
	}
	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user reference %q", ref)
	}
	return uint(id), nil
}

// GenerationID returns the generation tied to an HD checkout, or 0.
func (s *CheckoutSession) GenerationID() uint {
	if s == nil {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimSpace(s.Metadata[MetadataGenerationID]), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// Event is a verified webhook event.
type Event struct {
	ID      string
	Type    string
	Session *CheckoutSession
	Payload []byte
}

// CheckoutRequest creates a one-off payment checkout.
type CheckoutRequest struct {
	PriceID      string
	UserID       uint
	GenerationID uint
	Purpose      string
	SuccessURL   string
	CancelURL    string
}

// Gateway is what the services need from a payment provider.
type Gateway interface {
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// PriceTable maps provider price ids to credit amounts.
type PriceTable map[string]int64

func NewPriceTable(cfg config.Config) (PriceTable, error) {
	table, err := config.ParsePriceTable(cfg.CreditPriceTable)
	if err != nil {
		return nil, err
	}
	return PriceTable(table), nil
}

// CreditsFor totals the credits of all line items. Any unmapped price makes
// the whole purchase invalid.
func (t PriceTable) CreditsFor(items []LineItem) (int64, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: no line items", ErrUnknownPrice)
	}
	var total int64
	for _, item := range items {
		credits, ok := t[strings.TrimSpace(item.PriceID)]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownPrice, item.PriceID)
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		total += credits * qty
	}
	return total, nil
}
