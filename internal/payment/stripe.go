package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"interior/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeGateway implements Gateway with stripe-go.
type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway(cfg config.Config) (*StripeGateway, error) {
	secret := strings.TrimSpace(cfg.StripeWebhookSecret)
	if secret == "" {
		return nil, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is empty", ErrNotConfigured)
	}
	if key := strings.TrimSpace(cfg.StripeSecretKey); key != "" {
		stripe.Key = key
	} else {
		logrus.Warn("STRIPE_SECRET_KEY is empty, checkout lookups will fail")
	}
	return &StripeGateway{webhookSecret: secret}, nil
}

// VerifyEvent checks the Stripe-Signature header before decoding anything.
func (g *StripeGateway) VerifyEvent(payload []byte, signatureHeader string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type), Payload: payload}
	if strings.HasPrefix(out.Type, "checkout.session.") && evt.Data != nil {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = fromStripeSession(&cs)
	}
	return out, nil
}

// GetCheckoutSession fetches the session with its line items expanded.
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("checkout session id is empty")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	cs, err := session.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session: %w", err)
	}
	return fromStripeSession(cs), nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if strings.TrimSpace(req.PriceID) == "" {
		return nil, errors.New("price id is empty")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(req.UserID), 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, strconv.FormatUint(uint64(req.UserID), 10))
	if req.Purpose != "" {
		params.AddMetadata(MetadataPurpose, req.Purpose)
	}
	if req.GenerationID > 0 {
		params.AddMetadata(MetadataGenerationID, strconv.FormatUint(uint64(req.GenerationID), 10))
	}
	cs, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return fromStripeSession(cs), nil
}

func fromStripeSession(cs *stripe.CheckoutSession) *CheckoutSession {
	if cs == nil {
		return nil
	}
	out := &CheckoutSession{
		ID:                cs.ID,
		Paid:              cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		ClientReferenceID: cs.ClientReferenceID,
		Metadata:          cs.Metadata,
		URL:               cs.URL,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if cs.LineItems != nil {
		for _, item := range cs.LineItems.Data {
			if item == nil || item.Price == nil {
				continue
			}
			out.LineItems = append(out.LineItems, LineItem{PriceID: item.Price.ID, Quantity: item.Quantity})
		}
	}
	return out
}
