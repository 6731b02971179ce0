package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// gatewayTimeout bounds every outbound payment-gateway call. A timeout or
// transport failure surfaces as ErrGatewayUnavailable, never as a silent
// retry.
const gatewayTimeout = 10 * time.Second

// CheckoutSession is what the billing engine needs from a completed (or
// not) checkout.
type CheckoutSession struct {
	ID              string
	OwnerRef        string // client reference set at checkout creation
	PaymentStatus   string // "paid", "unpaid", "no_payment_required"
	CustomerRef     string
	SubscriptionRef string
}

// Subscription is the gateway-side subscription view.
type Subscription struct {
	ID                 string
	Status             string // trialing, active, past_due, canceled, ...
	TrialEnd           *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// PaymentGateway abstracts the subscription billing provider. The concrete
// implementation is Stripe; tests inject fakes.
type PaymentGateway interface {
	RetrieveSession(ctx context.Context, ref string) (*CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, ref string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, ref string, cancelAtPeriodEnd bool) error
}

// StripeGateway implements PaymentGateway against the Stripe API.
type StripeGateway struct {
	webhookSecret string
}

func NewStripeGateway() *StripeGateway {
	stripelib.Key = os.Getenv("STRIPE_SECRET_KEY")
	return &StripeGateway{webhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET")}
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, ref string) (*CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	params := &stripelib.CheckoutSessionParams{}
	params.Context = ctx
	s, err := checkoutsession.Get(ref, params)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve session %s: %v", ErrGatewayUnavailable, ref, err)
	}

	out := &CheckoutSession{
		ID:            s.ID,
		OwnerRef:      s.ClientReferenceID,
		PaymentStatus: string(s.PaymentStatus),
	}
	if s.Customer != nil {
		out.CustomerRef = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionRef = s.Subscription.ID
	}
	return out, nil
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, ref string) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	s, err := stripesub.Get(ref, params)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve subscription %s: %v", ErrGatewayUnavailable, ref, err)
	}

	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		TrialEnd:          unixTime(s.TrialEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			out.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
			out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
			break
		}
	}
	return out, nil
}

func (g *StripeGateway) UpdateSubscription(ctx context.Context, ref string, cancelAtPeriodEnd bool) error {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	params := &stripelib.SubscriptionParams{
		CancelAtPeriodEnd: stripelib.Bool(cancelAtPeriodEnd),
	}
	params.Context = ctx
	if _, err := stripesub.Update(ref, params); err != nil {
		return fmt.Errorf("%w: update subscription %s: %v", ErrGatewayUnavailable, ref, err)
	}
	return nil
}

// GatewayEvent is a verified, provider-neutral webhook event. Only the
// fields the billing engine acts on are carried.
type GatewayEvent struct {
	ID                 string
	Type               string
	CustomerRef        string
	SubscriptionRef    string
	SubscriptionStatus string
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
}

// Gateway event types the billing engine handles.
const (
	EventPaymentFailed       = "invoice.payment_failed"
	EventPaymentSucceeded    = "invoice.paid"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// webhookSubscription is a minimal decode target for subscription events.
type webhookSubscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	TrialEnd          int64  `json:"trial_end"`
}

// webhookInvoice is a minimal decode target for invoice events.
type webhookInvoice struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// VerifyEvent checks the Stripe signature and maps the payload to a
// GatewayEvent. Unhandled event types return (nil, nil).
func (g *StripeGateway) VerifyEvent(payload []byte, sigHeader string) (*GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	switch string(event.Type) {
	case EventPaymentFailed, EventPaymentSucceeded:
		var inv webhookInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice event: %w", err)
		}
		return &GatewayEvent{
			ID:              event.ID,
			Type:            string(event.Type),
			CustomerRef:     inv.Customer,
			SubscriptionRef: inv.Subscription,
		}, nil

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub webhookSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription event: %w", err)
		}
		return &GatewayEvent{
			ID:                 event.ID,
			Type:               string(event.Type),
			CustomerRef:        sub.Customer,
			SubscriptionRef:    sub.ID,
			SubscriptionStatus: sub.Status,
			TrialEnd:           unixTime(sub.TrialEnd),
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		}, nil
	}
	return nil, nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
