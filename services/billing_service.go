package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"glowdesk-backend/models"
	"glowdesk-backend/store"
)

// defaultGraceDays is how long a past_due tenant keeps access before the
// reconciliation job suspends it.
const defaultGraceDays = 14

const suspendedReasonGraceExpired = "payment grace period expired"

// BillingService is the billing lifecycle state machine. Three entry points
// (checkout verification, cancellation request, gateway webhook events)
// converge on the same status application and the same primary+mirror write
// path; the grace-period job reuses applyStatus to build its batches so all
// write paths produce the identical field set.
type BillingService struct {
	store   store.Store
	gateway PaymentGateway
	sink    *AuditSink
}

func NewBillingService(st store.Store, gateway PaymentGateway, sink *AuditSink) *BillingService {
	return &BillingService{store: st, gateway: gateway, sink: sink}
}

// applyStatus sets the billing status and enforces the field invariants:
// graceUntil only in past_due, suspendedAt/suspendedReason only in
// suspended. Every write path, including the reconciliation job, goes
// through this.
func applyStatus(rec *models.TenantBilling, status models.BillingStatus, now time.Time) {
	if status == models.BillingPastDue {
		if rec.BillingStatus != models.BillingPastDue || rec.GraceUntil == nil {
			grace := now.Add(defaultGraceDays * 24 * time.Hour)
			rec.GraceUntil = &grace
		}
	} else {
		rec.GraceUntil = nil
	}

	if status == models.BillingSuspended {
		if rec.BillingStatus != models.BillingSuspended {
			rec.SuspendedAt = &now
			rec.SuspendedReason = suspendedReasonGraceExpired
		}
	} else {
		rec.SuspendedAt = nil
		rec.SuspendedReason = ""
	}

	rec.BillingStatus = status
	rec.UpdatedAt = now
}

// writeBilling persists the primary record, then mirrors it. The mirror is
// a denormalized read convenience, not a second source of truth: its
// failure is logged and does not fail the transition.
func (s *BillingService) writeBilling(ctx context.Context, rec models.TenantBilling) error {
	if err := s.store.Set(ctx, store.ColTenantBilling, rec.TenantID, rec); err != nil {
		return fmt.Errorf("tenant %s: billing write: %w", rec.TenantID, err)
	}
	if err := s.store.Set(ctx, store.ColBillingMirror, rec.OwnerUID, rec); err != nil {
		log.Printf("Tenant %s: billing mirror write failed (drift until next write): %v", rec.TenantID, err)
	}
	return nil
}

// ConfirmCheckout verifies a completed checkout session and activates the
// subscription. Re-verifying an already-verified session converges on the
// same final state, which is what makes webhook/UI retries safe.
func (s *BillingService) ConfirmCheckout(ctx context.Context, sessionRef, callerUID string) (*models.TenantBilling, error) {
	sess, err := s.gateway.RetrieveSession(ctx, sessionRef)
	if err != nil {
		return nil, err
	}
	if sess.OwnerRef != callerUID {
		return nil, fmt.Errorf("session %s does not belong to caller: %w", sessionRef, ErrUnauthenticated)
	}
	if sess.PaymentStatus != "paid" && sess.PaymentStatus != "no_payment_required" {
		return nil, fmt.Errorf("session %s payment status %q: %w", sessionRef, sess.PaymentStatus, ErrPaymentIncomplete)
	}

	sub, err := s.gateway.RetrieveSubscription(ctx, sess.SubscriptionRef)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	isTrialing := sub.Status == "trialing" || (sub.TrialEnd != nil && sub.TrialEnd.After(now))

	rec, err := s.loadOrInit(ctx, callerUID)
	if err != nil {
		return nil, err
	}
	previous := rec.BillingStatus

	// The customer ref is how later webhook events find this tenant;
	// without it every payment_failed/paid event would be dropped.
	if sess.CustomerRef != "" {
		rec.StripeCustomerID = sess.CustomerRef
	}
	rec.StripeSubscriptionID = sub.ID
	rec.CurrentPeriodEnd = sub.CurrentPeriodEnd
	rec.TrialEnd = sub.TrialEnd
	rec.CancelAtPeriodEnd = sub.CancelAtPeriodEnd

	status := models.BillingActive
	if isTrialing {
		status = models.BillingTrialing
	}
	applyStatus(rec, status, now)

	if err := s.writeBilling(ctx, *rec); err != nil {
		return nil, err
	}

	if previous != rec.BillingStatus {
		go s.sink.BillingStatusChanged(*rec, previous, callerUID)
	}
	return rec, nil
}

// ScheduleCancellation flags the subscription to end at the period close.
// The terminal cancelled state arrives later through the gateway's own
// subscription.deleted event.
func (s *BillingService) ScheduleCancellation(ctx context.Context, tenantID string) error {
	var rec models.TenantBilling
	if err := s.store.Get(ctx, store.ColTenantBilling, tenantID, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
		}
		return err
	}

	if rec.CancelAtPeriodEnd {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrAlreadyScheduled)
	}

	if rec.StripeSubscriptionID != "" {
		if err := s.gateway.UpdateSubscription(ctx, rec.StripeSubscriptionID, true); err != nil {
			return err
		}
	}

	now := time.Now()
	rec.CancelAtPeriodEnd = true
	rec.CancellationRequestedAt = &now
	rec.UpdatedAt = now

	return s.writeBilling(ctx, rec)
}

// ApplyGatewayEvent applies a signature-verified webhook event. Events for
// customers we do not know are logged and dropped; webhook redelivery is
// harmless because every branch is an idempotent status application.
func (s *BillingService) ApplyGatewayEvent(ctx context.Context, ev *GatewayEvent) error {
	if ev == nil {
		return nil
	}

	rec, err := s.findByCustomerRef(ctx, ev.CustomerRef)
	if err != nil {
		return err
	}
	if rec == nil {
		log.Printf("Gateway event %s (%s): no tenant for customer %s, ignoring", ev.ID, ev.Type, ev.CustomerRef)
		return nil
	}
	previous := rec.BillingStatus
	now := time.Now()

	switch ev.Type {
	case EventPaymentFailed:
		applyStatus(rec, models.BillingPastDue, now)

	case EventPaymentSucceeded:
		applyStatus(rec, models.BillingActive, now)

	case EventSubscriptionUpdated:
		rec.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
		rec.TrialEnd = ev.TrialEnd
		if ev.SubscriptionRef != "" {
			rec.StripeSubscriptionID = ev.SubscriptionRef
		}
		applyStatus(rec, mapGatewayStatus(ev.SubscriptionStatus, rec.BillingStatus), now)

	case EventSubscriptionDeleted:
		applyStatus(rec, models.BillingCancelled, now)

	default:
		log.Printf("Gateway event %s: unhandled type %s, ignoring", ev.ID, ev.Type)
		return nil
	}

	if err := s.writeBilling(ctx, *rec); err != nil {
		return err
	}
	if previous != rec.BillingStatus {
		go s.sink.BillingStatusChanged(*rec, previous, "gateway:"+ev.ID)
	}
	return nil
}

func mapGatewayStatus(gatewayStatus string, current models.BillingStatus) models.BillingStatus {
	switch gatewayStatus {
	case "trialing":
		return models.BillingTrialing
	case "active":
		return models.BillingActive
	case "past_due", "unpaid":
		return models.BillingPastDue
	case "canceled":
		return models.BillingCancelled
	}
	return current
}

func (s *BillingService) loadOrInit(ctx context.Context, tenantID string) (*models.TenantBilling, error) {
	var rec models.TenantBilling
	err := s.store.Get(ctx, store.ColTenantBilling, tenantID, &rec)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &models.TenantBilling{
		TenantID:  tenantID,
		OwnerUID:  tenantID,
		CreatedAt: time.Now(),
	}, nil
}

func (s *BillingService) findByCustomerRef(ctx context.Context, customerRef string) (*models.TenantBilling, error) {
	if customerRef == "" {
		return nil, nil
	}
	var recs []models.TenantBilling
	err := s.store.Query(ctx, store.ColTenantBilling, &recs,
		store.Filter{Field: "stripeCustomerId", Value: customerRef})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}
