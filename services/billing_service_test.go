package services

import (
	"context"
	"testing"
	"time"

	"glowdesk-backend/models"
	"glowdesk-backend/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBillingFixture(t *testing.T) (*BillingService, *store.MemoryStore, *fakeGateway, *fakeNotifier) {
	t.Helper()
	st := store.NewMemoryStore()
	notifier := &fakeNotifier{}
	gw := newFakeGateway()
	svc := NewBillingService(st, gw, NewAuditSink(st, notifier))
	return svc, st, gw, notifier
}

func seedBilling(t *testing.T, st *store.MemoryStore, rec models.TenantBilling) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.ColTenantBilling, rec.TenantID, rec))
	require.NoError(t, st.Set(ctx, store.ColBillingMirror, rec.OwnerUID, rec))
}

func getBilling(t *testing.T, st *store.MemoryStore, tenantID string) models.TenantBilling {
	t.Helper()
	var rec models.TenantBilling
	require.NoError(t, st.Get(context.Background(), store.ColTenantBilling, tenantID, &rec))
	return rec
}

func getMirror(t *testing.T, st *store.MemoryStore, ownerUID string) models.TenantBilling {
	t.Helper()
	var rec models.TenantBilling
	require.NoError(t, st.Get(context.Background(), store.ColBillingMirror, ownerUID, &rec))
	return rec
}

func TestConfirmCheckout_ActivatesSubscription(t *testing.T) {
	svc, st, gw, _ := newBillingFixture(t)
	ctx := context.Background()

	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	gw.sessions["cs_1"] = &CheckoutSession{ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid", SubscriptionRef: "sub_1"}
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "active", CurrentPeriodEnd: &periodEnd}

	rec, err := svc.ConfirmCheckout(ctx, "cs_1", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingActive, rec.BillingStatus)
	assert.Equal(t, "sub_1", rec.StripeSubscriptionID)

	stored := getBilling(t, st, "owner-1")
	assert.Equal(t, models.BillingActive, stored.BillingStatus)
	assert.Nil(t, stored.GraceUntil)
	assert.Nil(t, stored.SuspendedAt)
	assert.Empty(t, stored.SuspendedReason)

	// Mirror carries the identical record.
	mirror := getMirror(t, st, "owner-1")
	assert.Equal(t, stored.BillingStatus, mirror.BillingStatus)
	assert.Equal(t, stored.StripeSubscriptionID, mirror.StripeSubscriptionID)
}

func TestConfirmCheckout_TrialingSubscription(t *testing.T) {
	svc, _, gw, _ := newBillingFixture(t)

	trialEnd := time.Now().Add(14 * 24 * time.Hour)
	gw.sessions["cs_1"] = &CheckoutSession{ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid", SubscriptionRef: "sub_1"}
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "trialing", TrialEnd: &trialEnd}

	rec, err := svc.ConfirmCheckout(context.Background(), "cs_1", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingTrialing, rec.BillingStatus)
	require.NotNil(t, rec.TrialEnd)
}

func TestConfirmCheckout_FutureTrialEndCountsAsTrialing(t *testing.T) {
	svc, _, gw, _ := newBillingFixture(t)

	trialEnd := time.Now().Add(24 * time.Hour)
	gw.sessions["cs_1"] = &CheckoutSession{ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid", SubscriptionRef: "sub_1"}
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "active", TrialEnd: &trialEnd}

	rec, err := svc.ConfirmCheckout(context.Background(), "cs_1", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingTrialing, rec.BillingStatus)
}

func TestConfirmCheckout_OwnershipMismatch(t *testing.T) {
	svc, st, gw, _ := newBillingFixture(t)

	gw.sessions["cs_1"] = &CheckoutSession{ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid", SubscriptionRef: "sub_1"}

	_, err := svc.ConfirmCheckout(context.Background(), "cs_1", "intruder")
	require.ErrorIs(t, err, ErrUnauthenticated)

	// No record was created.
	var rec models.TenantBilling
	err = st.Get(context.Background(), store.ColTenantBilling, "intruder", &rec)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfirmCheckout_PaymentIncomplete(t *testing.T) {
	svc, _, gw, _ := newBillingFixture(t)

	gw.sessions["cs_1"] = &CheckoutSession{ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "unpaid", SubscriptionRef: "sub_1"}

	_, err := svc.ConfirmCheckout(context.Background(), "cs_1", "owner-1")
	require.ErrorIs(t, err, ErrPaymentIncomplete)
}

func TestConfirmCheckout_GatewayDown(t *testing.T) {
	svc, _, gw, _ := newBillingFixture(t)
	gw.err = ErrGatewayUnavailable

	_, err := svc.ConfirmCheckout(context.Background(), "cs_1", "owner-1")
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestConfirmCheckout_IsIdempotent(t *testing.T) {
	svc, st, gw, _ := newBillingFixture(t)
	ctx := context.Background()

	gw.sessions["cs_1"] = &CheckoutSession{ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid", SubscriptionRef: "sub_1"}
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "active"}

	first, err := svc.ConfirmCheckout(ctx, "cs_1", "owner-1")
	require.NoError(t, err)
	second, err := svc.ConfirmCheckout(ctx, "cs_1", "owner-1")
	require.NoError(t, err)

	assert.Equal(t, first.BillingStatus, second.BillingStatus)
	assert.Equal(t, models.BillingActive, getBilling(t, st, "owner-1").BillingStatus)
}

func TestConfirmCheckout_ClearsGraceAndSuspension(t *testing.T) {
	svc, st, gw, _ := newBillingFixture(t)

	grace := time.Now().Add(-time.Hour)
	suspendedAt := time.Now().Add(-2 * time.Hour)
	seedBilling(t, st, models.TenantBilling{
		TenantID:        "owner-1",
		OwnerUID:        "owner-1",
		BillingStatus:   models.BillingSuspended,
		GraceUntil:      &grace,
		SuspendedAt:     &suspendedAt,
		SuspendedReason: suspendedReasonGraceExpired,
	})

	gw.sessions["cs_1"] = &CheckoutSession{ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid", SubscriptionRef: "sub_1"}
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "active"}

	rec, err := svc.ConfirmCheckout(context.Background(), "cs_1", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingActive, rec.BillingStatus)
	assert.Nil(t, rec.GraceUntil)
	assert.Nil(t, rec.SuspendedAt)
	assert.Empty(t, rec.SuspendedReason)
}

func TestScheduleCancellation(t *testing.T) {
	svc, st, gw, _ := newBillingFixture(t)

	seedBilling(t, st, models.TenantBilling{
		TenantID:             "owner-1",
		OwnerUID:             "owner-1",
		BillingStatus:        models.BillingActive,
		StripeSubscriptionID: "sub_1",
	})
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "active"}

	require.NoError(t, svc.ScheduleCancellation(context.Background(), "owner-1"))

	rec := getBilling(t, st, "owner-1")
	assert.True(t, rec.CancelAtPeriodEnd)
	assert.NotNil(t, rec.CancellationRequestedAt)
	// Status does not change immediately; cancelled arrives via the
	// gateway's end-of-period event.
	assert.Equal(t, models.BillingActive, rec.BillingStatus)
	assert.Equal(t, []string{"sub_1"}, gw.updateCalls)

	err := svc.ScheduleCancellation(context.Background(), "owner-1")
	require.ErrorIs(t, err, ErrAlreadyScheduled)
	assert.Len(t, gw.updateCalls, 1, "gateway must not be called again")
}

func TestScheduleCancellation_UnknownTenant(t *testing.T) {
	svc, _, _, _ := newBillingFixture(t)
	err := svc.ScheduleCancellation(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApplyGatewayEvent_PaymentFailedStartsGrace(t *testing.T) {
	svc, st, _, _ := newBillingFixture(t)

	seedBilling(t, st, models.TenantBilling{
		TenantID:         "owner-1",
		OwnerUID:         "owner-1",
		BillingStatus:    models.BillingActive,
		StripeCustomerID: "cus_1",
	})

	err := svc.ApplyGatewayEvent(context.Background(), &GatewayEvent{
		ID: "evt_1", Type: EventPaymentFailed, CustomerRef: "cus_1",
	})
	require.NoError(t, err)

	rec := getBilling(t, st, "owner-1")
	assert.Equal(t, models.BillingPastDue, rec.BillingStatus)
	require.NotNil(t, rec.GraceUntil, "past_due must carry a grace window")
	assert.WithinDuration(t, time.Now().Add(defaultGraceDays*24*time.Hour), *rec.GraceUntil, time.Minute)

	mirror := getMirror(t, st, "owner-1")
	assert.Equal(t, models.BillingPastDue, mirror.BillingStatus)
}

func TestApplyGatewayEvent_PaymentFailedKeepsExistingGraceWindow(t *testing.T) {
	svc, st, _, _ := newBillingFixture(t)

	grace := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	seedBilling(t, st, models.TenantBilling{
		TenantID:         "owner-1",
		OwnerUID:         "owner-1",
		BillingStatus:    models.BillingPastDue,
		GraceUntil:       &grace,
		StripeCustomerID: "cus_1",
	})

	err := svc.ApplyGatewayEvent(context.Background(), &GatewayEvent{
		ID: "evt_2", Type: EventPaymentFailed, CustomerRef: "cus_1",
	})
	require.NoError(t, err)

	rec := getBilling(t, st, "owner-1")
	require.NotNil(t, rec.GraceUntil)
	assert.WithinDuration(t, grace, *rec.GraceUntil, time.Second, "redelivered failure must not extend the window")
}

func TestApplyGatewayEvent_PaymentSucceededClearsGrace(t *testing.T) {
	svc, st, _, notifier := newBillingFixture(t)

	grace := time.Now().Add(24 * time.Hour)
	seedBilling(t, st, models.TenantBilling{
		TenantID:         "owner-1",
		OwnerUID:         "owner-1",
		BillingStatus:    models.BillingPastDue,
		GraceUntil:       &grace,
		StripeCustomerID: "cus_1",
	})

	err := svc.ApplyGatewayEvent(context.Background(), &GatewayEvent{
		ID: "evt_3", Type: EventPaymentSucceeded, CustomerRef: "cus_1",
	})
	require.NoError(t, err)

	rec := getBilling(t, st, "owner-1")
	assert.Equal(t, models.BillingActive, rec.BillingStatus)
	assert.Nil(t, rec.GraceUntil)

	require.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.NotifyBillingReactivated, notifier.last().Type)
}

func TestApplyGatewayEvent_SubscriptionDeleted(t *testing.T) {
	svc, st, _, _ := newBillingFixture(t)

	seedBilling(t, st, models.TenantBilling{
		TenantID:         "owner-1",
		OwnerUID:         "owner-1",
		BillingStatus:    models.BillingActive,
		StripeCustomerID: "cus_1",
	})

	err := svc.ApplyGatewayEvent(context.Background(), &GatewayEvent{
		ID: "evt_4", Type: EventSubscriptionDeleted, CustomerRef: "cus_1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BillingCancelled, getBilling(t, st, "owner-1").BillingStatus)
}

func TestConfirmCheckout_PersistsGatewayCustomerRef(t *testing.T) {
	svc, st, gw, _ := newBillingFixture(t)

	gw.sessions["cs_1"] = &CheckoutSession{
		ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid",
		CustomerRef: "cus_77", SubscriptionRef: "sub_1",
	}
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "active"}

	rec, err := svc.ConfirmCheckout(context.Background(), "cs_1", "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "cus_77", rec.StripeCustomerID)
	assert.Equal(t, "cus_77", getBilling(t, st, "owner-1").StripeCustomerID)
	assert.Equal(t, "cus_77", getMirror(t, st, "owner-1").StripeCustomerID)
}

func TestCheckoutThenWebhookLifecycle(t *testing.T) {
	// The full production path with no hand-seeded records: a tenant
	// activated through checkout must be reachable by every later
	// webhook event via the stored gateway customer ref.
	svc, st, gw, _ := newBillingFixture(t)
	ctx := context.Background()

	gw.sessions["cs_1"] = &CheckoutSession{
		ID: "cs_1", OwnerRef: "owner-1", PaymentStatus: "paid",
		CustomerRef: "cus_real", SubscriptionRef: "sub_1",
	}
	gw.subscriptions["sub_1"] = &Subscription{ID: "sub_1", Status: "active"}

	rec, err := svc.ConfirmCheckout(ctx, "cs_1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, models.BillingActive, rec.BillingStatus)

	// Payment failure reaches the tenant and starts the grace window.
	err = svc.ApplyGatewayEvent(ctx, &GatewayEvent{
		ID: "evt_fail", Type: EventPaymentFailed, CustomerRef: "cus_real",
	})
	require.NoError(t, err)
	pastDue := getBilling(t, st, "owner-1")
	require.Equal(t, models.BillingPastDue, pastDue.BillingStatus)
	require.NotNil(t, pastDue.GraceUntil)

	// Recovery reaches it too.
	err = svc.ApplyGatewayEvent(ctx, &GatewayEvent{
		ID: "evt_paid", Type: EventPaymentSucceeded, CustomerRef: "cus_real",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BillingActive, getBilling(t, st, "owner-1").BillingStatus)

	// And so does the terminal end-of-subscription event.
	err = svc.ApplyGatewayEvent(ctx, &GatewayEvent{
		ID: "evt_del", Type: EventSubscriptionDeleted, CustomerRef: "cus_real",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BillingCancelled, getBilling(t, st, "owner-1").BillingStatus)
}

func TestApplyGatewayEvent_UnknownCustomerIgnored(t *testing.T) {
	svc, _, _, _ := newBillingFixture(t)
	err := svc.ApplyGatewayEvent(context.Background(), &GatewayEvent{
		ID: "evt_5", Type: EventPaymentFailed, CustomerRef: "cus_nobody",
	})
	require.NoError(t, err)
}
