package models

import "time"

type BillingStatus string

const (
	BillingTrialing  BillingStatus = "trialing"
	BillingActive    BillingStatus = "active"
	BillingPastDue   BillingStatus = "past_due"
	BillingSuspended BillingStatus = "suspended"
	BillingCancelled BillingStatus = "cancelled"
)

// TenantBilling is the per-tenant subscription record. The authoritative
// copy lives in tenant_billing keyed by the tenant id; a denormalized copy
// is mirrored into owner_billing_mirror keyed by ownerUid.
//
// Field invariants, enforced by the billing mutation routine:
//   - GraceUntil is set iff BillingStatus == past_due
//   - SuspendedAt/SuspendedReason are set iff BillingStatus == suspended
type TenantBilling struct {
	TenantID string `json:"tenantId"`
	OwnerUID string `json:"ownerUid"`

	BillingStatus BillingStatus `json:"billingStatus"`
	Plan          string        `json:"plan"`

	StripeCustomerID     string `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string `json:"stripeSubscriptionId,omitempty"`

	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	TrialEnd         *time.Time `json:"trialEnd,omitempty"`
	GraceUntil       *time.Time `json:"graceUntil,omitempty"`

	CancelAtPeriodEnd       bool       `json:"cancelAtPeriodEnd"`
	CancellationRequestedAt *time.Time `json:"cancellationRequestedAt,omitempty"`

	SuspendedReason string     `json:"suspendedReason,omitempty"`
	SuspendedAt     *time.Time `json:"suspendedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
