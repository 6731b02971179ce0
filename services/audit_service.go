package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"glowdesk-backend/models"
	"glowdesk-backend/store"

	"github.com/google/uuid"
)

// sideEffectTimeout bounds detached sink work so it cannot hang forever
// after the originating request has finished.
const sideEffectTimeout = 15 * time.Second

// AuditSink records append-only audit entries and enqueues user-facing
// notifications. Everything here is a side effect of an already-committed
// transition: failures are logged and never propagated to the caller.
type AuditSink struct {
	store    store.Store
	notifier Notifier
}

func NewAuditSink(st store.Store, notifier Notifier) *AuditSink {
	return &AuditSink{store: st, notifier: notifier}
}

// RecordChange writes one immutable audit entry.
func (s *AuditSink) RecordChange(ctx context.Context, entry models.AuditEntry) error {
	entry.ID = uuid.New().String()
	entry.Timestamp = time.Now()
	if err := s.store.Set(ctx, store.ColAuditLogs, entry.ID, entry); err != nil {
		return fmt.Errorf("audit write: %w", err)
	}
	return nil
}

// BookingStatusChanged audits a booking transition and enqueues the
// customer message synthesized from the booking fields. Call it detached
// (go sink.BookingStatusChanged(...)) after the primary mutation commits;
// it recovers its own panics and uses its own context.
func (s *AuditSink) BookingStatusChanged(b models.Booking, previous models.BookingStatus, performedBy string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Audit sink panic for booking %s: %v", b.ID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if err := s.RecordChange(ctx, models.AuditEntry{
		OwnerUID:      b.OwnerUID,
		ActionType:    models.AuditStatusChange,
		EntityType:    "booking",
		EntityID:      b.ID,
		PerformedBy:   performedBy,
		PreviousValue: string(previous),
		NewValue:      string(b.Status),
	}); err != nil {
		log.Printf("Booking %s: audit entry failed: %v", b.ID, err)
	}

	notifType, message := bookingMessage(b)
	if notifType == "" {
		return
	}
	err := s.notifier.Enqueue(ctx, models.Notification{
		OwnerUID:    b.OwnerUID,
		CustomerUID: b.CustomerUID,
		Type:        notifType,
		Message:     message,
		ClientEmail: b.ClientEmail,
		ClientPhone: b.ClientPhone,
	})
	if err != nil {
		log.Printf("Booking %s: notification enqueue failed: %v", b.ID, err)
	}
}

// BillingStatusChanged audits a billing transition. Notification is only
// sent for transitions the tenant must act on.
func (s *AuditSink) BillingStatusChanged(rec models.TenantBilling, previous models.BillingStatus, performedBy string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Audit sink panic for tenant %s: %v", rec.TenantID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if err := s.RecordChange(ctx, models.AuditEntry{
		OwnerUID:      rec.OwnerUID,
		ActionType:    models.AuditStatusChange,
		EntityType:    "tenant_billing",
		EntityID:      rec.TenantID,
		PerformedBy:   performedBy,
		PreviousValue: string(previous),
		NewValue:      string(rec.BillingStatus),
	}); err != nil {
		log.Printf("Tenant %s: audit entry failed: %v", rec.TenantID, err)
	}

	var notifType models.NotificationType
	var message string
	switch rec.BillingStatus {
	case models.BillingSuspended:
		notifType = models.NotifyBillingSuspended
		message = "Your GlowDesk subscription has been suspended after the payment grace period expired. Update your payment method to restore access."
	case models.BillingActive:
		if previous == models.BillingPastDue || previous == models.BillingSuspended {
			notifType = models.NotifyBillingReactivated
			message = "Payment received. Your GlowDesk subscription is active again."
		}
	}
	if notifType == "" {
		return
	}
	err := s.notifier.Enqueue(ctx, models.Notification{
		OwnerUID: rec.OwnerUID,
		Type:     notifType,
		Message:  message,
	})
	if err != nil {
		log.Printf("Tenant %s: notification enqueue failed: %v", rec.TenantID, err)
	}
}

// bookingMessage synthesizes the customer-facing text for a booking status.
func bookingMessage(b models.Booking) (models.NotificationType, string) {
	when := fmt.Sprintf("%s on %s at %s", b.ServiceName, b.Date, b.Time)

	switch b.Status {
	case models.BookingAwaitingStaffApproval:
		return models.NotifyBookingAwaitingApproval,
			fmt.Sprintf("Booking %s (%s) has been received and is awaiting staff approval.", b.BookingCode, when)
	case models.BookingConfirmed:
		msg := fmt.Sprintf("Booking %s (%s) is confirmed.", b.BookingCode, when)
		if b.StaffName != "" {
			msg += fmt.Sprintf(" You will be attended by %s.", b.StaffName)
		}
		return models.NotifyBookingConfirmed, msg
	case models.BookingStaffRejected:
		return models.NotifyBookingRejected,
			fmt.Sprintf("Booking %s (%s) could not be accepted by the assigned staff. We will contact you to reschedule.", b.BookingCode, when)
	case models.BookingCompleted:
		return models.NotifyBookingCompleted,
			fmt.Sprintf("Booking %s is complete. Thank you for visiting!", b.BookingCode)
	case models.BookingCancelled:
		return models.NotifyBookingCancelled,
			fmt.Sprintf("Booking %s (%s) has been cancelled.", b.BookingCode, when)
	}
	return "", ""
}
