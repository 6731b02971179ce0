package models

import "time"

type NotificationType string

const (
	NotifyBookingAwaitingApproval NotificationType = "booking_awaiting_approval"
	NotifyBookingConfirmed        NotificationType = "booking_confirmed"
	NotifyBookingRejected         NotificationType = "booking_rejected"
	NotifyBookingCompleted        NotificationType = "booking_completed"
	NotifyBookingCancelled        NotificationType = "booking_cancelled"
	NotifyBillingSuspended        NotificationType = "billing_suspended"
	NotifyBillingReactivated      NotificationType = "billing_reactivated"
)

// Notification is a queued customer-facing message. Enqueueing writes the
// document and, when a broker is configured, publishes it for the delivery
// worker; delivery status is updated by the worker, not the engines.
type Notification struct {
	ID          string           `json:"id"`
	OwnerUID    string           `json:"ownerUid"`
	CustomerUID string           `json:"customerUid,omitempty"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`

	ClientEmail string `json:"clientEmail,omitempty"`
	ClientPhone string `json:"clientPhone,omitempty"`

	Channel string `json:"channel,omitempty"` // whatsapp, sms
	Status  string `json:"status"`            // queued, sent, failed
	Error   string `json:"error,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}
