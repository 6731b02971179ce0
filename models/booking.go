package models

import "time"

type BookingStatus string

const (
	BookingPending               BookingStatus = "pending"
	BookingAwaitingStaffApproval BookingStatus = "awaiting_staff_approval"
	BookingPartiallyApproved     BookingStatus = "partially_approved"
	BookingConfirmed             BookingStatus = "confirmed"
	BookingStaffRejected         BookingStatus = "staff_rejected"
	BookingCompleted             BookingStatus = "completed"
	BookingCancelled             BookingStatus = "cancelled"
)

// ParseBookingStatus validates a client-supplied status string.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPending, BookingAwaitingStaffApproval, BookingPartiallyApproved,
		BookingConfirmed, BookingStaffRejected, BookingCompleted, BookingCancelled:
		return BookingStatus(s), true
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// Booking is one customer appointment request. A booking lives in exactly
// one of two collections: booking_requests before confirmation, bookings
// after. The same document shape is used in both.
type Booking struct {
	ID          string        `json:"id"`
	OwnerUID    string        `json:"ownerUid"`
	BookingCode string        `json:"bookingCode"`
	Status      BookingStatus `json:"status"`

	StaffID   string `json:"staffId,omitempty"`
	StaffName string `json:"staffName,omitempty"`

	CustomerUID string `json:"customerUid,omitempty"`
	ClientEmail string `json:"clientEmail,omitempty"`
	ClientPhone string `json:"clientPhone,omitempty"`

	ServiceName string  `json:"serviceName"`
	BranchID    string  `json:"branchId,omitempty"`
	BranchName  string  `json:"branchName,omitempty"`
	Date        string  `json:"date"` // YYYY-MM-DD
	Time        string  `json:"time"` // HH:MM
	Price       float64 `json:"price"`
	Duration    int     `json:"duration"` // in minutes

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StaffAssignment is an optional staff merge that may accompany any
// transition request.
type StaffAssignment struct {
	StaffID   string `json:"staffId"`
	StaffName string `json:"staffName"`
}
