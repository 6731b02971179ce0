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

// allowedTransitions is the fixed booking state graph. Terminal states have
// no outgoing edges.
var allowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending: {
		models.BookingAwaitingStaffApproval,
		models.BookingConfirmed,
		models.BookingCancelled,
	},
	models.BookingAwaitingStaffApproval: {
		models.BookingPartiallyApproved,
		models.BookingConfirmed,
		models.BookingStaffRejected,
	},
	models.BookingPartiallyApproved: {
		models.BookingConfirmed,
		models.BookingStaffRejected,
	},
	models.BookingStaffRejected: {
		models.BookingAwaitingStaffApproval,
		models.BookingCancelled,
	},
	models.BookingConfirmed: {
		models.BookingCompleted,
		models.BookingCancelled,
	},
	models.BookingCompleted: {},
	models.BookingCancelled: {},
}

func transitionAllowed(from, to models.BookingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionResult is what a successful booking transition reports back.
type TransitionResult struct {
	Status   models.BookingStatus `json:"status"`
	Migrated bool                 `json:"migrated"`
}

// BookingService is the booking lifecycle state machine.
type BookingService struct {
	store store.Store
	sink  *AuditSink
}

func NewBookingService(st store.Store, sink *AuditSink) *BookingService {
	return &BookingService{store: st, sink: sink}
}

// RequestTransition validates and applies one booking status change.
//
// Tenant isolation is the only authorization check and runs before any
// mutation: callerOwnerUID must match the record. A transition to Confirmed
// while the record still lives in booking_requests migrates it to the
// confirmed store (copy, then delete source). The two steps are not
// transactional; migration is made idempotent by checking the destination
// before writing, so a retry after a crash between them converges.
//
// Staff assignment, when supplied, is merged regardless of the transition.
// The audit/notification side effect runs detached and never fails the
// transition.
func (s *BookingService) RequestTransition(ctx context.Context, bookingID string, requested models.BookingStatus, callerOwnerUID, callerUserID string, staff *models.StaffAssignment) (*TransitionResult, error) {
	booking, collection, err := s.locate(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.OwnerUID != callerOwnerUID {
		return nil, fmt.Errorf("booking %s: %w", bookingID, ErrForbidden)
	}

	if !transitionAllowed(booking.Status, requested) {
		return nil, &InvalidTransitionError{From: string(booking.Status), To: string(requested)}
	}

	previous := booking.Status
	booking.Status = requested
	if staff != nil {
		booking.StaffID = staff.StaffID
		booking.StaffName = staff.StaffName
	}
	booking.UpdatedAt = time.Now()

	migrated := false
	if requested == models.BookingConfirmed && collection == store.ColBookingRequests {
		if err := s.migrate(ctx, *booking); err != nil {
			return nil, err
		}
		migrated = true
	} else {
		fields := map[string]any{
			"status":    string(requested),
			"updatedAt": booking.UpdatedAt,
		}
		if staff != nil {
			fields["staffId"] = staff.StaffID
			fields["staffName"] = staff.StaffName
		}
		if err := s.store.Update(ctx, collection, bookingID, fields); err != nil {
			return nil, fmt.Errorf("booking %s: update: %w", bookingID, err)
		}
	}

	go s.sink.BookingStatusChanged(*booking, previous, callerUserID)

	return &TransitionResult{Status: requested, Migrated: migrated}, nil
}

// locate resolves a booking id to its record and current partition.
func (s *BookingService) locate(ctx context.Context, bookingID string) (*models.Booking, string, error) {
	var booking models.Booking

	err := s.store.Get(ctx, store.ColBookingRequests, bookingID, &booking)
	if err == nil {
		return &booking, store.ColBookingRequests, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("booking %s: %w", bookingID, err)
	}

	err = s.store.Get(ctx, store.ColBookings, bookingID, &booking)
	if err == nil {
		return &booking, store.ColBookings, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("booking %s: %w", bookingID, err)
	}
	return nil, "", fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
}

// migrate moves the booking into the confirmed store and removes the
// request-partition copy. Destination existence is checked first so a
// replay of a half-finished migration only cleans up the source.
func (s *BookingService) migrate(ctx context.Context, booking models.Booking) error {
	var existing models.Booking
	err := s.store.Get(ctx, store.ColBookings, booking.ID, &existing)
	switch {
	case err == nil:
		log.Printf("Booking %s already migrated, cleaning up request copy", booking.ID)
	case errors.Is(err, store.ErrNotFound):
		if err := s.store.Set(ctx, store.ColBookings, booking.ID, booking); err != nil {
			return fmt.Errorf("booking %s: write confirmed copy: %w", booking.ID, err)
		}
	default:
		return fmt.Errorf("booking %s: check confirmed store: %w", booking.ID, err)
	}

	if err := s.store.Delete(ctx, store.ColBookingRequests, booking.ID); err != nil {
		return fmt.Errorf("booking %s: delete request copy: %w", booking.ID, err)
	}
	return nil
}
