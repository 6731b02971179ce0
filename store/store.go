package store

import (
	"context"
	"errors"
)

// Collection names used by the transition engines.
const (
	ColBookingRequests = "booking_requests"
	ColBookings        = "bookings" // confirmed store
	ColTenantBilling   = "tenant_billing"
	ColBillingMirror   = "owner_billing_mirror"
	ColAuditLogs       = "audit_logs"
	ColNotifications   = "notifications"
)

// MaxBatchSize is the largest number of ops BatchCommit accepts in one call.
// Callers with more mutations split them and commit batch-by-batch.
const MaxBatchSize = 500

var (
	ErrNotFound      = errors.New("store: document not found")
	ErrBatchTooLarge = errors.New("store: batch exceeds max size")
)

type OpKind string

const (
	OpSet    OpKind = "set"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one mutation inside a batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Value      any            // for OpSet
	Fields     map[string]any // for OpUpdate
}

// Filter is an equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Store is the document-storage contract both transition engines depend on.
// Implementations must decode documents into the typed model structs via
// their JSON tags; the engines never see raw document shapes.
type Store interface {
	// Get decodes the document id in collection into out.
	// Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string, out any) error

	// Query decodes every document in collection matching all filters into
	// out, which must be a pointer to a slice of structs.
	Query(ctx context.Context, collection string, out any, filters ...Filter) error

	// Set writes the full document, replacing any existing content.
	Set(ctx context.Context, collection, id string, v any) error

	// Update merges the given top-level fields into an existing document.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes the document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// BatchCommit applies ops atomically where the backend supports it.
	// Returns ErrBatchTooLarge if len(ops) > MaxBatchSize.
	BatchCommit(ctx context.Context, ops []Op) error
}
