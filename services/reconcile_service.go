package services

import (
	"context"
	"log"
	"time"

	"glowdesk-backend/models"
	"glowdesk-backend/store"

	"github.com/robfig/cron/v3"
)

// ReconcileService is the grace-period reconciliation job: it scans every
// tenant in past_due and suspends those whose grace window has elapsed.
//
// The job is stateless and safe to run concurrently with itself: it only
// ever moves past_due tenants to suspended, so an overlapping run finds
// nothing left to do. No lock is taken.
type ReconcileService struct {
	store store.Store
	sink  *AuditSink
}

func NewReconcileService(st store.Store, sink *AuditSink) *ReconcileService {
	return &ReconcileService{store: st, sink: sink}
}

// StartScheduler runs the job hourly.
func (s *ReconcileService) StartScheduler(ctx context.Context) {
	c := cron.New()

	c.AddFunc("0 * * * *", func() {
		suspended, err := s.Run(ctx)
		if err != nil {
			log.Printf("Grace-period reconciliation failed after %d suspensions: %v", suspended, err)
		}
	})

	c.Start()
	log.Println("Grace-period reconciliation scheduler started")
}

// Run performs one reconciliation pass and returns how many tenants were
// suspended. Mutations are committed in bounded batches so a mid-run
// failure keeps every batch already committed; per-tenant data anomalies
// are logged and skipped, never fatal.
func (s *ReconcileService) Run(ctx context.Context) (int, error) {
	var overdue []models.TenantBilling
	err := s.store.Query(ctx, store.ColTenantBilling, &overdue,
		store.Filter{Field: "billingStatus", Value: string(models.BillingPastDue)})
	if err != nil {
		return 0, err
	}

	now := time.Now()
	var toSuspend []models.TenantBilling

	for _, rec := range overdue {
		if rec.TenantID == "" {
			log.Printf("Reconciliation: skipping past_due record with empty tenant id (owner %q)", rec.OwnerUID)
			continue
		}
		// A missing grace window should not exist on a past_due record;
		// treat it as already expired rather than skipping the tenant.
		if rec.GraceUntil != nil && now.Before(*rec.GraceUntil) {
			continue
		}
		if rec.GraceUntil == nil {
			log.Printf("Reconciliation: tenant %s is past_due without graceUntil, treating as expired", rec.TenantID)
		}

		applyStatus(&rec, models.BillingSuspended, now)
		toSuspend = append(toSuspend, rec)
	}

	suspended := 0
	for start := 0; start < len(toSuspend); start += store.MaxBatchSize {
		end := start + store.MaxBatchSize
		if end > len(toSuspend) {
			end = len(toSuspend)
		}
		chunk := toSuspend[start:end]

		ops := make([]store.Op, 0, len(chunk))
		for _, rec := range chunk {
			ops = append(ops, store.Op{
				Kind:       store.OpSet,
				Collection: store.ColTenantBilling,
				ID:         rec.TenantID,
				Value:      rec,
			})
		}
		if err := s.store.BatchCommit(ctx, ops); err != nil {
			return suspended, err
		}
		suspended += len(chunk)

		s.mirrorChunk(ctx, chunk)
		for _, rec := range chunk {
			go s.sink.BillingStatusChanged(rec, models.BillingPastDue, "reconciliation_job")
		}
	}

	if suspended > 0 {
		log.Printf("Grace-period reconciliation suspended %d tenant(s)", suspended)
	}
	return suspended, nil
}

// mirrorChunk applies the mirror writes for one committed batch. Mirror
// failure is drift, not transition failure.
func (s *ReconcileService) mirrorChunk(ctx context.Context, chunk []models.TenantBilling) {
	ops := make([]store.Op, 0, len(chunk))
	for _, rec := range chunk {
		ops = append(ops, store.Op{
			Kind:       store.OpSet,
			Collection: store.ColBillingMirror,
			ID:         rec.OwnerUID,
			Value:      rec,
		})
	}
	if err := s.store.BatchCommit(ctx, ops); err != nil {
		log.Printf("Reconciliation: mirror batch failed for %d tenant(s): %v", len(chunk), err)
	}
}
