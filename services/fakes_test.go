package services

import (
	"context"
	"sync"

	"glowdesk-backend/models"
)

// fakeNotifier records enqueued notifications for assertions.
type fakeNotifier struct {
	mu       sync.Mutex
	enqueued []models.Notification
	fail     error
}

func (f *fakeNotifier) Enqueue(ctx context.Context, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.enqueued = append(f.enqueued, n)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func (f *fakeNotifier) last() models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enqueued[len(f.enqueued)-1]
}

// fakeGateway is a scripted PaymentGateway.
type fakeGateway struct {
	mu sync.Mutex

	sessions      map[string]*CheckoutSession
	subscriptions map[string]*Subscription
	err           error

	updateCalls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:      make(map[string]*CheckoutSession),
		subscriptions: make(map[string]*Subscription),
	}
}

func (f *fakeGateway) RetrieveSession(ctx context.Context, ref string) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[ref]
	if !ok {
		return nil, ErrGatewayUnavailable
	}
	return s, nil
}

func (f *fakeGateway) RetrieveSubscription(ctx context.Context, ref string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.subscriptions[ref]
	if !ok {
		return nil, ErrGatewayUnavailable
	}
	return s, nil
}

func (f *fakeGateway) UpdateSubscription(ctx context.Context, ref string, cancelAtPeriodEnd bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updateCalls = append(f.updateCalls, ref)
	if s, ok := f.subscriptions[ref]; ok {
		s.CancelAtPeriodEnd = cancelAtPeriodEnd
	}
	return nil
}
