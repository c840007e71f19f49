package memstore

import (
	"context"
	"fmt"
	"time"

	"disputeflow/arbitration"
)

type outboxEntry struct {
	arbitration.Notification
	PublishedAt *time.Time
	Attempts    int
	LastError   string
}

// FetchUnpublished returns up to limit committed notifications that have not
// been published, oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]arbitration.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]arbitration.Notification, 0, limit)
	for _, e := range s.st.outbox {
		if len(out) >= limit {
			break
		}
		if e.PublishedAt == nil {
			out = append(out, e.Notification)
		}
	}
	return out, nil
}

// MarkPublished records a successful delivery.
func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return s.updateOutbox(id, func(e *outboxEntry) {
		ts := at.UTC()
		e.PublishedAt = &ts
		e.Attempts++
		e.LastError = ""
	})
}

// MarkFailed records a failed delivery attempt; the notification stays queued.
func (s *Store) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	return s.updateOutbox(id, func(e *outboxEntry) {
		e.Attempts++
		e.LastError = reason
	})
}

// Notifications returns every committed notification in enqueue order.
func (s *Store) Notifications() []arbitration.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]arbitration.Notification, 0, len(s.st.outbox))
	for _, e := range s.st.outbox {
		out = append(out, e.Notification)
	}
	return out
}

func (s *Store) updateOutbox(id string, apply func(e *outboxEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.st.outbox {
		if s.st.outbox[i].ID == id {
			apply(&s.st.outbox[i])
			return nil
		}
	}
	return fmt.Errorf("memstore: outbox entry %s not found", id)
}

// Pending returns the number of notifications awaiting delivery.
func (s *Store) Pending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.st.outbox {
		if e.PublishedAt == nil {
			n++
		}
	}
	return n, nil
}
