// Package memstore is an in-process arbitration.Store. Units of work run one
// at a time against the live state and journal every write, so a failed unit
// is rolled back by replaying its journal in reverse.
package memstore

import (
	"context"
	"sort"
	"sync"

	"disputeflow/arbitration"
	"disputeflow/money"
	"disputeflow/principal"
)

type balanceKey struct {
	denomination string
	account      principal.Principal
}

type state struct {
	settings    *arbitration.Settings
	disputes    map[uint64]arbitration.Dispute
	appeals     map[uint64]arbitration.Appeal
	arbitrators map[principal.Principal]bool
	balances    map[balanceKey]money.Amount
	outbox      []outboxEntry
}

func newState() *state {
	return &state{
		disputes:    make(map[uint64]arbitration.Dispute),
		appeals:     make(map[uint64]arbitration.Appeal),
		arbitrators: make(map[principal.Principal]bool),
		balances:    make(map[balanceKey]money.Amount),
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty, uninitialized store.
func New() *Store {
	return &Store{st: newState()}
}

// WithTx implements arbitration.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx arbitration.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{st: s.st, outboxMark: len(s.st.outbox)}
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()

	if err := fn(t); err != nil {
		return err
	}
	committed = true
	return nil
}

type tx struct {
	st         *state
	undo       []func()
	outboxMark int
}

func (t *tx) journal(restore func()) {
	t.undo = append(t.undo, restore)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	clear(t.st.outbox[t.outboxMark:])
	t.st.outbox = t.st.outbox[:t.outboxMark]
}

func (t *tx) Settings(ctx context.Context) (arbitration.Settings, error) {
	if t.st.settings == nil {
		return arbitration.Settings{}, arbitration.ErrNotInitialized
	}
	return cloneSettings(*t.st.settings), nil
}

func (t *tx) SaveSettings(ctx context.Context, s arbitration.Settings) error {
	prev := t.st.settings
	t.journal(func() { t.st.settings = prev })
	cp := cloneSettings(s)
	t.st.settings = &cp
	return nil
}

func (t *tx) Dispute(ctx context.Context, id uint64) (arbitration.Dispute, error) {
	d, ok := t.st.disputes[id]
	if !ok {
		return arbitration.Dispute{}, arbitration.ErrDisputeNotFound
	}
	return cloneDispute(d), nil
}

func (t *tx) SaveDispute(ctx context.Context, d arbitration.Dispute) error {
	prev, had := t.st.disputes[d.ID]
	t.journal(func() {
		if had {
			t.st.disputes[d.ID] = prev
		} else {
			delete(t.st.disputes, d.ID)
		}
	})
	t.st.disputes[d.ID] = cloneDispute(d)
	return nil
}

func (t *tx) ListDisputes(ctx context.Context, filter arbitration.DisputeFilter) ([]arbitration.Dispute, int, error) {
	ids := make([]uint64, 0, len(t.st.disputes))
	for id, d := range t.st.disputes {
		if filter.Participant.IsZero() || involves(d, filter.Participant) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := len(ids)
	start, end := pageBounds(total, filter.Page, filter.PageSize)
	out := make([]arbitration.Dispute, 0, end-start)
	for _, id := range ids[start:end] {
		out = append(out, cloneDispute(t.st.disputes[id]))
	}
	return out, total, nil
}

func (t *tx) Appeal(ctx context.Context, id uint64) (arbitration.Appeal, error) {
	a, ok := t.st.appeals[id]
	if !ok {
		return arbitration.Appeal{}, arbitration.ErrAppealNotFound
	}
	return cloneAppeal(a), nil
}

func (t *tx) SaveAppeal(ctx context.Context, a arbitration.Appeal) error {
	prev, had := t.st.appeals[a.ID]
	t.journal(func() {
		if had {
			t.st.appeals[a.ID] = prev
		} else {
			delete(t.st.appeals, a.ID)
		}
	})
	t.st.appeals[a.ID] = cloneAppeal(a)
	return nil
}

func (t *tx) ListAppeals(ctx context.Context, disputeID uint64) ([]arbitration.Appeal, error) {
	out := make([]arbitration.Appeal, 0)
	for _, a := range t.st.appeals {
		if a.DisputeID == disputeID {
			out = append(out, cloneAppeal(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) ArbitratorApproved(ctx context.Context, p principal.Principal) (bool, error) {
	return t.st.arbitrators[p], nil
}

func (t *tx) SetArbitratorApproved(ctx context.Context, p principal.Principal, approved bool) error {
	prev, had := t.st.arbitrators[p]
	t.journal(func() {
		if had {
			t.st.arbitrators[p] = prev
		} else {
			delete(t.st.arbitrators, p)
		}
	})
	t.st.arbitrators[p] = approved
	return nil
}

func (t *tx) Balance(ctx context.Context, denomination string, account principal.Principal) (money.Amount, error) {
	return t.st.balances[balanceKey{denomination, account}], nil
}

func (t *tx) SetBalance(ctx context.Context, denomination string, account principal.Principal, amount money.Amount) error {
	key := balanceKey{denomination, account}
	prev, had := t.st.balances[key]
	t.journal(func() {
		if had {
			t.st.balances[key] = prev
		} else {
			delete(t.st.balances, key)
		}
	})
	t.st.balances[key] = amount
	return nil
}

func (t *tx) Enqueue(ctx context.Context, n arbitration.Notification) error {
	t.st.outbox = append(t.st.outbox, outboxEntry{Notification: n})
	return nil
}

func involves(d arbitration.Dispute, p principal.Principal) bool {
	if d.IsParty(p) {
		return true
	}
	return d.Arbitrator != nil && *d.Arbitrator == p
}

func pageBounds(total, page, pageSize int) (int, int) {
	if pageSize <= 0 {
		return 0, total
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

func cloneSettings(s arbitration.Settings) arbitration.Settings {
	if s.PendingAdmin != nil {
		p := *s.PendingAdmin
		s.PendingAdmin = &p
	}
	return s
}

func cloneDispute(d arbitration.Dispute) arbitration.Dispute {
	if d.ResolvedAt != nil {
		ts := *d.ResolvedAt
		d.ResolvedAt = &ts
	}
	if d.Arbitrator != nil {
		p := *d.Arbitrator
		d.Arbitrator = &p
	}
	return d
}

func cloneAppeal(a arbitration.Appeal) arbitration.Appeal {
	if a.ResolvedAt != nil {
		ts := *a.ResolvedAt
		a.ResolvedAt = &ts
	}
	if a.NewArbitrator != nil {
		p := *a.NewArbitrator
		a.NewArbitrator = &p
	}
	return a
}
