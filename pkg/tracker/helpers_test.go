package tracker_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/costsource"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/storage"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// memStore is an in-memory BudgetStore that keeps budgets in insertion order.
type memStore struct {
	mu        sync.Mutex
	budgets   []model.BudgetRecord
	listErr   error
	readErr   error
	recordErr error
	lastSent  map[string]time.Time
	records   int
	spending  map[string]float64
	getCalls  int
}

func newMemStore(budgets ...model.BudgetRecord) *memStore {
	return &memStore{
		budgets:  budgets,
		lastSent: map[string]time.Time{},
		spending: map[string]float64{},
	}
}

func (m *memStore) ListActiveBudgets(context.Context) ([]model.BudgetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.BudgetRecord
	for _, b := range m.budgets {
		if b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) GetBudget(_ context.Context, userID, budgetID string) (*model.BudgetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for _, b := range m.budgets {
		if b.ID == budgetID && b.UserID == userID {
			return &b, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memStore) GetLastAlertSent(_ context.Context, budgetID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	t, ok := m.lastSent[budgetID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memStore) RecordAlertSent(_ context.Context, budgetID string, _ model.AlertType, at time.Time, prev *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	cur, ok := m.lastSent[budgetID]
	if (prev == nil && ok) || (prev != nil && (!ok || !cur.Equal(*prev))) {
		return model.ErrConflict
	}
	m.lastSent[budgetID] = at
	m.records++
	return nil
}

func (m *memStore) UpdateBudgetSpending(_ context.Context, budgetID string, spent, _ float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spending[budgetID] = spent
	return nil
}

func budget(id, owner string, limit float64, services ...string) model.BudgetRecord {
	return model.BudgetRecord{
		ID:             id,
		UserID:         owner,
		Name:           "Budget " + id,
		MonthlyLimit:   limit,
		AlertThreshold: 80,
		IsActive:       true,
		Services:       services,
	}
}

// fakeCosts returns spend per budget, keyed by the first service dimension
// value of the query filter. Queries without a service filter use "".
type fakeCosts struct {
	mu      sync.Mutex
	spend   map[string]float64
	fail    map[string]bool
	queries []costsource.SpendQuery
}

func (f *fakeCosts) GetSpend(_ context.Context, q costsource.SpendQuery) (*costsource.CostSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	key := serviceKey(q.Filter)
	if f.fail[key] {
		return nil, errors.New("throttling exception")
	}
	return &costsource.CostSeries{Total: f.spend[key], Unit: "USD"}, nil
}

func (f *fakeCosts) setSpend(key string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spend[key] = v
}

func serviceKey(f *costsource.Filter) string {
	if f == nil {
		return ""
	}
	if f.Dimension != nil && len(f.Dimension.Values) > 0 {
		return f.Dimension.Values[0]
	}
	for _, sub := range f.And {
		if k := serviceKey(&sub); k != "" {
			return k
		}
	}
	return ""
}

type fakeNative struct {
	budgets []model.NativeBudget
	err     error
}

func (f *fakeNative) ListBudgets(context.Context) ([]model.NativeBudget, error) {
	return f.budgets, f.err
}

func (f *fakeNative) PerformanceHistory(context.Context, string, int) (*costsource.BudgetHistory, error) {
	return nil, errors.New("not implemented")
}
