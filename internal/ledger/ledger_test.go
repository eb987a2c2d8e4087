package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"TableSide/internal/database"
	"TableSide/internal/database/model/orderline"
	"TableSide/internal/feed"
	"TableSide/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	events []feed.Event
}

func (c *capture) Publish(_ context.Context, ev feed.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func newLedger(t *testing.T) (*Ledger, *orderline.Repository, *capture) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := orderline.NewRepository(db)
	pub := &capture{}
	return New(repo, pub, Options{BusinessID: "b1", Window: 24 * time.Hour, Tolerance: time.Second}), repo, pub
}

func cartLine(name, price string, qty int) models.CartLine {
	return models.CartLine{Name: name, UnitPrice: decimal.RequireFromString(price), Quantity: qty, StaffName: "ana"}
}

func TestCommitAndLoad(t *testing.T) {
	ctx := context.Background()
	l, _, pub := newLedger(t)

	rows, err := l.Commit(ctx, "T1", []models.CartLine{cartLine("Beer", "4", 2), cartLine("Soup", "6", 1)}, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.StatusSent, rows[0].Status)
	assert.Len(t, pub.events, 2)
	assert.Equal(t, feed.EventInsert, pub.events[0].EventType)

	start := rows[0].CreatedAt.Add(-time.Minute)
	units, err := l.LoadSession(ctx, "T1", &start)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, rows[0].ID, units[0].LedgerID)
	assert.Equal(t, rows[0].ID, units[1].LedgerID)
	assert.Equal(t, 1, units[1].Index)
	assert.Equal(t, 1, units[0].Line.Quantity)

	_, err = l.Commit(ctx, "T1", nil, "")
	assert.True(t, models.IsValidation(err))
}

// A row paid 5s before the session start belongs to the previous session;
// one paid 1s after belongs to this one.
func TestLoadSessionSkewFilter(t *testing.T) {
	ctx := context.Background()
	l, repo, _ := newLedger(t)

	start := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
	before := start.Add(-5 * time.Second)
	after := start.Add(time.Second)

	early := &models.OrderLine{BusinessID: "b1", TableID: "T1", Name: "Early", UnitPrice: decimal.NewFromInt(1), Quantity: 1,
		Status: models.StatusPaid, CreatedAt: start.Add(-time.Hour), PaidAt: &before, PaymentRef: "p-old"}
	late := &models.OrderLine{BusinessID: "b1", TableID: "T1", Name: "Late", UnitPrice: decimal.NewFromInt(1), Quantity: 1,
		Status: models.StatusPaid, CreatedAt: start.Add(-time.Hour), PaidAt: &after, PaymentRef: "p-new"}
	wasted := &models.OrderLine{BusinessID: "b1", TableID: "T1", Name: "Dropped", UnitPrice: decimal.NewFromInt(1), Quantity: 1,
		Status: models.StatusWaste, CreatedAt: after}
	require.NoError(t, repo.Insert(ctx, []*models.OrderLine{early, late, wasted}))

	units, err := l.LoadSession(ctx, "T1", &start)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "Late", units[0].Line.Name)
}

func TestFilterSession(t *testing.T) {
	start := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := start.Add(d); return &v }

	rows := []*models.OrderLine{
		{ID: 1, Status: models.StatusSent, CreatedAt: start.Add(-30 * time.Hour)},
		{ID: 2, Status: models.StatusPaid, PaidAt: at(-500 * time.Millisecond), PaymentRef: "p-2"},
		{ID: 3, Status: models.StatusPaid, PaidAt: at(-2 * time.Second), PaymentRef: "p-1"},
		{ID: 4, Status: models.StatusGift, CreatedAt: start.Add(time.Minute)},
		{ID: 5, Status: models.StatusGift, CreatedAt: start.Add(-time.Hour), PaymentRef: "p-1"},
		{ID: 6, Status: models.StatusCancel, CreatedAt: start.Add(time.Minute)},
		{ID: 7, Status: models.StatusPaid, PaymentRef: "p-0"},
		// gifted before the table was closed without a settlement
		{ID: 8, Status: models.StatusGift, CreatedAt: start.Add(-10 * time.Minute)},
		{ID: 9, Status: models.StatusWaste, CreatedAt: start.Add(-10 * time.Minute)},
	}
	ids := func(rs []*models.OrderLine) []int64 {
		var out []int64
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 4, 8}, ids(FilterSession(rows, &start, time.Second)))
	assert.Equal(t, []int64{1}, ids(FilterSession(rows, nil, time.Second)))
}

func TestMarkRowPublishesUpdate(t *testing.T) {
	ctx := context.Background()
	l, _, pub := newLedger(t)

	rows, err := l.Commit(ctx, "T1", []models.CartLine{cartLine("Tea", "2", 1)}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", rows[0].StaffName)

	updated, err := l.MarkRow(ctx, rows[0].ID, models.LinePatch{Status: models.StatusServed})
	require.NoError(t, err)
	assert.Equal(t, models.StatusServed, updated.Status)
	assert.EqualValues(t, 2, updated.Version)
	require.Len(t, pub.events, 2)
	assert.Equal(t, feed.EventUpdate, pub.events[1].EventType)
	assert.Equal(t, "T1", pub.events[1].TableID)

	// stale copy loses
	_, err = l.MarkVersion(ctx, rows[0], models.LinePatch{Status: models.StatusReady})
	assert.True(t, models.IsConflict(err))
}

func TestMarkSessionPaid(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLedger(t)

	rows, err := l.Commit(ctx, "T1", []models.CartLine{cartLine("A", "10", 2), cartLine("B", "5", 1)}, "")
	require.NoError(t, err)

	pay := &models.Payment{ID: "p-1", Method: models.MethodCard, StaffName: "ana", CreatedAt: time.Now()}
	n, err := l.MarkSessionPaid(ctx, "T1", pay)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	row, err := l.Get(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, row.Status)
	assert.Equal(t, "p-1", row.PaymentRef)
	assert.Equal(t, models.MethodCard, row.Meta.PaymentMethod)
}
