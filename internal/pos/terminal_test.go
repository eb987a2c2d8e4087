package pos

import (
	"context"
	"testing"
	"time"

	"TableSide/internal/cache"
	"TableSide/internal/database"
	"TableSide/internal/database/model/catalog"
	"TableSide/internal/database/model/orderline"
	paymentrepo "TableSide/internal/database/model/payment"
	"TableSide/internal/database/model/tablesession"
	"TableSide/internal/feed"
	"TableSide/internal/ledger"
	"TableSide/internal/models"
	"TableSide/internal/payment"
	"TableSide/internal/session"
	"TableSide/internal/split"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type printer struct{ receipts []models.Receipt }

func (p *printer) ReceiptRequested(_ context.Context, r models.Receipt) {
	p.receipts = append(p.receipts, r)
}

const (
	steakID  = 1
	ginID    = 2
	tapasID  = 3
	foodCat  = 10
	drinkCat = 20
)

func seed(t *testing.T, db *sqlx.DB) *catalog.Repository {
	ctx := context.Background()
	repo := catalog.NewRepository(db, time.UTC)
	require.NoError(t, repo.UpsertCategory(ctx, &models.Category{ID: foodCat, Name: "Food"}))
	require.NoError(t, repo.UpsertCategory(ctx, &models.Category{ID: drinkCat, Name: "Drinks"}))
	require.NoError(t, repo.UpsertProduct(ctx, &models.Product{ID: steakID, CategoryID: foodCat, Name: "Steak",
		Price: decimal.NewFromInt(50), Active: true}))
	require.NoError(t, repo.UpsertProduct(ctx, &models.Product{ID: ginID, CategoryID: drinkCat, Name: "Gin Tonic",
		Price: decimal.NewFromInt(100), Active: true,
		ModifierGroups: []models.ModifierGroup{{Name: "Gin", Min: 1, Max: 1, Options: models.Modifiers{
			{Name: "House"}, {Name: "Premium", Price: decimal.NewFromInt(4)},
		}}}}))
	require.NoError(t, repo.UpsertProduct(ctx, &models.Product{ID: tapasID, CategoryID: foodCat, Name: "Tapas",
		Price: decimal.NewFromInt(8), Active: true}))
	require.NoError(t, repo.InsertRule(ctx, &models.DiscountRule{Kind: models.RuleHappyHour,
		TargetType: models.TargetCategory, TargetIDs: []int64{drinkCat}, DiscountType: models.DiscountPercentage,
		Amount: decimal.NewFromInt(20), Active: true, Schedule: map[time.Weekday]models.DayWindow{
			time.Friday: {Active: true, Start: 18 * 60, End: 20 * 60},
		}}))
	return repo
}

func newTerminals(t *testing.T, n int) []*Terminal {
	ctx := context.Background()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	menu, err := cache.NewCacheMenu(ctx, seed(t, db), time.Hour)
	require.NoError(t, err)

	l := ledger.New(orderline.NewRepository(db), feed.Nop{}, ledger.Options{BusinessID: "b1", Tolerance: time.Second})
	sessions := session.NewManager(tablesession.NewRepository(db), l, feed.Nop{}, "b1")
	splitter := split.New(l, sessions, split.Options{Retries: 3, RequireReason: true, Terminal: "POS-1"})
	payments := payment.NewReconciler(paymentrepo.NewRepository(db), l, splitter, sessions, nil, payment.Options{
		AutoClose:      true,
		Tolerance:      decimal.RequireFromString("0.01"),
		CloseThreshold: decimal.RequireFromString("0.05"),
	})

	var out []*Terminal
	for i := 0; i < n; i++ {
		out = append(out, NewTerminal(Options{BusinessID: "b1", Terminal: "POS-1", TTL: time.Hour},
			menu, l, sessions, splitter, payments, &printer{}))
	}
	return out
}

func TestSendThenGiftOneUnit(t *testing.T) {
	ctx := context.Background()
	term := newTerminals(t, 1)[0]

	snap, err := term.AddItem(ctx, "T1", AddRequest{ProductID: steakID, Quantity: 2, Staff: "ana"})
	require.NoError(t, err)
	assert.True(t, snap.Dirty)
	assert.Equal(t, "100", snap.CartTotal.String())

	snap, err = term.Send(ctx, "T1", "ana")
	require.NoError(t, err)
	assert.False(t, snap.Dirty)
	assert.Empty(t, snap.Cart)
	assert.Equal(t, "100", snap.Session.CurrentTotal.String())
	assert.True(t, snap.Session.IsOccupied)
	require.Len(t, snap.Units, 2)

	_, err = term.Action(ctx, "T1", ActionRequest{Action: models.StatusGift,
		Units: []models.UnitRef{{LedgerID: snap.Units[0].LedgerID}}, Staff: "ana"})
	assert.True(t, models.IsValidation(err), "reason is required")

	snap, err = term.Action(ctx, "T1", ActionRequest{Action: models.StatusGift,
		Units: []models.UnitRef{{LedgerID: snap.Units[0].LedgerID}}, Reason: "staff", Staff: "ana"})
	require.NoError(t, err)
	assert.Equal(t, "50", snap.Session.CurrentTotal.String())
	require.Len(t, snap.Units, 2)

	statuses := map[models.Status]int{}
	for _, u := range snap.Units {
		statuses[u.Line.Status]++
	}
	assert.Equal(t, map[models.Status]int{models.StatusSent: 1, models.StatusGift: 1}, statuses)
	assert.Equal(t, "50", snap.LedgerTotal.String())
}

func TestHappyHourPricing(t *testing.T) {
	ctx := context.Background()
	term := newTerminals(t, 1)[0]

	friday := func(h int) func() time.Time {
		return func() time.Time { return time.Date(2024, 3, 1, h, 0, 0, 0, time.UTC) }
	}
	sel := map[string][]string{"Gin": {"House"}}

	term.SetClock(friday(19))
	snap, err := term.AddItem(ctx, "T1", AddRequest{ProductID: ginID, Selection: sel})
	require.NoError(t, err)
	require.Len(t, snap.Cart, 1)
	assert.Equal(t, "80", snap.Cart[0].UnitPrice.String())
	assert.Equal(t, "HAPPY HOUR", snap.Cart[0].DiscountLabel)

	term.SetClock(friday(21))
	snap, err = term.AddItem(ctx, "T1", AddRequest{ProductID: ginID, Selection: sel})
	require.NoError(t, err)
	assert.Equal(t, "100", snap.Cart[1].UnitPrice.String())
	assert.Empty(t, snap.Cart[1].DiscountLabel)

	_, err = term.AddItem(ctx, "T1", AddRequest{ProductID: ginID})
	assert.True(t, models.IsValidation(err), "gin choice is required")

	_, err = term.AddItem(ctx, "T1", AddRequest{ProductID: 99})
	assert.True(t, models.IsNotFound(err))
}

func TestCartEditing(t *testing.T) {
	ctx := context.Background()
	term := newTerminals(t, 1)[0]

	_, err := term.AddItem(ctx, "T1", AddRequest{ProductID: tapasID})
	require.NoError(t, err)
	_, err = term.AddItem(ctx, "T1", AddRequest{ProductID: steakID})
	require.NoError(t, err)
	snap, err := term.AddDiscount(ctx, "T1", DiscountRequest{Name: "Regular", Amount: "5,50"})
	require.NoError(t, err)
	assert.Equal(t, "52.5", snap.CartTotal.String())

	snap, err = term.SetNote(ctx, "T1", 1, "medium rare")
	require.NoError(t, err)
	assert.Equal(t, "medium rare", snap.Cart[1].Note)

	_, err = term.RemoveSelected(ctx, "T1")
	assert.True(t, models.IsValidation(err))

	_, err = term.ToggleSelect(ctx, "T1", 0)
	require.NoError(t, err)
	snap, err = term.RemoveSelected(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, snap.Cart, 2)
	assert.Equal(t, "Steak", snap.Cart[0].Name)

	_, err = term.ToggleSelect(ctx, "T1", 7)
	assert.True(t, models.IsValidation(err))

	snap, err = term.Send(ctx, "T1", "ana")
	require.NoError(t, err)
	assert.Equal(t, "44.5", snap.Session.CurrentTotal.String())

	_, err = term.Send(ctx, "T1", "ana")
	assert.True(t, models.IsValidation(err))
}

func TestPayAllClosesTable(t *testing.T) {
	ctx := context.Background()
	term := newTerminals(t, 1)[0]

	_, err := term.AddItem(ctx, "T1", AddRequest{ProductID: steakID, Quantity: 3})
	require.NoError(t, err)
	snap, err := term.Send(ctx, "T1", "ana")
	require.NoError(t, err)

	var all []models.UnitRef
	for _, u := range snap.Units {
		all = append(all, models.UnitRef{LedgerID: u.LedgerID})
	}
	res, snap, err := term.Pay(ctx, "T1", payment.Request{Method: models.MethodCard, Selection: all, Staff: "ana"})
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, "150", res.Payment.Amount.String())
	assert.False(t, snap.Session.IsOccupied)
	assert.Empty(t, snap.Units, "closed session shows no rows")
}

func TestEventsRefreshOtherTerminal(t *testing.T) {
	ctx := context.Background()
	terms := newTerminals(t, 2)
	a, b := terms[0], terms[1]

	snap, err := b.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Empty(t, snap.Units)

	_, err = a.AddItem(ctx, "T1", AddRequest{ProductID: steakID})
	require.NoError(t, err)
	_, err = a.Send(ctx, "T1", "ana")
	require.NoError(t, err)

	s, err := a.sessions.Get(ctx, "T1")
	require.NoError(t, err)
	ev, err := feed.NewEvent(feed.EventUpdate, feed.EntityTableSession, "b1", "T1", s)
	require.NoError(t, err)
	b.HandleEvent(ctx, ev)

	snap, err = b.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, snap.Units, 1)
	assert.Equal(t, "50", snap.Session.CurrentTotal.String())

	// other business: ignored
	_, err = a.AddItem(ctx, "T1", AddRequest{ProductID: tapasID})
	require.NoError(t, err)
	_, err = a.Send(ctx, "T1", "ana")
	require.NoError(t, err)
	ev, err = feed.NewEvent(feed.EventInsert, feed.EntityOrderLine, "b2", "T1", nil)
	require.NoError(t, err)
	b.HandleEvent(ctx, ev)
	snap, err = b.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, snap.Units, 1)

	b.Resync(ctx)
	snap, err = b.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, snap.Units, 2)
}

func TestMoveAndReceipt(t *testing.T) {
	ctx := context.Background()
	term := newTerminals(t, 1)[0]

	_, err := term.AddItem(ctx, "T1", AddRequest{ProductID: steakID, Quantity: 2})
	require.NoError(t, err)
	_, err = term.Send(ctx, "T1", "ana")
	require.NoError(t, err)

	_, err = term.Move(ctx, "T1", MoveRequest{})
	assert.True(t, models.IsValidation(err))

	snap, err := term.Move(ctx, "T1", MoveRequest{To: "T9"})
	require.NoError(t, err)
	assert.Equal(t, "T9", snap.TableID)
	assert.Len(t, snap.Units, 2)
	assert.Equal(t, "100", snap.Session.CurrentTotal.String())

	old, err := term.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, old.Session.IsOccupied)
	assert.Empty(t, old.Units)

	r, err := term.Receipt(ctx, "T9", "ana")
	require.NoError(t, err)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, 2, r.Lines[0].Quantity)
	assert.Equal(t, "100", r.Lines[0].Amount.String())
	assert.Equal(t, "100", r.Balance.String())
	assert.Len(t, term.printer.(*printer).receipts, 1)

	snap, err = term.Close(ctx, "T9")
	require.NoError(t, err)
	assert.False(t, snap.Session.IsOccupied)
}
