// Package pos runs the per-table flows of one terminal: building the cart,
// sending it, applying actions and payments, and keeping its view of each
// table in step with the other terminals.
package pos

import (
	"context"
	"encoding/json"
	"time"

	"TableSide/internal/cache"
	"TableSide/internal/cart"
	"TableSide/internal/feed"
	"TableSide/internal/ledger"
	"TableSide/internal/models"
	"TableSide/internal/payment"
	"TableSide/internal/session"
	"TableSide/internal/split"
	"TableSide/pkg/logging"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Printer receives receipt requests.
type Printer interface {
	ReceiptRequested(ctx context.Context, r models.Receipt)
}

type Options struct {
	BusinessID string
	Terminal   string
	// TTL is how long a table view is trusted without a feed event.
	TTL time.Duration
}

type Terminal struct {
	opts     Options
	menu     cache.CacheMenu
	ledger   *ledger.Ledger
	sessions *session.Manager
	splitter *split.Engine
	payments *payment.Reconciler
	printer  Printer

	tables  *cache.CacheTable[*SessionContext]
	reloads singleflight.Group
	now     func() time.Time
}

func NewTerminal(opts Options, menu cache.CacheMenu, l *ledger.Ledger, sessions *session.Manager,
	splitter *split.Engine, payments *payment.Reconciler, printer Printer) *Terminal {
	return &Terminal{
		opts:     opts,
		menu:     menu,
		ledger:   l,
		sessions: sessions,
		splitter: splitter,
		payments: payments,
		printer:  printer,
		tables:   cache.NewCacheTable[*SessionContext](opts.TTL),
		now:      time.Now,
	}
}

func (t *Terminal) SetClock(now func() time.Time) {
	t.now = now
}

// with runs fn on the table's context under its lock, loading the ledger
// first when the view is missing or stale.
func (t *Terminal) with(ctx context.Context, tableID string, fn func(sc *SessionContext) error) (Snapshot, error) {
	if tableID == "" {
		return Snapshot{}, models.Validation("table is required")
	}
	sc := t.tables.GetOrCreate(tableID, func() *SessionContext { return newSessionContext(tableID) })

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, stale, _ := t.tables.Get(tableID); stale || sc.loadedAt.IsZero() {
		if err := t.load(ctx, sc); err != nil {
			return Snapshot{}, err
		}
	}
	if fn != nil {
		if err := fn(sc); err != nil {
			return sc.snapshot(), err
		}
	}
	return sc.snapshot(), nil
}

// load re-reads the session and ledger of sc; the caller holds sc.mu.
func (t *Terminal) load(ctx context.Context, sc *SessionContext) error {
	s, err := t.sessions.Get(ctx, sc.tableID)
	if err != nil {
		return errors.Wrapf(err, "failed to read session of table %s", sc.tableID)
	}
	units, err := t.ledger.LoadSession(ctx, sc.tableID, s.OpenedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to load ledger of table %s", sc.tableID)
	}
	sc.session = s
	sc.units = units
	sc.loadedAt = t.now()
	t.tables.Touch(sc.tableID)
	return nil
}

// reload refreshes a cached table from the store. Concurrent reloads of the
// same table share one store round trip.
func (t *Terminal) reload(ctx context.Context, tableID string) error {
	_, err, _ := t.reloads.Do(tableID, func() (interface{}, error) {
		sc, _, ok := t.tables.Get(tableID)
		if !ok {
			return nil, nil
		}
		sc.mu.Lock()
		defer sc.mu.Unlock()
		return nil, t.load(ctx, sc)
	})
	return err
}

func (t *Terminal) Snapshot(ctx context.Context, tableID string) (Snapshot, error) {
	return t.with(ctx, tableID, nil)
}

// Tables lists every table known to the store.
func (t *Terminal) Tables(ctx context.Context) ([]*models.TableSession, error) {
	return t.sessions.List(ctx)
}

// AddItem prices a product as of now and buffers it.
func (t *Terminal) AddItem(ctx context.Context, tableID string, req AddRequest) (Snapshot, error) {
	if err := validate(req); err != nil {
		return Snapshot{}, err
	}
	product, err := t.menu.GetProduct(ctx, req.ProductID)
	if err != nil {
		return Snapshot{}, err
	}
	engine, err := t.menu.GetPricing(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		now := t.now()
		return sc.cart.Add(cart.Item{
			Product:   product,
			Price:     engine.Resolve(product, now),
			Selection: req.Selection,
			Note:      req.Note,
			Staff:     req.Staff,
			Quantity:  req.Quantity,
		}, now)
	})
}

func (t *Terminal) AddDiscount(ctx context.Context, tableID string, req DiscountRequest) (Snapshot, error) {
	if err := validate(req); err != nil {
		return Snapshot{}, err
	}
	amount, err := models.ParseAmount(req.Amount)
	if err != nil {
		return Snapshot{}, err
	}
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		return sc.cart.AddDiscount(req.Name, amount, req.Staff, t.now())
	})
}

func (t *Terminal) ToggleSelect(ctx context.Context, tableID string, index int) (Snapshot, error) {
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		return sc.cart.ToggleSelect(index)
	})
}

func (t *Terminal) SetNote(ctx context.Context, tableID string, index int, text string) (Snapshot, error) {
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		return sc.cart.SetNote(index, text)
	})
}

func (t *Terminal) RemoveSelected(ctx context.Context, tableID string) (Snapshot, error) {
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		if sc.cart.RemoveSelected() == 0 {
			return models.Validation("nothing selected")
		}
		return nil
	})
}

// Send commits the cart to the ledger and adds its value to the table.
func (t *Terminal) Send(ctx context.Context, tableID, staff string) (Snapshot, error) {
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		logger := logging.GetLogger().GetLoggerWithField("table", tableID)
		lines := sc.cart.Take()
		if len(lines) == 0 {
			return models.Validation("cart is empty")
		}
		rows, err := t.ledger.Commit(ctx, tableID, lines, staff)
		if err != nil {
			sc.cart.Restore(lines)
			return err
		}
		amount := decimal.Zero
		for _, r := range rows {
			amount = amount.Add(r.Total())
		}
		if _, err := t.sessions.OnCommit(ctx, tableID, amount); err != nil {
			return err
		}
		logger.Infof("sent %d lines worth %s", len(rows), amount.StringFixed(2))
		return t.load(ctx, sc)
	})
}

// Action gifts, wastes or cancels units of the table.
func (t *Terminal) Action(ctx context.Context, tableID string, req ActionRequest) (Snapshot, error) {
	if err := validate(req); err != nil {
		return Snapshot{}, err
	}
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		_, err := t.splitter.Apply(ctx, sc, req.Units, split.Action{
			Status: req.Action,
			Reason: req.Reason,
			Note:   req.Note,
			Staff:  req.Staff,
		})
		if loadErr := t.load(ctx, sc); loadErr != nil && err == nil {
			err = loadErr
		}
		return err
	})
}

// Pay takes a payment and refreshes or resets the table view.
func (t *Terminal) Pay(ctx context.Context, tableID string, req payment.Request) (*payment.Result, Snapshot, error) {
	var res *payment.Result
	snap, err := t.with(ctx, tableID, func(sc *SessionContext) error {
		var err error
		res, err = t.payments.TakePayment(ctx, sc, req)
		if res == nil {
			return err
		}
		if loadErr := t.load(ctx, sc); loadErr != nil && err == nil {
			err = loadErr
		}
		return err
	})
	return res, snap, err
}

// Close frees the table regardless of its balance.
func (t *Terminal) Close(ctx context.Context, tableID string) (Snapshot, error) {
	return t.with(ctx, tableID, func(sc *SessionContext) error {
		if _, err := t.sessions.Close(ctx, tableID); err != nil {
			return err
		}
		return t.load(ctx, sc)
	})
}

// Move hands the table over to another one, merging when asked.
func (t *Terminal) Move(ctx context.Context, tableID string, req MoveRequest) (Snapshot, error) {
	if err := validate(req); err != nil {
		return Snapshot{}, err
	}
	snap, err := t.with(ctx, tableID, func(sc *SessionContext) error {
		if sc.cart.Dirty() {
			return models.Validation("send or clear the cart of table %s first", tableID)
		}
		var err error
		if req.Merge {
			_, err = t.sessions.Merge(ctx, tableID, req.To)
		} else {
			_, err = t.sessions.Move(ctx, tableID, req.To)
		}
		if err != nil {
			return err
		}
		return t.load(ctx, sc)
	})
	if err != nil {
		return snap, err
	}
	return t.with(ctx, req.To, func(sc *SessionContext) error {
		return t.load(ctx, sc)
	})
}

// Receipt builds the printable summary of the table and hands it to the printer.
func (t *Terminal) Receipt(ctx context.Context, tableID, staff string) (models.Receipt, error) {
	var r models.Receipt
	_, err := t.with(ctx, tableID, func(sc *SessionContext) error {
		r = buildReceipt(sc, t.opts.Terminal, staff, t.now())
		return nil
	})
	if err != nil {
		return r, err
	}
	if t.printer != nil {
		t.printer.ReceiptRequested(ctx, r)
	}
	return r, nil
}

func buildReceipt(sc *SessionContext, terminal, staff string, now time.Time) models.Receipt {
	r := models.Receipt{
		TableID:   sc.tableID,
		Terminal:  terminal,
		Staff:     staff,
		OpenedAt:  sc.session.OpenedAt,
		Total:     activeTotal(sc.units),
		Balance:   sc.session.CurrentTotal,
		CreatedAt: now,
	}
	index := map[int64]int{}
	for _, u := range sc.units {
		if i, ok := index[u.LedgerID]; ok {
			r.Lines[i].Quantity++
			r.Lines[i].Amount = r.Lines[i].Amount.Add(u.Line.UnitValue())
			continue
		}
		index[u.LedgerID] = len(r.Lines)
		r.Lines = append(r.Lines, models.ReceiptLine{
			Name:     u.Line.Name,
			Quantity: 1,
			Amount:   u.Line.UnitValue(),
			Status:   u.Line.Status,
			Label:    u.Line.DiscountLabel,
		})
	}
	return r
}

// HandleEvent applies a change made by another terminal to the local view.
func (t *Terminal) HandleEvent(ctx context.Context, ev feed.Event) {
	logger := logging.GetLogger().GetLoggerWithField("table", ev.TableID)
	if ev.BusinessID != t.opts.BusinessID {
		return
	}
	sc, _, ok := t.tables.Get(ev.TableID)
	if !ok {
		return
	}

	switch ev.Entity {
	case feed.EntityTableSession:
		var s models.TableSession
		if err := json.Unmarshal(ev.Payload, &s); err != nil {
			logger.Warnf("bad table_session payload: %v", err)
			return
		}
		sc.mu.Lock()
		reopened := !sameTime(sc.session.OpenedAt, s.OpenedAt)
		sc.session = &s
		sc.mu.Unlock()
		if !reopened {
			return
		}
	case feed.EntityOrderLine:
	default:
		return
	}

	if err := t.reload(ctx, ev.TableID); err != nil {
		logger.Errorf("reload after %s %s failed: %v", ev.Entity, ev.EventType, err)
	}
}

// Resync reloads every table this terminal has open.
func (t *Terminal) Resync(ctx context.Context) {
	logger := logging.GetLogger()
	for _, tableID := range t.tables.Keys() {
		if err := t.reload(ctx, tableID); err != nil {
			logger.Errorf("resync of table %s failed: %v", tableID, err)
		}
	}
	logger.Info("all open tables reloaded")
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
