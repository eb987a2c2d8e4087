// Package ledger is the authoritative record of what a table ordered and how
// each unit was settled.
package ledger

import (
	"context"
	"time"

	"TableSide/internal/feed"
	"TableSide/internal/models"
	"TableSide/pkg/logging"

	"github.com/pkg/errors"
)

// Store persists ledger rows. The sqlite orderline repository implements it.
type Store interface {
	Insert(ctx context.Context, lines []*models.OrderLine) error
	Get(ctx context.Context, id int64) (*models.OrderLine, error)
	ListSince(ctx context.Context, businessID, tableID string, since time.Time) ([]*models.OrderLine, error)
	Patch(ctx context.Context, id, version int64, p models.LinePatch) error
	Split(ctx context.Context, id, version int64, remaining int, clone *models.OrderLine) error
	SettleTable(ctx context.Context, businessID, tableID string, p models.LinePatch) (int64, int64, error)
	MoveActive(ctx context.Context, businessID, fromTable, toTable string) (int64, error)
}

type Options struct {
	BusinessID string
	// Window is how far before the session start rows are fetched.
	Window time.Duration
	// Tolerance absorbs clock skew between terminals when filtering.
	Tolerance time.Duration
}

type Ledger struct {
	store     Store
	publisher feed.Publisher
	opts      Options
	now       func() time.Time
}

func New(store Store, publisher feed.Publisher, opts Options) *Ledger {
	if publisher == nil {
		publisher = feed.Nop{}
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	return &Ledger{store: store, publisher: publisher, opts: opts, now: time.Now}
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

// Commit persists buffered lines as sent rows and announces them.
func (l *Ledger) Commit(ctx context.Context, tableID string, lines []models.CartLine, staff string) ([]*models.OrderLine, error) {
	logger := logging.GetLogger().GetLoggerWithField("table", tableID)
	logger.Debug("Start ledger.Commit")
	defer logger.Debug("End ledger.Commit")

	if len(lines) == 0 {
		return nil, models.Validation("nothing to send")
	}

	now := l.now()
	rows := make([]*models.OrderLine, 0, len(lines))
	for _, c := range lines {
		if c.Quantity < 1 {
			return nil, models.Validation("line %s has quantity %d", c.Name, c.Quantity)
		}
		who := c.StaffName
		if staff != "" {
			who = staff
		}
		rows = append(rows, &models.OrderLine{
			BusinessID:    l.opts.BusinessID,
			TableID:       tableID,
			ProductID:     c.ProductID,
			Name:          c.Name,
			UnitPrice:     c.UnitPrice,
			Quantity:      c.Quantity,
			Note:          c.Note,
			Modifiers:     c.Modifiers,
			DiscountLabel: c.DiscountLabel,
			Status:        models.StatusSent,
			StaffName:     who,
			CreatedAt:     now,
		})
	}

	if err := l.store.Insert(ctx, rows); err != nil {
		return nil, errors.Wrap(err, "failed store.Insert()")
	}
	for _, r := range rows {
		l.announce(ctx, feed.EventInsert, r)
	}
	logger.Infof("%d lines sent", len(rows))
	return rows, nil
}

// LoadSession returns the unit-entries of the table's current session.
// A nil sessionStart means no session is open and only active rows count.
func (l *Ledger) LoadSession(ctx context.Context, tableID string, sessionStart *time.Time) ([]models.Unit, error) {
	since := l.now().Add(-l.opts.Window)
	if sessionStart != nil {
		since = sessionStart.Add(-l.opts.Window)
	}
	rows, err := l.store.ListSince(ctx, l.opts.BusinessID, tableID, since)
	if err != nil {
		return nil, errors.Wrapf(err, "failed store.ListSince(%s)", tableID)
	}
	return Explode(FilterSession(rows, sessionStart, l.opts.Tolerance)), nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (*models.OrderLine, error) {
	return l.store.Get(ctx, id)
}

// MarkRow applies p to the current version of row id.
func (l *Ledger) MarkRow(ctx context.Context, id int64, p models.LinePatch) (*models.OrderLine, error) {
	row, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.MarkVersion(ctx, row, p)
}

// MarkVersion applies p to row, failing with a conflict if row is stale.
func (l *Ledger) MarkVersion(ctx context.Context, row *models.OrderLine, p models.LinePatch) (*models.OrderLine, error) {
	if err := l.store.Patch(ctx, row.ID, row.Version, p); err != nil {
		return nil, err
	}
	next := *row
	p.Apply(&next)
	next.Version++
	l.announce(ctx, feed.EventUpdate, &next)
	return &next, nil
}

// SplitRow leaves remaining units on row and moves the rest into clone.
func (l *Ledger) SplitRow(ctx context.Context, row *models.OrderLine, remaining int, clone *models.OrderLine) error {
	if err := l.store.Split(ctx, row.ID, row.Version, remaining, clone); err != nil {
		return err
	}
	next := *row
	next.Quantity = remaining
	next.Version++
	l.announce(ctx, feed.EventUpdate, &next)
	l.announce(ctx, feed.EventInsert, clone)
	return nil
}

// MarkSessionPaid settles every active row of the table against payment.
func (l *Ledger) MarkSessionPaid(ctx context.Context, tableID string, payment *models.Payment) (int, error) {
	at := payment.CreatedAt
	p := models.LinePatch{
		Status:     models.StatusPaid,
		ActionedAt: &at,
		PaidAt:     &at,
		PaidByName: payment.StaffName,
		PaymentRef: payment.ID,
		Meta:       models.ActionMeta{Action: string(models.StatusPaid), PaymentMethod: payment.Method},
	}
	paid, stamped, err := l.store.SettleTable(ctx, l.opts.BusinessID, tableID, p)
	if err != nil {
		return 0, errors.Wrapf(err, "failed store.SettleTable(%s)", tableID)
	}
	if paid+stamped > 0 {
		l.announceTable(ctx, tableID)
	}
	return int(paid), nil
}

// MoveTable re-homes active rows from one table to another.
func (l *Ledger) MoveTable(ctx context.Context, fromTable, toTable string) (int, error) {
	n, err := l.store.MoveActive(ctx, l.opts.BusinessID, fromTable, toTable)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.announceTable(ctx, fromTable)
		l.announceTable(ctx, toTable)
	}
	return int(n), nil
}

func (l *Ledger) announce(ctx context.Context, t feed.EventType, row *models.OrderLine) {
	ev, err := feed.NewEvent(t, feed.EntityOrderLine, row.BusinessID, row.TableID, row)
	if err == nil {
		err = l.publisher.Publish(ctx, ev)
	}
	if err != nil {
		logging.GetLogger().Warnf("order line %d %s not announced: %v", row.ID, t, err)
	}
}

// announceTable tells other terminals that several rows of a table changed at once.
func (l *Ledger) announceTable(ctx context.Context, tableID string) {
	ev, err := feed.NewEvent(feed.EventUpdate, feed.EntityOrderLine, l.opts.BusinessID, tableID, nil)
	if err == nil {
		err = l.publisher.Publish(ctx, ev)
	}
	if err != nil {
		logging.GetLogger().Warnf("table %s update not announced: %v", tableID, err)
	}
}
