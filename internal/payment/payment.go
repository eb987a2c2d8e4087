// Package payment turns a payment request into a stored payment, its ledger
// effects and the resulting table balance.
package payment

import (
	"context"
	"time"

	"TableSide/internal/ledger"
	"TableSide/internal/models"
	"TableSide/internal/session"
	"TableSide/internal/split"
	"TableSide/pkg/logging"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Context is the table a payment is taken on.
type Context interface {
	split.Context
	Units() []models.Unit
}

type Store interface {
	Insert(ctx context.Context, p *models.Payment) error
}

// Drawer is asked to pop the cash drawer.
type Drawer interface {
	DrawerOpenRequested(ctx context.Context, tableID string, p *models.Payment)
}

type Request struct {
	Method       string           `json:"method"`
	Selection    []models.UnitRef `json:"selection"`
	KeypadAmount string           `json:"amount"`
	Staff        string           `json:"staff"`
}

func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Method, validation.Required, validation.In(models.MethodCash, models.MethodCard)),
		validation.Field(&r.Staff, validation.Length(0, 64)),
	)
}

type Options struct {
	AutoClose bool
	// Tolerance is how far an amount may exceed the balance.
	Tolerance decimal.Decimal
	// CloseThreshold is the balance under which the table counts as settled.
	CloseThreshold decimal.Decimal
}

type Result struct {
	Payment *models.Payment      `json:"payment"`
	Session *models.TableSession `json:"session"`
	// Closed means the session was reset; otherwise the caller reloads the ledger.
	Closed bool `json:"closed"`
	// RowsPaid counts ledger units or rows marked paid; zero for amount-only payments.
	RowsPaid int `json:"rows_paid"`
}

type Reconciler struct {
	store    Store
	ledger   *ledger.Ledger
	splitter *split.Engine
	sessions *session.Manager
	drawer   Drawer
	opts     Options
	now      func() time.Time
}

func NewReconciler(store Store, l *ledger.Ledger, splitter *split.Engine, sessions *session.Manager, drawer Drawer, opts Options) *Reconciler {
	return &Reconciler{store: store, ledger: l, splitter: splitter, sessions: sessions, drawer: drawer, opts: opts, now: time.Now}
}

func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// TakePayment settles part or all of a table.
func (r *Reconciler) TakePayment(ctx context.Context, sc Context, req Request) (*Result, error) {
	tableID := sc.TableID()
	logger := logging.GetLogger().GetLoggerWithField("table", tableID)
	logger.Debug("Start payment.TakePayment")
	defer logger.Debug("End payment.TakePayment")

	if err := req.Validate(); err != nil {
		return nil, models.Validation("%v", err)
	}

	current, err := r.sessions.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	balance := current.CurrentTotal

	amount, err := r.resolveAmount(sc, req, balance)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, models.Validation("amount must be greater than zero")
	}
	if amount.GreaterThan(balance.Add(r.opts.Tolerance)) {
		return nil, models.Validation("amount %s exceeds balance %s", amount.StringFixed(2), balance.StringFixed(2))
	}

	p := &models.Payment{
		BusinessID: current.BusinessID,
		TableID:    tableID,
		Amount:     amount,
		Method:     req.Method,
		StaffName:  req.Staff,
		CreatedAt:  r.now(),
	}
	if err := r.store.Insert(ctx, p); err != nil {
		return nil, errors.Wrap(err, "failed to store payment")
	}
	res := &Result{Payment: p}

	switch {
	case len(req.Selection) > 0:
		out, err := r.splitter.Apply(ctx, sc, req.Selection, split.Action{Status: models.StatusPaid, Staff: req.Staff, Payment: p})
		if err != nil {
			return res, errors.Wrapf(err, "payment %s stored, marking rows failed", p.ID)
		}
		res.RowsPaid = out.Processed
	case amount.LessThan(balance):
		logger.Infof("partial payment %s of %s, ledger rows left open", amount, balance)
	default:
		n, err := r.ledger.MarkSessionPaid(ctx, tableID, p)
		if err != nil {
			return res, errors.Wrapf(err, "payment %s stored, marking rows failed", p.ID)
		}
		res.RowsPaid = n
	}

	s, err := r.sessions.OnPaymentApplied(ctx, tableID, amount)
	if err != nil {
		return res, err
	}
	res.Session = s

	if r.opts.AutoClose && s.CurrentTotal.LessThan(r.opts.CloseThreshold) {
		if s, err = r.sessions.Close(ctx, tableID); err != nil {
			return res, err
		}
		res.Session = s
		res.Closed = true
	}

	if p.Method == models.MethodCash && r.drawer != nil {
		r.drawer.DrawerOpenRequested(ctx, tableID, p)
	}
	logger.Infof("payment %s: %s %s by %s, balance %s", p.ID, p.Method, p.Amount.StringFixed(2), p.StaffName, res.Session.CurrentTotal.StringFixed(2))
	return res, nil
}

func (r *Reconciler) resolveAmount(sc Context, req Request, balance decimal.Decimal) (decimal.Decimal, error) {
	var selected decimal.Decimal
	if len(req.Selection) > 0 {
		values := make(map[int64]decimal.Decimal)
		open := make(map[int64]int)
		settled := make(map[int64]models.Status)
		for _, u := range sc.Units() {
			values[u.LedgerID] = u.Line.UnitValue()
			if u.Line.Status.IsTerminal() {
				settled[u.LedgerID] = u.Line.Status
				continue
			}
			open[u.LedgerID]++
		}
		picked := make(map[int64]int)
		for _, ref := range req.Selection {
			if ref.Buffered() {
				return decimal.Zero, models.Validation("unsent lines cannot be paid, send them first")
			}
			v, ok := values[ref.LedgerID]
			if !ok {
				return decimal.Zero, errors.Wrapf(models.ErrNotFound, "order line %d is not on table %s", ref.LedgerID, sc.TableID())
			}
			if st, ok := settled[ref.LedgerID]; ok {
				return decimal.Zero, errors.Wrapf(models.ErrAlreadyTerminal, "order line %d is already %s", ref.LedgerID, st)
			}
			picked[ref.LedgerID]++
			if picked[ref.LedgerID] > open[ref.LedgerID] {
				return decimal.Zero, models.Validation("order line %d has only %d units to pay", ref.LedgerID, open[ref.LedgerID])
			}
			selected = selected.Add(v)
		}
	}

	if req.KeypadAmount != "" {
		keyed, err := models.ParseAmount(req.KeypadAmount)
		if err != nil {
			return decimal.Zero, err
		}
		if keyed.IsPositive() {
			return keyed, nil
		}
	}
	if len(req.Selection) > 0 {
		return selected, nil
	}
	return balance, nil
}
