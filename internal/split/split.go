// Package split applies gift, waste, cancel and payment actions to individual
// units of multi-quantity ledger rows.
package split

import (
	"context"

	"TableSide/internal/cart"
	"TableSide/internal/ledger"
	"TableSide/internal/models"
	"TableSide/pkg/logging"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Context is the table-scoped state an action runs against.
type Context interface {
	TableID() string
	Cart() *cart.Buffer
}

// Balance receives the running-total change caused by an action.
type Balance interface {
	OnActionTotalDelta(ctx context.Context, tableID string, delta decimal.Decimal) (*models.TableSession, error)
}

type Action struct {
	Status models.Status
	Reason string
	Note   string
	Staff  string
	// Payment is required when Status is paid.
	Payment *models.Payment
}

type Options struct {
	Retries       int
	RequireReason bool
	Terminal      string
}

type Result struct {
	// Rows now carrying the target status, one per ledger row touched.
	Rows []*models.OrderLine
	// Processed counts ledger units; Removed counts buffered lines dropped from the cart.
	Processed int
	Removed   int
	// TotalDelta is what the action took off the running total.
	TotalDelta decimal.Decimal
}

type Engine struct {
	ledger  *ledger.Ledger
	balance Balance
	opts    Options
}

func New(l *ledger.Ledger, balance Balance, opts Options) *Engine {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Engine{ledger: l, balance: balance, opts: opts}
}

type group struct {
	id    int64
	units int
}

// Apply runs action over units. Units of the same ledger row are processed
// together; a row hit for only part of its quantity is split in two.
func (e *Engine) Apply(ctx context.Context, sc Context, units []models.UnitRef, action Action) (*Result, error) {
	logger := logging.GetLogger().GetLoggerWithField("table", sc.TableID())
	logger.Debugf("Start split.Apply(%s)", action.Status)
	defer logger.Debugf("End split.Apply(%s)", action.Status)

	groups, buffered, err := e.validate(units, action)
	if err != nil {
		return nil, err
	}
	for _, i := range buffered {
		if i < 0 || i >= sc.Cart().Len() {
			return nil, models.Validation("no cart line %d", i)
		}
	}

	res := &Result{TotalDelta: decimal.Zero}
	for _, g := range groups {
		row, err := e.applyGroup(ctx, g, action)
		if err != nil {
			return res, err
		}
		res.Rows = append(res.Rows, row)
		res.Processed += g.units

		if action.Status != models.StatusPaid {
			delta := row.UnitValue().Mul(decimal.NewFromInt(int64(g.units)))
			res.TotalDelta = res.TotalDelta.Add(delta)
			if e.balance != nil {
				if _, err := e.balance.OnActionTotalDelta(ctx, sc.TableID(), delta.Neg()); err != nil {
					return res, errors.Wrap(err, "failed OnActionTotalDelta()")
				}
			}
		}
	}

	if len(buffered) > 0 {
		if err := sc.Cart().Remove(buffered); err != nil {
			return res, err
		}
		res.Removed = len(buffered)
	}

	logger.Infof("%s: %d units on %d rows, %d buffered lines removed", action.Status, res.Processed, len(res.Rows), res.Removed)
	return res, nil
}

func (e *Engine) validate(units []models.UnitRef, action Action) ([]group, []int, error) {
	if !action.Status.IsTerminal() {
		return nil, nil, models.Validation("action %q is not supported", action.Status)
	}
	if action.Status == models.StatusPaid && action.Payment == nil {
		return nil, nil, models.Validation("payment action without payment")
	}
	if len(units) == 0 {
		return nil, nil, models.Validation("no units selected")
	}

	var groups []group
	pos := map[int64]int{}
	var buffered []int
	for _, u := range units {
		switch {
		case u.Buffered():
			if action.Status == models.StatusPaid {
				return nil, nil, models.Validation("unsent lines cannot be paid")
			}
			buffered = append(buffered, *u.CartIndex)
		case u.LedgerID > 0:
			i, ok := pos[u.LedgerID]
			if !ok {
				i = len(groups)
				pos[u.LedgerID] = i
				groups = append(groups, group{id: u.LedgerID})
			}
			groups[i].units++
		default:
			return nil, nil, models.Validation("unit reference is empty")
		}
	}

	if len(groups) > 0 && action.Status != models.StatusPaid && e.opts.RequireReason && action.Reason == "" {
		return nil, nil, models.Validation("a reason is required to %s sent items", action.Status)
	}
	return groups, buffered, nil
}

// applyGroup retries on version conflicts with a fresh read each time.
func (e *Engine) applyGroup(ctx context.Context, g group, action Action) (*models.OrderLine, error) {
	var err error
	for attempt := 1; attempt <= e.opts.Retries; attempt++ {
		var row *models.OrderLine
		var stale bool
		row, stale, err = e.applyOnce(ctx, g, action)
		if err == nil {
			return row, nil
		}
		if !stale || errors.Cause(err) != models.ErrConflict {
			return nil, err
		}
		logging.GetLogger().Warnf("row %d changed concurrently, attempt %d/%d", g.id, attempt, e.opts.Retries)
	}
	return nil, err
}

// applyOnce reports stale when the write lost a race and a re-read may succeed.
func (e *Engine) applyOnce(ctx context.Context, g group, action Action) (*models.OrderLine, bool, error) {
	row, err := e.ledger.Get(ctx, g.id)
	if err != nil {
		return nil, false, err
	}
	if row.Status.IsTerminal() {
		return nil, false, errors.Wrapf(models.ErrAlreadyTerminal, "order line %d is already %s", row.ID, row.Status)
	}

	processed := g.units
	if processed > row.Quantity {
		return nil, false, errors.Wrapf(models.ErrConflict, "order line %d has %d units, %d selected", row.ID, row.Quantity, processed)
	}
	remaining := row.Quantity - processed

	patch := e.patch(action)
	if remaining == 0 {
		next, err := e.ledger.MarkVersion(ctx, row, patch)
		return next, true, err
	}

	clone := *row
	clone.ID = 0
	clone.Version = 0
	clone.Quantity = processed
	patch.Apply(&clone)
	clone.Meta.SplitFrom = row.ID
	if err := e.ledger.SplitRow(ctx, row, remaining, &clone); err != nil {
		return nil, true, err
	}
	return &clone, false, nil
}

func (e *Engine) patch(action Action) models.LinePatch {
	now := e.ledger.Now()
	p := models.LinePatch{
		Status:     action.Status,
		ActionedAt: &now,
		Meta: models.ActionMeta{
			Action:   string(action.Status),
			Reason:   action.Reason,
			Terminal: e.opts.Terminal,
		},
	}
	if action.Note != "" {
		note := action.Note
		p.Note = &note
	}
	if action.Payment != nil {
		at := action.Payment.CreatedAt
		if at.IsZero() {
			at = now
		}
		p.PaidAt = &at
		p.PaidByName = action.Payment.StaffName
		p.PaymentRef = action.Payment.ID
		p.Meta.PaymentMethod = action.Payment.Method
	}
	if p.PaidByName == "" && action.Status == models.StatusPaid {
		p.PaidByName = action.Staff
	}
	return p
}
