// Package session tracks table occupancy and the running balance of each table.
package session

import (
	"context"
	"time"

	"TableSide/internal/feed"
	"TableSide/internal/models"
	"TableSide/pkg/logging"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Store interface {
	Get(ctx context.Context, businessID, tableID string) (*models.TableSession, error)
	List(ctx context.Context, businessID string) ([]*models.TableSession, error)
	Update(ctx context.Context, businessID, tableID string, fn func(s *models.TableSession) error) (*models.TableSession, error)
}

// Rows moves ledger rows between tables.
type Rows interface {
	MoveTable(ctx context.Context, fromTable, toTable string) (int, error)
}

type Manager struct {
	store      Store
	rows       Rows
	publisher  feed.Publisher
	businessID string
	now        func() time.Time
}

func NewManager(store Store, rows Rows, publisher feed.Publisher, businessID string) *Manager {
	if publisher == nil {
		publisher = feed.Nop{}
	}
	return &Manager{store: store, rows: rows, publisher: publisher, businessID: businessID, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) Get(ctx context.Context, tableID string) (*models.TableSession, error) {
	return m.store.Get(ctx, m.businessID, tableID)
}

func (m *Manager) List(ctx context.Context) ([]*models.TableSession, error) {
	return m.store.List(ctx, m.businessID)
}

// OnCommit adds a sent amount to the table, opening a new session when the
// table was free or fully settled.
func (m *Manager) OnCommit(ctx context.Context, tableID string, amount decimal.Decimal) (*models.TableSession, error) {
	now := m.now()
	return m.update(ctx, tableID, "commit", func(s *models.TableSession) error {
		if !s.IsOccupied || !s.CurrentTotal.IsPositive() {
			s.IsOccupied = true
			s.OpenedAt = &now
		}
		s.LastOrderAt = &now
		s.CurrentTotal = models.ClampZero(s.CurrentTotal.Add(amount))
		return nil
	})
}

// OnActionTotalDelta shifts the balance by delta, never below zero.
func (m *Manager) OnActionTotalDelta(ctx context.Context, tableID string, delta decimal.Decimal) (*models.TableSession, error) {
	return m.update(ctx, tableID, "action", func(s *models.TableSession) error {
		s.CurrentTotal = models.ClampZero(s.CurrentTotal.Add(delta))
		return nil
	})
}

func (m *Manager) OnPaymentApplied(ctx context.Context, tableID string, amount decimal.Decimal) (*models.TableSession, error) {
	return m.update(ctx, tableID, "payment", func(s *models.TableSession) error {
		s.CurrentTotal = models.ClampZero(s.CurrentTotal.Sub(amount))
		return nil
	})
}

// Close frees the table whatever its balance.
func (m *Manager) Close(ctx context.Context, tableID string) (*models.TableSession, error) {
	return m.update(ctx, tableID, "close", func(s *models.TableSession) error {
		s.Reset()
		return nil
	})
}

// Move hands an open table over to a free one.
func (m *Manager) Move(ctx context.Context, fromTable, toTable string) (*models.TableSession, error) {
	return m.transfer(ctx, fromTable, toTable, false)
}

// Merge folds one open table into another, occupied or not.
func (m *Manager) Merge(ctx context.Context, fromTable, toTable string) (*models.TableSession, error) {
	return m.transfer(ctx, fromTable, toTable, true)
}

func (m *Manager) transfer(ctx context.Context, fromTable, toTable string, merge bool) (*models.TableSession, error) {
	logger := logging.GetLogger().GetLoggerWithField("table", fromTable)
	logger.Debugf("Start session.transfer(%s -> %s)", fromTable, toTable)
	defer logger.Debugf("End session.transfer(%s -> %s)", fromTable, toTable)

	if fromTable == toTable {
		return nil, models.Validation("table %s cannot be moved onto itself", fromTable)
	}
	src, err := m.Get(ctx, fromTable)
	if err != nil {
		return nil, err
	}
	if !src.IsOccupied {
		return nil, models.Validation("table %s is not open", fromTable)
	}
	dst, err := m.Get(ctx, toTable)
	if err != nil {
		return nil, err
	}
	if !merge && dst.IsOccupied {
		return nil, models.Validation("table %s is occupied", toTable)
	}

	n, err := m.rows.MoveTable(ctx, fromTable, toTable)
	if err != nil {
		return nil, errors.Wrap(err, "failed MoveTable()")
	}

	out, err := m.update(ctx, toTable, "transfer", func(s *models.TableSession) error {
		if !s.IsOccupied || s.OpenedAt == nil {
			s.IsOccupied = true
			s.OpenedAt = src.OpenedAt
		} else if src.OpenedAt != nil && src.OpenedAt.Before(*s.OpenedAt) {
			s.OpenedAt = src.OpenedAt
		}
		if s.LastOrderAt == nil || (src.LastOrderAt != nil && src.LastOrderAt.After(*s.LastOrderAt)) {
			s.LastOrderAt = src.LastOrderAt
		}
		s.CurrentTotal = s.CurrentTotal.Add(src.CurrentTotal)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := m.Close(ctx, fromTable); err != nil {
		return nil, err
	}
	logger.Infof("%d rows moved %s -> %s, balance %s", n, fromTable, toTable, src.CurrentTotal)
	return out, nil
}

func (m *Manager) update(ctx context.Context, tableID, what string, fn func(s *models.TableSession) error) (*models.TableSession, error) {
	s, err := m.store.Update(ctx, m.businessID, tableID, fn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed session %s on table %s", what, tableID)
	}
	ev, err := feed.NewEvent(feed.EventUpdate, feed.EntityTableSession, m.businessID, tableID, s)
	if err == nil {
		err = m.publisher.Publish(ctx, ev)
	}
	if err != nil {
		logging.GetLogger().Warnf("table %s session not announced: %v", tableID, err)
	}
	return s, nil
}
