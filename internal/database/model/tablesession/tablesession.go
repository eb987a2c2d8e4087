package tablesession

import (
	"context"
	"database/sql"
	"time"

	"TableSide/internal/models"
	"TableSide/pkg/logging"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const columns = `business_id, table_id, is_occupied, opened_at, last_order_at, current_total, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the session of a table. A table never seen before comes back idle.
func (r *Repository) Get(ctx context.Context, businessID, tableID string) (*models.TableSession, error) {
	return get(ctx, r.db, businessID, tableID)
}

// List returns every known table of a business ordered by table id.
func (r *Repository) List(ctx context.Context, businessID string) ([]*models.TableSession, error) {
	var out []*models.TableSession
	query := `SELECT ` + columns + ` FROM table_sessions WHERE business_id = ? ORDER BY table_id;`
	if err := r.db.SelectContext(ctx, &out, query, businessID); err != nil {
		return nil, errors.Wrapf(err, "failed SELECT table_sessions; business=%s", businessID)
	}
	return out, nil
}

// Update runs fn against the current session inside one transaction and
// stores whatever fn leaves behind. An error from fn discards the change.
func (r *Repository) Update(ctx context.Context, businessID, tableID string, fn func(s *models.TableSession) error) (s *models.TableSession, err error) {
	logger := logging.GetLogger()
	logger.Debugf("Start tablesession.Update(%s)", tableID)
	defer logger.Debugf("End tablesession.Update(%s)", tableID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed BeginTxx()")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("failed in Rollback(); %v", rbErr)
			}
		}
	}()

	s, err = get(ctx, tx, businessID, tableID)
	if err != nil {
		return nil, err
	}
	if err = fn(s); err != nil {
		return nil, err
	}
	s.BusinessID = businessID
	s.TableID = tableID
	s.UpdatedAt = time.Now().UTC()
	s.OpenedAt = utc(s.OpenedAt)
	s.LastOrderAt = utc(s.LastOrderAt)

	query := `INSERT INTO table_sessions (` + columns + `)
		VALUES (:business_id, :table_id, :is_occupied, :opened_at, :last_order_at, :current_total, :updated_at)
		ON CONFLICT (business_id, table_id) DO UPDATE SET
			is_occupied = excluded.is_occupied,
			opened_at = excluded.opened_at,
			last_order_at = excluded.last_order_at,
			current_total = excluded.current_total,
			updated_at = excluded.updated_at;`
	logger.Debugf("UPSERT:\n%s(%v)", query, s)
	if _, err = tx.NamedExecContext(ctx, query, s); err != nil {
		return nil, errors.Wrapf(err, "failed UPSERT table_sessions; table=%s", tableID)
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed in Commit(); UPSERT table_sessions")
	}
	return s, nil
}

func get(ctx context.Context, q sqlx.QueryerContext, businessID, tableID string) (*models.TableSession, error) {
	var s models.TableSession
	query := `SELECT ` + columns + ` FROM table_sessions WHERE business_id = ? AND table_id = ?;`
	err := sqlx.GetContext(ctx, q, &s, query, businessID, tableID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.TableSession{BusinessID: businessID, TableID: tableID, CurrentTotal: decimal.Zero}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed SELECT table_sessions; table=%s", tableID)
	}
	return &s, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
