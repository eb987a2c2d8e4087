package payment

import (
	"context"
	"time"

	"TableSide/internal/models"
	"TableSide/pkg/logging"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores a payment record, assigning an id when none is set.
func (r *Repository) Insert(ctx context.Context, p *models.Payment) error {
	logger := logging.GetLogger()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = p.CreatedAt.UTC()

	query := `INSERT INTO payments (id, business_id, table_id, amount, method, staff_name, created_at)
		VALUES (:id, :business_id, :table_id, :amount, :method, :staff_name, :created_at);`
	logger.Debugf("INSERT:\n%s(%v)", query, p)
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return errors.Wrapf(err, "failed INSERT payments; table=%s amount=%s", p.TableID, p.Amount)
	}
	return nil
}

// ListByTable returns the payments taken on a table since the given time.
func (r *Repository) ListByTable(ctx context.Context, businessID, tableID string, since time.Time) ([]*models.Payment, error) {
	var out []*models.Payment
	query := `SELECT id, business_id, table_id, amount, method, staff_name, created_at FROM payments
		WHERE business_id = ? AND table_id = ? AND created_at >= ? ORDER BY created_at;`
	if err := r.db.SelectContext(ctx, &out, query, businessID, tableID, since.UTC()); err != nil {
		return nil, errors.Wrapf(err, "failed SELECT payments; table=%s", tableID)
	}
	return out, nil
}
