package orderline

import (
	"context"
	"database/sql"
	"time"

	"TableSide/internal/models"
	"TableSide/pkg/logging"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const columns = `id, origin_id, version, business_id, table_id, product_id, name, unit_price, quantity, note,
	modifiers, discount_label, status, staff_name, created_at, actioned_at, paid_at, paid_by_name, payment_ref, action_meta`

const insertQuery = `INSERT INTO order_lines (origin_id, version, business_id, table_id, product_id, name, unit_price,
	quantity, note, modifiers, discount_label, status, staff_name, created_at, actioned_at, paid_at, paid_by_name,
	payment_ref, action_meta)
	VALUES (:origin_id, 1, :business_id, :table_id, :product_id, :name, :unit_price,
	:quantity, :note, :modifiers, :discount_label, :status, :staff_name, :created_at, :actioned_at, :paid_at, :paid_by_name,
	:payment_ref, :action_meta);`

// Repository is the sqlite-backed ledger store.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes new rows in one transaction and fills in their ids.
// A row with OriginID 0 becomes its own origin.
func (r *Repository) Insert(ctx context.Context, lines []*models.OrderLine) (err error) {
	logger := logging.GetLogger()
	logger.Debug("Start orderline.Insert")
	defer logger.Debug("End orderline.Insert")

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed BeginTxx()")
	}
	defer rollbackOnError(tx, &err)

	for _, l := range lines {
		if err = insertTx(ctx, tx, l); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed in Commit(); INSERT order_lines")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*models.OrderLine, error) {
	return get(ctx, r.db, id)
}

// ListSince returns the rows of a table created at or after since, plus every
// row that is still active regardless of age.
func (r *Repository) ListSince(ctx context.Context, businessID, tableID string, since time.Time) ([]*models.OrderLine, error) {
	query := `SELECT ` + columns + ` FROM order_lines
		WHERE business_id = ? AND table_id = ?
		AND (created_at >= ? OR paid_at >= ? OR status IN ('sent','served','preparing','ready'))
		ORDER BY created_at, id;`

	var out []*models.OrderLine
	since = since.UTC()
	if err := r.db.SelectContext(ctx, &out, query, businessID, tableID, since, since); err != nil {
		return nil, errors.Wrapf(err, "failed SELECT order_lines; table=%s since=%s", tableID, since)
	}
	return out, nil
}

// ListByOrigin returns every row split off the same committed line.
func (r *Repository) ListByOrigin(ctx context.Context, originID int64) ([]*models.OrderLine, error) {
	var out []*models.OrderLine
	query := `SELECT ` + columns + ` FROM order_lines WHERE origin_id = ? ORDER BY id;`
	if err := r.db.SelectContext(ctx, &out, query, originID); err != nil {
		return nil, errors.Wrapf(err, "failed SELECT order_lines; origin=%d", originID)
	}
	return out, nil
}

// Patch updates one row if it still carries version.
func (r *Repository) Patch(ctx context.Context, id, version int64, p models.LinePatch) (err error) {
	logger := logging.GetLogger()
	logger.Debugf("Start orderline.Patch(%d)", id)
	defer logger.Debugf("End orderline.Patch(%d)", id)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed BeginTxx()")
	}
	defer rollbackOnError(tx, &err)

	cur, err := get(ctx, tx, id)
	if err != nil {
		return err
	}
	if err = checkWritable(cur, version); err != nil {
		return err
	}
	if err = patchTx(ctx, tx, cur, p); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed in Commit(); UPDATE order_lines")
	}
	return nil
}

// Split decrements row id to remaining and inserts clone as the split-off part.
// Both writes commit together, and only if the row still carries version.
func (r *Repository) Split(ctx context.Context, id, version int64, remaining int, clone *models.OrderLine) (err error) {
	logger := logging.GetLogger()
	logger.Debugf("Start orderline.Split(%d)", id)
	defer logger.Debugf("End orderline.Split(%d)", id)

	if remaining < 1 {
		return errors.Wrapf(models.ErrConflict, "split of row %d leaves %d units", id, remaining)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed BeginTxx()")
	}
	defer rollbackOnError(tx, &err)

	cur, err := get(ctx, tx, id)
	if err != nil {
		return err
	}
	if err = checkWritable(cur, version); err != nil {
		return err
	}
	if cur.Quantity != remaining+clone.Quantity {
		err = errors.Wrapf(models.ErrConflict, "row %d holds %d units, split wants %d+%d", id, cur.Quantity, remaining, clone.Quantity)
		return err
	}

	query := `UPDATE order_lines SET quantity = ?, version = version + 1 WHERE id = ? AND version = ?;`
	res, err := tx.ExecContext(ctx, query, remaining, id, version)
	if err != nil {
		return errors.Wrapf(err, "failed UPDATE order_lines; query:\n%s(%d, %d, %d)", query, remaining, id, version)
	}
	if err = expectOne(res, id); err != nil {
		return err
	}

	if clone.OriginID == 0 {
		clone.OriginID = cur.OriginID
	}
	if err = insertTx(ctx, tx, clone); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed in Commit(); split order_lines")
	}
	return nil
}

// SettleTable marks every active row of the table paid and stamps the payment
// reference on settled rows that have none yet.
func (r *Repository) SettleTable(ctx context.Context, businessID, tableID string, p models.LinePatch) (paid int64, stamped int64, err error) {
	logger := logging.GetLogger()
	logger.Debugf("Start orderline.SettleTable(%s)", tableID)
	defer logger.Debugf("End orderline.SettleTable(%s)", tableID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed BeginTxx()")
	}
	defer rollbackOnError(tx, &err)

	query := `UPDATE order_lines SET status = 'paid', paid_at = ?, actioned_at = ?, paid_by_name = ?, payment_ref = ?,
		action_meta = ?, version = version + 1
		WHERE business_id = ? AND table_id = ? AND status IN ('sent','served','preparing','ready');`
	res, err := tx.ExecContext(ctx, query, utc(p.PaidAt), utc(p.ActionedAt), p.PaidByName, p.PaymentRef, p.Meta, businessID, tableID)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "failed UPDATE order_lines to paid; table=%s", tableID)
	}
	paid, _ = res.RowsAffected()

	query = `UPDATE order_lines SET payment_ref = ?, version = version + 1
		WHERE business_id = ? AND table_id = ? AND status IN ('gift','waste','cancel') AND payment_ref = '';`
	res, err = tx.ExecContext(ctx, query, p.PaymentRef, businessID, tableID)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "failed UPDATE order_lines payment_ref; table=%s", tableID)
	}
	stamped, _ = res.RowsAffected()

	if err = tx.Commit(); err != nil {
		return 0, 0, errors.Wrap(err, "failed in Commit(); settle order_lines")
	}
	logger.Infof("table %s settled: %d rows paid, %d rows archived", tableID, paid, stamped)
	return paid, stamped, nil
}

// MoveActive re-homes the active rows of one table onto another.
func (r *Repository) MoveActive(ctx context.Context, businessID, fromTable, toTable string) (int64, error) {
	query := `UPDATE order_lines SET table_id = ?, version = version + 1
		WHERE business_id = ? AND table_id = ? AND status IN ('sent','served','preparing','ready');`
	res, err := r.db.ExecContext(ctx, query, toTable, businessID, fromTable)
	if err != nil {
		return 0, errors.Wrapf(err, "failed UPDATE order_lines table; %s -> %s", fromTable, toTable)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func get(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.OrderLine, error) {
	var l models.OrderLine
	query := `SELECT ` + columns + ` FROM order_lines WHERE id = ?;`
	err := sqlx.GetContext(ctx, q, &l, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "order line %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed SELECT order_lines; id=%d", id)
	}
	return &l, nil
}

func insertTx(ctx context.Context, tx *sqlx.Tx, l *models.OrderLine) error {
	l.CreatedAt = l.CreatedAt.UTC()
	l.ActionedAt = utc(l.ActionedAt)
	l.PaidAt = utc(l.PaidAt)
	res, err := tx.NamedExecContext(ctx, insertQuery, l)
	if err != nil {
		return errors.Wrapf(err, "failed INSERT order_lines; %s x%d", l.Name, l.Quantity)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed LastInsertId()")
	}
	l.ID = id
	l.Version = 1
	if l.OriginID == 0 {
		l.OriginID = id
		if _, err := tx.ExecContext(ctx, `UPDATE order_lines SET origin_id = id WHERE id = ?;`, id); err != nil {
			return errors.Wrapf(err, "failed UPDATE order_lines origin; id=%d", id)
		}
	}
	return nil
}

func patchTx(ctx context.Context, tx *sqlx.Tx, cur *models.OrderLine, p models.LinePatch) error {
	next := *cur
	p.Apply(&next)
	if !next.Status.Valid() {
		return models.Validation("unknown status %q", next.Status)
	}

	query := `UPDATE order_lines SET status = :status, note = :note, actioned_at = :actioned_at, paid_at = :paid_at,
		paid_by_name = :paid_by_name, payment_ref = :payment_ref, action_meta = :action_meta, version = version + 1
		WHERE id = :id AND version = :version;`
	next.ActionedAt = utc(next.ActionedAt)
	next.PaidAt = utc(next.PaidAt)
	res, err := tx.NamedExecContext(ctx, query, &next)
	if err != nil {
		return errors.Wrapf(err, "failed UPDATE order_lines; id=%d", cur.ID)
	}
	return expectOne(res, cur.ID)
}

func checkWritable(cur *models.OrderLine, version int64) error {
	if cur.Status.IsTerminal() {
		return errors.Wrapf(models.ErrAlreadyTerminal, "order line %d is %s", cur.ID, cur.Status)
	}
	if cur.Version != version {
		return errors.Wrapf(models.ErrConflict, "order line %d version %d, expected %d", cur.ID, cur.Version, version)
	}
	return nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed RowsAffected()")
	}
	if n != 1 {
		return errors.Wrapf(models.ErrConflict, "order line %d changed concurrently", id)
	}
	return nil
}

func rollbackOnError(tx *sqlx.Tx, err *error) {
	if *err == nil {
		return
	}
	logger := logging.GetLogger()
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Errorf("failed in Rollback(); %v", rbErr)
		return
	}
	logger.Debug("Rollback() is done")
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
