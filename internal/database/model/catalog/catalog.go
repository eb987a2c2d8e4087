package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"TableSide/internal/models"
	"TableSide/internal/pricing"
	"TableSide/pkg/logging"

	"github.com/araddon/dateparse"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ruleRow is the stored form of a discount rule.
type ruleRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	Kind         string         `db:"kind"`
	TargetType   string         `db:"target_type"`
	TargetIDs    string         `db:"target_ids"`
	DiscountType string         `db:"discount_type"`
	Amount       string         `db:"amount"`
	Active       bool           `db:"active"`
	ValidFrom    sql.NullString `db:"valid_from"`
	ValidTo      sql.NullString `db:"valid_to"`
	Schedule     string         `db:"schedule"`
}

// ClockWindow is the stored per-weekday happy hour window.
type ClockWindow struct {
	Active bool   `json:"active"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

type Repository struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewRepository reads rule dates in loc; nil means time.Local.
func NewRepository(db *sqlx.DB, loc *time.Location) *Repository {
	if loc == nil {
		loc = time.Local
	}
	return &Repository{db: db, loc: loc}
}

func (r *Repository) Categories(ctx context.Context) ([]*models.Category, error) {
	var out []*models.Category
	if err := r.db.SelectContext(ctx, &out, `SELECT id, name FROM categories ORDER BY id;`); err != nil {
		return nil, errors.Wrap(err, "failed SELECT categories")
	}
	return out, nil
}

// Products returns every product with its modifier groups attached.
func (r *Repository) Products(ctx context.Context) ([]*models.Product, error) {
	logger := logging.GetLogger()
	logger.Debug("Start catalog.Products")
	defer logger.Debug("End catalog.Products")

	var products []*models.Product
	query := `SELECT id, category_id, name, price, active FROM products ORDER BY id;`
	if err := r.db.SelectContext(ctx, &products, query); err != nil {
		return nil, errors.Wrapf(err, "failed SELECT to dbsqlite; query:\n%s", query)
	}

	var groups []models.ModifierGroup
	query = `SELECT id, product_id, name, min_select, max_select, options FROM modifier_groups ORDER BY product_id, id;`
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, errors.Wrapf(err, "failed SELECT to dbsqlite; query:\n%s", query)
	}

	byID := make(map[int64]*models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, g := range groups {
		if p, ok := byID[g.ProductID]; ok {
			p.ModifierGroups = append(p.ModifierGroups, g)
		}
	}
	logger.Debugf("products: %d, modifier groups: %d", len(products), len(groups))
	return products, nil
}

// Rules returns every stored discount rule in declaration order.
func (r *Repository) Rules(ctx context.Context) ([]models.DiscountRule, error) {
	var rows []ruleRow
	query := `SELECT id, name, kind, target_type, target_ids, discount_type, amount, active, valid_from, valid_to, schedule
		FROM discount_rules ORDER BY id;`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrapf(err, "failed SELECT to dbsqlite; query:\n%s", query)
	}

	out := make([]models.DiscountRule, 0, len(rows))
	for _, row := range rows {
		rule, err := r.decode(row)
		if err != nil {
			return nil, errors.Wrapf(err, "discount rule %d", row.ID)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *Repository) decode(row ruleRow) (models.DiscountRule, error) {
	rule := models.DiscountRule{
		ID:           row.ID,
		Name:         row.Name,
		Kind:         models.RuleKind(row.Kind),
		TargetType:   models.TargetType(row.TargetType),
		DiscountType: models.DiscountType(row.DiscountType),
		Active:       row.Active,
	}

	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return rule, errors.Wrapf(err, "bad amount %q", row.Amount)
	}
	rule.Amount = amount

	if err := json.Unmarshal([]byte(row.TargetIDs), &rule.TargetIDs); err != nil {
		return rule, errors.Wrap(err, "bad target_ids")
	}

	if rule.ValidFrom, err = r.parseDate(row.ValidFrom); err != nil {
		return rule, err
	}
	if rule.ValidTo, err = r.parseDate(row.ValidTo); err != nil {
		return rule, err
	}

	var stored map[string]ClockWindow
	if err := json.Unmarshal([]byte(row.Schedule), &stored); err != nil {
		return rule, errors.Wrap(err, "bad schedule")
	}
	if len(stored) > 0 {
		rule.Schedule = make(map[time.Weekday]models.DayWindow, len(stored))
	}
	for day, w := range stored {
		wd, ok := weekdays[strings.ToLower(day)]
		if !ok {
			return rule, errors.Errorf("unknown weekday %q", day)
		}
		dw := models.DayWindow{Active: w.Active}
		if w.Active {
			if dw.Start, err = pricing.ParseClock(w.Start); err != nil {
				return rule, err
			}
			if dw.End, err = pricing.ParseClock(w.End); err != nil {
				return rule, err
			}
		}
		rule.Schedule[wd] = dw
	}
	return rule, nil
}

func (r *Repository) parseDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil, nil
	}
	t, err := dateparse.ParseIn(s.String, r.loc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed dateparse.ParseIn(%q)", s.String)
	}
	return &t, nil
}

// UpsertCategory inserts the category or renames it when the id exists.
func (r *Repository) UpsertCategory(ctx context.Context, c *models.Category) error {
	query := `INSERT INTO categories (id, name) VALUES (:id, :name)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name;`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return errors.Wrapf(err, "failed UPSERT categories; query:\n%s(%v)", query, c)
	}
	return nil
}

// UpsertProduct writes the product and replaces its modifier groups.
func (r *Repository) UpsertProduct(ctx context.Context, p *models.Product) (err error) {
	logger := logging.GetLogger()
	logger.Debugf("Start catalog.UpsertProduct(%d)", p.ID)
	defer logger.Debugf("End catalog.UpsertProduct(%d)", p.ID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed BeginTxx()")
	}
	defer func() {
		if err != nil {
			logger.Error(err)
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("failed in Rollback(); %v", rbErr)
			}
		}
	}()

	query := `INSERT INTO products (id, category_id, name, price, active) VALUES (:id, :category_id, :name, :price, :active)
		ON CONFLICT (id) DO UPDATE SET category_id = excluded.category_id, name = excluded.name,
		price = excluded.price, active = excluded.active;`
	if _, err = tx.NamedExecContext(ctx, query, p); err != nil {
		return errors.Wrapf(err, "failed UPSERT products; query:\n%s(%v)", query, p)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM modifier_groups WHERE product_id = ?;`, p.ID); err != nil {
		return errors.Wrapf(err, "failed DELETE modifier_groups; product=%d", p.ID)
	}
	for i := range p.ModifierGroups {
		g := &p.ModifierGroups[i]
		g.ProductID = p.ID
		query = `INSERT INTO modifier_groups (product_id, name, min_select, max_select, options)
			VALUES (:product_id, :name, :min_select, :max_select, :options);`
		res, err2 := tx.NamedExecContext(ctx, query, g)
		if err2 != nil {
			err = errors.Wrapf(err2, "failed INSERT modifier_groups; group=%s", g.Name)
			return err
		}
		g.ID, _ = res.LastInsertId()
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed in Commit(); UPSERT products")
	}
	return nil
}

// InsertRule stores a rule. Dates are written as YYYY-MM-DD, the schedule as HH:MM windows.
func (r *Repository) InsertRule(ctx context.Context, rule *models.DiscountRule) error {
	targets, err := json.Marshal(rule.TargetIDs)
	if err != nil {
		return errors.Wrap(err, "failed json.Marshal(target ids)")
	}
	schedule := make(map[string]ClockWindow, len(rule.Schedule))
	for name, wd := range weekdays {
		w, ok := rule.Schedule[wd]
		if !ok {
			continue
		}
		schedule[name] = ClockWindow{Active: w.Active, Start: clock(w.Start), End: clock(w.End)}
	}
	sched, err := json.Marshal(schedule)
	if err != nil {
		return errors.Wrap(err, "failed json.Marshal(schedule)")
	}

	row := ruleRow{
		Name:         rule.Name,
		Kind:         string(rule.Kind),
		TargetType:   string(rule.TargetType),
		TargetIDs:    string(targets),
		DiscountType: string(rule.DiscountType),
		Amount:       rule.Amount.String(),
		Active:       rule.Active,
		ValidFrom:    date(rule.ValidFrom),
		ValidTo:      date(rule.ValidTo),
		Schedule:     string(sched),
	}
	query := `INSERT INTO discount_rules (name, kind, target_type, target_ids, discount_type, amount, active, valid_from, valid_to, schedule)
		VALUES (:name, :kind, :target_type, :target_ids, :discount_type, :amount, :active, :valid_from, :valid_to, :schedule);`
	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.Wrapf(err, "failed INSERT discount_rules; rule=%s", rule.Name)
	}
	rule.ID, _ = res.LastInsertId()
	return nil
}

func clock(min int) string {
	return time.Date(0, 1, 1, min/60, min%60, 0, 0, time.UTC).Format("15:04")
}

func date(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format("2006-01-02"), Valid: true}
}
