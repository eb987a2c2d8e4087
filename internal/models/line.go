package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Modifier struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Modifiers is stored as a JSON array, order preserved.
type Modifiers []Modifier

func (m Modifiers) Surcharge() decimal.Decimal {
	sum := decimal.Zero
	for _, mod := range m {
		sum = sum.Add(mod.Price)
	}
	return sum
}

func (m Modifiers) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed json.Marshal(modifiers)")
	}
	return string(b), nil
}

func (m *Modifiers) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// ActionMeta is the free-form metadata blob attached when an action is applied.
type ActionMeta struct {
	Action        string `json:"action,omitempty"`
	Reason        string `json:"reason,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Terminal      string `json:"terminal,omitempty"`
	SplitFrom     int64  `json:"split_from,omitempty"`
}

func (a ActionMeta) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "failed json.Marshal(action meta)")
	}
	return string(b), nil
}

func (a *ActionMeta) Scan(src interface{}) error {
	return scanJSON(src, a)
}

func scanJSON(src interface{}, dst interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("unsupported json column type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(b, dst), "failed json.Unmarshal")
}

// OrderLine is one persisted ledger row.
type OrderLine struct {
	ID            int64           `db:"id" json:"id"`
	OriginID      int64           `db:"origin_id" json:"origin_id"`
	Version       int64           `db:"version" json:"version"`
	BusinessID    string          `db:"business_id" json:"business_id"`
	TableID       string          `db:"table_id" json:"table_id"`
	ProductID     *int64          `db:"product_id" json:"product_id,omitempty"`
	Name          string          `db:"name" json:"name"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity      int             `db:"quantity" json:"quantity"`
	Note          string          `db:"note" json:"note"`
	Modifiers     Modifiers       `db:"modifiers" json:"modifiers"`
	DiscountLabel string          `db:"discount_label" json:"discount_label,omitempty"`
	Status        Status          `db:"status" json:"status"`
	StaffName     string          `db:"staff_name" json:"staff_name"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ActionedAt    *time.Time      `db:"actioned_at" json:"actioned_at,omitempty"`
	PaidAt        *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	PaidByName    string          `db:"paid_by_name" json:"paid_by_name,omitempty"`
	PaymentRef    string          `db:"payment_ref" json:"payment_ref,omitempty"`
	Meta          ActionMeta      `db:"action_meta" json:"action_meta"`
}

// UnitValue is the price of a single unit including modifier surcharges.
func (l *OrderLine) UnitValue() decimal.Decimal {
	return l.UnitPrice.Add(l.Modifiers.Surcharge())
}

// Total is UnitValue times quantity.
func (l *OrderLine) Total() decimal.Decimal {
	return l.UnitValue().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartLine is a buffered, not yet committed line.
type CartLine struct {
	ProductID     *int64          `json:"product_id,omitempty"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	Note          string          `json:"note"`
	Modifiers     Modifiers       `json:"modifiers"`
	DiscountLabel string          `json:"discount_label,omitempty"`
	StaffName     string          `json:"staff_name"`
	AddedAt       time.Time       `json:"added_at"`
	Selected      bool            `json:"selected"`
}

func (c *CartLine) UnitValue() decimal.Decimal {
	return c.UnitPrice.Add(c.Modifiers.Surcharge())
}

func (c *CartLine) Total() decimal.Decimal {
	return c.UnitValue().Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Unit is one selectable quantity unit exploded from a ledger row.
type Unit struct {
	LedgerID int64     `json:"ledger_id"`
	Index    int       `json:"index"`
	Line     OrderLine `json:"line"`
}

// UnitRef addresses either a persisted unit (LedgerID > 0) or a buffered cart line.
type UnitRef struct {
	LedgerID  int64 `json:"ledger_id,omitempty"`
	CartIndex *int  `json:"cart_index,omitempty"`
}

func (u UnitRef) Buffered() bool {
	return u.LedgerID == 0 && u.CartIndex != nil
}
