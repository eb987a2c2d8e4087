package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Product struct {
	ID             int64           `db:"id" json:"id"`
	CategoryID     int64           `db:"category_id" json:"category_id"`
	Name           string          `db:"name" json:"name"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Active         bool            `db:"active" json:"active"`
	ModifierGroups []ModifierGroup `db:"-" json:"modifier_groups,omitempty"`
}

// ModifierGroup is a configurable option set; Min > 0 makes it required.
type ModifierGroup struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Name      string    `db:"name" json:"name"`
	Min       int       `db:"min_select" json:"min"`
	Max       int       `db:"max_select" json:"max"`
	Options   Modifiers `db:"options" json:"options"`
}

type RuleKind string

const (
	RuleTimed     RuleKind = "timed"
	RuleHappyHour RuleKind = "happy_hour"
)

type TargetType string

const (
	TargetProduct  TargetType = "product"
	TargetCategory TargetType = "category"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// DayWindow is a time-of-day window in minutes since midnight.
type DayWindow struct {
	Active bool `json:"active"`
	Start  int  `json:"start"`
	End    int  `json:"end"`
}

// DiscountRule covers both timed discounts and happy hours.
type DiscountRule struct {
	ID           int64
	Name         string
	Kind         RuleKind
	TargetType   TargetType
	TargetIDs    []int64
	DiscountType DiscountType
	Amount       decimal.Decimal
	Active       bool
	ValidFrom    *time.Time
	ValidTo      *time.Time
	// Schedule is indexed by time.Weekday.
	Schedule map[time.Weekday]DayWindow
}
