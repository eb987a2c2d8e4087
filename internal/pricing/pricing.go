// Package pricing resolves the effective unit price of a product at a point
// in time under competing timed-discount and happy-hour rules.
package pricing

import (
	"sort"
	"time"

	"TableSide/internal/models"

	"github.com/shopspring/decimal"
)

const (
	LabelHappyHour = "HAPPY HOUR"
	LabelDiscount  = "DISCOUNT"
)

var hundred = decimal.NewFromInt(100)

type Price struct {
	Unit       decimal.Decimal `json:"unit"`
	Original   decimal.Decimal `json:"original"`
	Discounted bool            `json:"discounted"`
	Label      string          `json:"label,omitempty"`
}

type indexedRule struct {
	order int
	rule  models.DiscountRule
	from  *time.Time
	to    *time.Time
}

type index struct {
	byProduct  map[int64][]*indexedRule
	byCategory map[int64][]*indexedRule
}

// Engine is immutable once built; rebuild it when the rule set changes.
type Engine struct {
	timed index
	happy index
}

func NewEngine(rules []models.DiscountRule) *Engine {
	e := &Engine{
		timed: index{byProduct: map[int64][]*indexedRule{}, byCategory: map[int64][]*indexedRule{}},
		happy: index{byProduct: map[int64][]*indexedRule{}, byCategory: map[int64][]*indexedRule{}},
	}
	for i, r := range rules {
		if !r.Active {
			continue
		}
		ir := &indexedRule{order: i, rule: r}
		if r.ValidFrom != nil {
			from := startOfDay(*r.ValidFrom)
			ir.from = &from
		}
		if r.ValidTo != nil {
			to := endOfDay(*r.ValidTo)
			ir.to = &to
		}

		var idx *index
		switch r.Kind {
		case models.RuleTimed:
			idx = &e.timed
		case models.RuleHappyHour:
			idx = &e.happy
		default:
			continue
		}
		for _, id := range r.TargetIDs {
			switch r.TargetType {
			case models.TargetProduct:
				idx.byProduct[id] = append(idx.byProduct[id], ir)
			case models.TargetCategory:
				idx.byCategory[id] = append(idx.byCategory[id], ir)
			}
		}
	}
	return e
}

// Resolve returns the price of p at now. Timed discounts win over happy hours;
// inside each kind the first declared matching rule applies.
func (e *Engine) Resolve(p *models.Product, now time.Time) Price {
	res := Price{Unit: p.Price, Original: p.Price}

	for _, ir := range e.timed.candidates(p) {
		if !ir.inDateRange(now) {
			continue
		}
		res.Unit = apply(p.Price, ir.rule)
		res.Discounted = true
		res.Label = ir.rule.Name
		if res.Label == "" {
			res.Label = LabelDiscount
		}
		return res
	}

	for _, ir := range e.happy.candidates(p) {
		if !ir.inDateRange(now) || !ir.inSchedule(now) {
			continue
		}
		res.Unit = apply(p.Price, ir.rule)
		res.Discounted = true
		res.Label = LabelHappyHour
		return res
	}

	return res
}

func (x *index) candidates(p *models.Product) []*indexedRule {
	byProduct := x.byProduct[p.ID]
	byCategory := x.byCategory[p.CategoryID]
	if len(byCategory) == 0 {
		return byProduct
	}
	if len(byProduct) == 0 {
		return byCategory
	}

	seen := make(map[int]bool, len(byProduct)+len(byCategory))
	out := make([]*indexedRule, 0, len(byProduct)+len(byCategory))
	for _, list := range [][]*indexedRule{byProduct, byCategory} {
		for _, ir := range list {
			if seen[ir.order] {
				continue
			}
			seen[ir.order] = true
			out = append(out, ir)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

func (ir *indexedRule) inDateRange(now time.Time) bool {
	if ir.from != nil && now.Before(*ir.from) {
		return false
	}
	if ir.to != nil && now.After(*ir.to) {
		return false
	}
	return true
}

func (ir *indexedRule) inSchedule(now time.Time) bool {
	w, ok := ir.rule.Schedule[now.Weekday()]
	if !ok || !w.Active {
		return false
	}
	tod := now.Hour()*60 + now.Minute()
	if w.End < w.Start {
		// window crosses midnight
		return tod >= w.Start || tod < w.End
	}
	return tod >= w.Start && tod < w.End
}

func apply(price decimal.Decimal, r models.DiscountRule) decimal.Decimal {
	var out decimal.Decimal
	switch r.DiscountType {
	case models.DiscountPercentage:
		out = price.Sub(price.Mul(r.Amount).Div(hundred)).Round(2)
	case models.DiscountFixedAmount:
		out = price.Sub(r.Amount)
	default:
		return price
	}
	return models.ClampZero(out)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, models.Validation("bad time of day %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
