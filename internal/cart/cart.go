// Package cart holds lines that were added on this terminal but not yet sent
// to the shared ledger.
package cart

import (
	"sort"
	"time"

	"TableSide/internal/models"
	"TableSide/internal/pricing"

	"github.com/shopspring/decimal"
)

// Selection maps a modifier group name to the chosen option names.
type Selection map[string][]string

type Item struct {
	Product   *models.Product
	Price     pricing.Price
	Selection Selection
	Note      string
	Staff     string
	Quantity  int
}

type Buffer struct {
	lines []models.CartLine
	dirty bool
}

func New() *Buffer {
	return &Buffer{}
}

// Add freezes the resolved price, the chosen modifiers and the note onto a new line.
func (b *Buffer) Add(item Item, now time.Time) error {
	if item.Product == nil {
		return models.Validation("product is required")
	}
	if !item.Product.Active {
		return models.Validation("product %d is not available", item.Product.ID)
	}
	qty := item.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return models.Validation("quantity must be positive")
	}

	mods, err := resolveModifiers(item.Product, item.Selection)
	if err != nil {
		return err
	}

	id := item.Product.ID
	b.lines = append(b.lines, models.CartLine{
		ProductID:     &id,
		Name:          item.Product.Name,
		UnitPrice:     item.Price.Unit,
		Quantity:      qty,
		Note:          item.Note,
		Modifiers:     mods,
		DiscountLabel: item.Price.Label,
		StaffName:     item.Staff,
		AddedAt:       now,
	})
	b.dirty = true
	return nil
}

// AddDiscount appends a synthetic discount line with no product reference.
func (b *Buffer) AddDiscount(name string, amount decimal.Decimal, staff string, now time.Time) error {
	if name == "" {
		return models.Validation("discount name is required")
	}
	if !amount.IsPositive() {
		return models.Validation("discount amount must be positive")
	}
	b.lines = append(b.lines, models.CartLine{
		Name:      name,
		UnitPrice: amount.Neg(),
		Quantity:  1,
		StaffName: staff,
		AddedAt:   now,
	})
	b.dirty = true
	return nil
}

func (b *Buffer) ToggleSelect(index int) error {
	if index < 0 || index >= len(b.lines) {
		return models.Validation("no cart line %d", index)
	}
	b.lines[index].Selected = !b.lines[index].Selected
	return nil
}

func (b *Buffer) SetNote(index int, text string) error {
	if index < 0 || index >= len(b.lines) {
		return models.Validation("no cart line %d", index)
	}
	b.lines[index].Note = text
	return nil
}

// RemoveSelected drops every selected line and returns how many went away.
func (b *Buffer) RemoveSelected() int {
	kept := b.lines[:0]
	removed := 0
	for _, l := range b.lines {
		if l.Selected {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	b.lines = kept
	b.dirty = len(b.lines) > 0
	return removed
}

// Remove drops the lines at the given indexes.
func (b *Buffer) Remove(indexes []int) error {
	drop := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(b.lines) {
			return models.Validation("no cart line %d", i)
		}
		drop[i] = true
	}
	kept := make([]models.CartLine, 0, len(b.lines))
	for i, l := range b.lines {
		if !drop[i] {
			kept = append(kept, l)
		}
	}
	b.lines = kept
	b.dirty = len(b.lines) > 0
	return nil
}

func (b *Buffer) Lines() []models.CartLine {
	out := make([]models.CartLine, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *Buffer) Len() int {
	return len(b.lines)
}

func (b *Buffer) Total() decimal.Decimal {
	sum := decimal.Zero
	for i := range b.lines {
		sum = sum.Add(b.lines[i].Total())
	}
	return sum
}

// Dirty reports whether there is anything left to send.
func (b *Buffer) Dirty() bool {
	return b.dirty
}

// Take drains the buffer for commit.
func (b *Buffer) Take() []models.CartLine {
	out := b.lines
	b.lines = nil
	b.dirty = false
	return out
}

// Restore puts lines back after a failed commit.
func (b *Buffer) Restore(lines []models.CartLine) {
	b.lines = append(lines, b.lines...)
	b.dirty = len(b.lines) > 0
}

func resolveModifiers(p *models.Product, sel Selection) (models.Modifiers, error) {
	groups := make(map[string]bool, len(p.ModifierGroups))
	var mods models.Modifiers
	for _, g := range p.ModifierGroups {
		groups[g.Name] = true
		chosen := sel[g.Name]
		if len(chosen) < g.Min {
			return nil, models.Validation("%s: choose at least %d", g.Name, g.Min)
		}
		if g.Max > 0 && len(chosen) > g.Max {
			return nil, models.Validation("%s: choose at most %d", g.Name, g.Max)
		}

		want := make(map[string]bool, len(chosen))
		for _, c := range chosen {
			want[c] = true
		}
		var picked []int
		for i, opt := range g.Options {
			if want[opt.Name] {
				picked = append(picked, i)
				delete(want, opt.Name)
			}
		}
		if len(want) > 0 {
			return nil, models.Validation("%s: unknown option", g.Name)
		}
		sort.Ints(picked)
		for _, i := range picked {
			mods = append(mods, g.Options[i])
		}
	}
	for name := range sel {
		if !groups[name] {
			return nil, models.Validation("unknown modifier group %q", name)
		}
	}
	return mods, nil
}
