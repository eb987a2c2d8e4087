package models

import "time"

// LinePatch carries the fields an action may change on a ledger row.
type LinePatch struct {
	Status     Status
	Note       *string
	ActionedAt *time.Time
	PaidAt     *time.Time
	PaidByName string
	PaymentRef string
	Meta       ActionMeta
}

// Apply copies the patch onto l.
func (p LinePatch) Apply(l *OrderLine) {
	if p.Status != "" {
		l.Status = p.Status
	}
	if p.Note != nil {
		l.Note = *p.Note
	}
	if p.ActionedAt != nil {
		l.ActionedAt = p.ActionedAt
	}
	if p.PaidAt != nil {
		l.PaidAt = p.PaidAt
	}
	if p.PaidByName != "" {
		l.PaidByName = p.PaidByName
	}
	if p.PaymentRef != "" {
		l.PaymentRef = p.PaymentRef
	}
	if p.Meta != (ActionMeta{}) {
		l.Meta = p.Meta
	}
}
