package ledger

import (
	"time"

	"TableSide/internal/models"
)

// FilterSession keeps the rows that belong to the session started at start.
// Cancelled and wasted rows never show. Active rows and rows not yet archived
// under a settlement always show. Otherwise paid rows show if paid after the
// start, gifts if created after it, both with tol of slack for clock skew.
func FilterSession(rows []*models.OrderLine, start *time.Time, tol time.Duration) []*models.OrderLine {
	out := make([]*models.OrderLine, 0, len(rows))
	for _, r := range rows {
		switch {
		case r.Status == models.StatusWaste || r.Status == models.StatusCancel:
		case r.Status.IsActive():
			out = append(out, r)
		case start == nil:
		case r.PaymentRef == "":
			out = append(out, r)
		case r.Status == models.StatusPaid:
			if r.PaidAt != nil && !r.PaidAt.Before(start.Add(-tol)) {
				out = append(out, r)
			}
		case r.Status == models.StatusGift:
			if !r.CreatedAt.Before(start.Add(-tol)) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Explode turns each row of quantity N into N single-unit entries.
func Explode(rows []*models.OrderLine) []models.Unit {
	var units []models.Unit
	for _, r := range rows {
		for i := 0; i < r.Quantity; i++ {
			line := *r
			line.Quantity = 1
			units = append(units, models.Unit{LedgerID: r.ID, Index: i, Line: line})
		}
	}
	return units
}
