package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TableSession struct {
	BusinessID   string          `db:"business_id" json:"business_id"`
	TableID      string          `db:"table_id" json:"table_id"`
	IsOccupied   bool            `db:"is_occupied" json:"is_occupied"`
	OpenedAt     *time.Time      `db:"opened_at" json:"opened_at"`
	LastOrderAt  *time.Time      `db:"last_order_at" json:"last_order_at"`
	CurrentTotal decimal.Decimal `db:"current_total" json:"current_total"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Active reports whether an occupancy episode is running.
func (s *TableSession) Active() bool {
	return s.OpenedAt != nil
}

func (s *TableSession) Reset() {
	s.IsOccupied = false
	s.OpenedAt = nil
	s.LastOrderAt = nil
	s.CurrentTotal = decimal.Zero
}

type Payment struct {
	ID         string          `db:"id" json:"id"`
	BusinessID string          `db:"business_id" json:"business_id"`
	TableID    string          `db:"table_id" json:"table_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     string          `db:"method" json:"method"`
	StaffName  string          `db:"staff_name" json:"staff_name"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

const (
	MethodCash = "cash"
	MethodCard = "card"
)
