package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReceiptLine struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
	Status   Status          `json:"status"`
	Label    string          `json:"label,omitempty"`
}

// Receipt is the printable summary of a table session.
type Receipt struct {
	TableID   string          `json:"table_id"`
	Terminal  string          `json:"terminal"`
	Staff     string          `json:"staff"`
	OpenedAt  *time.Time      `json:"opened_at,omitempty"`
	Lines     []ReceiptLine   `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}
