package payment

import (
	"context"
	"testing"
	"time"

	"TableSide/internal/database"
	"TableSide/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertList(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	r := NewRepository(db)

	now := time.Now()
	p := &models.Payment{BusinessID: "b1", TableID: "T1", Amount: decimal.RequireFromString("12.30"),
		Method: models.MethodCard, StaffName: "ana", CreatedAt: now}
	require.NoError(t, r.Insert(ctx, p))
	assert.NotEmpty(t, p.ID)

	old := &models.Payment{BusinessID: "b1", TableID: "T1", Amount: decimal.NewFromInt(1),
		Method: models.MethodCash, CreatedAt: now.Add(-2 * time.Hour)}
	require.NoError(t, r.Insert(ctx, old))

	list, err := r.ListByTable(ctx, "b1", "T1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
	assert.True(t, p.Amount.Equal(list[0].Amount))
}
