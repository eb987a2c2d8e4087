package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"TableSide/internal/database"
	"TableSide/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *Repository {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, time.UTC)
}

func TestProductsWithModifierGroups(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	require.NoError(t, r.UpsertCategory(ctx, &models.Category{ID: 1, Name: "Drinks"}))
	require.NoError(t, r.UpsertCategory(ctx, &models.Category{ID: 1, Name: "Bar"}))

	p := &models.Product{ID: 10, CategoryID: 1, Name: "Gin Tonic", Price: decimal.RequireFromString("9.50"), Active: true,
		ModifierGroups: []models.ModifierGroup{{
			Name: "Gin", Min: 1, Max: 1,
			Options: models.Modifiers{{Name: "House"}, {Name: "Premium", Price: decimal.NewFromInt(3)}},
		}}}
	require.NoError(t, r.UpsertProduct(ctx, p))
	require.NoError(t, r.UpsertProduct(ctx, &models.Product{ID: 11, CategoryID: 1, Name: "Water", Price: decimal.NewFromInt(2), Active: true}))
	// re-upsert must not duplicate groups
	require.NoError(t, r.UpsertProduct(ctx, p))

	cats, err := r.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Bar", cats[0].Name)

	products, err := r.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Len(t, products[0].ModifierGroups, 1)
	g := products[0].ModifierGroups[0]
	assert.Equal(t, "Gin", g.Name)
	assert.Equal(t, 1, g.Min)
	require.Len(t, g.Options, 2)
	assert.Equal(t, "3", g.Options[1].Price.String())
	assert.Empty(t, products[1].ModifierGroups)
}

func TestRulesRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	timed := &models.DiscountRule{Name: "March", Kind: models.RuleTimed, TargetType: models.TargetProduct,
		TargetIDs: []int64{10}, DiscountType: models.DiscountPercentage, Amount: decimal.NewFromInt(20),
		Active: true, ValidFrom: &from, ValidTo: &to}
	happy := &models.DiscountRule{Kind: models.RuleHappyHour, TargetType: models.TargetCategory,
		TargetIDs: []int64{1}, DiscountType: models.DiscountFixedAmount, Amount: decimal.RequireFromString("1.5"),
		Active: true, Schedule: map[time.Weekday]models.DayWindow{
			time.Friday: {Active: true, Start: 18 * 60, End: 20*60 + 30},
		}}
	require.NoError(t, r.InsertRule(ctx, timed))
	require.NoError(t, r.InsertRule(ctx, happy))

	rules, err := r.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "March", rules[0].Name)
	require.NotNil(t, rules[0].ValidFrom)
	assert.True(t, from.Equal(*rules[0].ValidFrom))
	assert.True(t, to.Equal(*rules[0].ValidTo))
	assert.Equal(t, []int64{10}, rules[0].TargetIDs)

	assert.Equal(t, models.RuleHappyHour, rules[1].Kind)
	assert.Nil(t, rules[1].ValidFrom)
	assert.Equal(t, models.DayWindow{Active: true, Start: 1080, End: 1230}, rules[1].Schedule[time.Friday])
	assert.True(t, decimal.RequireFromString("1.5").Equal(rules[1].Amount))
}

func TestParseDateFormats(t *testing.T) {
	r := &Repository{loc: time.UTC}
	for _, s := range []string{"2024-03-05", "03/05/2024", "2024-03-05 00:00:00"} {
		got, err := r.parseDate(nullString(s))
		require.NoError(t, err, s)
		assert.True(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC).Equal(*got), s)
	}
	got, err := r.parseDate(nullString(""))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
