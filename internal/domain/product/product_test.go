package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShirt() *Product {
	return &Product{
		ID:       "p1",
		SKU:      "TEE-001",
		Name:     "Plain Tee",
		Price:    decimal.RequireFromString("20.00"),
		Currency: "USD",
		Stock:    10,
		Status:   StatusActive,
		Variants: []Variant{
			{
				Name: "Size",
				Options: []VariantOption{
					{ID: "opt-s", Name: "Small", PriceAdjustment: decimal.Zero, SKUSuffix: "-S"},
					{ID: "opt-xl", Name: "XL", PriceAdjustment: decimal.RequireFromString("2.50"), SKUSuffix: "-XL"},
				},
			},
		},
	}
}

func TestResolveVariant_NoSelection(t *testing.T) {
	p := newShirt()

	sel, err := p.ResolveVariant("")
	require.NoError(t, err)
	assert.Nil(t, sel)
	assert.True(t, p.UnitPrice(sel).Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, "TEE-001", p.EffectiveSKU(sel))
}

func TestResolveVariant_AdjustsPriceAndSKU(t *testing.T) {
	p := newShirt()

	sel, err := p.ResolveVariant("opt-xl")
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, "Size", sel.VariantName)
	assert.True(t, p.UnitPrice(sel).Equal(decimal.RequireFromString("22.50")))
	assert.Equal(t, "TEE-001-XL", p.EffectiveSKU(sel))
}

func TestResolveVariant_UnknownOption(t *testing.T) {
	p := newShirt()

	_, err := p.ResolveVariant("opt-nope")
	require.ErrorIs(t, err, ErrVariantNotFound)
}

func TestAvailable(t *testing.T) {
	p := newShirt()
	assert.True(t, p.Available())

	p.Status = StatusArchived
	assert.False(t, p.Available())

	p.Status = StatusDraft
	assert.False(t, p.Available())
}
