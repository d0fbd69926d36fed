package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	return c
}

func seedBusiness(t *testing.T, c *Catalog) {
	t.Helper()
	require.NoError(t, c.UpsertBusiness(context.Background(), Business{
		BusinessID:      "biz-1",
		Name:            "Soko Traders",
		Description:     "Clothing and accessories",
		InstagramPage:   "@sokotraders",
		BankName:        "Acme Bank",
		BankAccount:     "0123456789",
		BankAccountName: "Soko Traders Ltd",
		LogisticID:      "log-9",
	}))
}

func TestBusinessSnapshot(t *testing.T) {
	c := testCatalog(t)
	seedBusiness(t, c)

	bc, err := c.Business(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Soko Traders", bc.Name)
	assert.Equal(t, "Acme Bank", bc.BankName)
	assert.Equal(t, "0123456789", bc.BankAccount)
	assert.Equal(t, "log-9", bc.LogisticID)
}

func TestBusinessNotFound(t *testing.T) {
	c := testCatalog(t)
	_, err := c.Business(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Business(context.Background(), "")
	require.Error(t, err)
}

func TestUpsertBusinessReplaces(t *testing.T) {
	c := testCatalog(t)
	seedBusiness(t, c)
	require.NoError(t, c.UpsertBusiness(context.Background(), Business{
		BusinessID: "biz-1",
		Name:       "Soko Traders",
		LogisticID: "log-2",
	}))

	bc, err := c.Business(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "log-2", bc.LogisticID)
}

func TestProductLifecycle(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.UpsertProduct(ctx, Product{BusinessID: "biz-1", Name: "shirt", Price: "25", Available: true}))
	require.NoError(t, c.UpsertProduct(ctx, Product{BusinessID: "biz-1", Name: "cap", Price: "10", Available: true}))

	p, err := c.Product(ctx, "biz-1", "shirt")
	require.NoError(t, err)
	assert.Equal(t, "25", p.Price)
	assert.True(t, p.Available)

	// Upserting an existing listing updates price and availability in place.
	require.NoError(t, c.UpsertProduct(ctx, Product{BusinessID: "biz-1", Name: "shirt", Price: "30", Available: false}))
	p, err = c.Product(ctx, "biz-1", "shirt")
	require.NoError(t, err)
	assert.Equal(t, "30", p.Price)
	assert.False(t, p.Available)

	rows, err := c.Products(ctx, "biz-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "cap", rows[0].Name, "listings are ordered by name")
	assert.Equal(t, "shirt", rows[1].Name)
}

func TestProductNotFound(t *testing.T) {
	c := testCatalog(t)
	_, err := c.Product(context.Background(), "biz-1", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProductsScopedToBusiness(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.UpsertProduct(ctx, Product{BusinessID: "biz-1", Name: "shirt", Price: "25"}))
	require.NoError(t, c.UpsertProduct(ctx, Product{BusinessID: "biz-2", Name: "shoes", Price: "60"}))

	rows, err := c.Products(ctx, "biz-2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "shoes", rows[0].Name)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open("postgres", "")
	require.Error(t, err)
	_, err = Open("mysql", "dsn")
	require.Error(t, err)
}
