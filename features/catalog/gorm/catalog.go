// Package gorm implements the business catalog on a relational database via
// GORM. The catalog holds the business profiles and product listings the
// orchestrator snapshots into new sessions. SQLite backs development and
// tests; Postgres backs production.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sokoflow/sokoflow/runtime/session"
)

type (
	// Business is the catalog row behind session.BusinessContext.
	Business struct {
		BusinessID      string `gorm:"primaryKey;column:business_id"`
		Name            string `gorm:"column:name"`
		Description     string `gorm:"column:description"`
		Website         string `gorm:"column:website"`
		InstagramPage   string `gorm:"column:ig_page"`
		FacebookPage    string `gorm:"column:facebook_page"`
		TwitterPage     string `gorm:"column:twitter_page"`
		TikTok          string `gorm:"column:tiktok"`
		BankName        string `gorm:"column:bank_name"`
		BankAccount     string `gorm:"column:bank_account_number"`
		BankAccountName string `gorm:"column:bank_account_name"`
		LogisticID      string `gorm:"column:logistic_id"`
	}

	// Product is a catalog listing for a business.
	Product struct {
		ID         uint   `gorm:"primaryKey"`
		BusinessID string `gorm:"column:business_id;index:idx_products_business_name,unique"`
		Name       string `gorm:"column:name;index:idx_products_business_name,unique"`
		Price      string `gorm:"column:price"`
		Available  bool   `gorm:"column:available"`
	}

	// Catalog implements the orchestrator's business lookup plus the product
	// queries the chat surface uses.
	Catalog struct {
		db *gorm.DB
	}
)

// ErrNotFound indicates no catalog row exists for the identifier.
var ErrNotFound = errors.New("catalog entry not found")

// Open connects to the catalog database and migrates the schema. Supported
// drivers are "sqlite" and "postgres".
func Open(driver, dsn string) (*Catalog, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver != "sqlite" {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
		dsn = "catalog.db"
	}
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "sqlite":
		db, err = gorm.Open(sqliteDriver.Open(dsn), &gorm.Config{})
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	return New(db)
}

// New wraps an existing GORM handle and migrates the schema.
func New(db *gorm.DB) (*Catalog, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	if err := db.AutoMigrate(&Business{}, &Product{}); err != nil {
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Business returns the session snapshot of a business profile. Implements the
// orchestrator's Catalog interface.
func (c *Catalog) Business(ctx context.Context, businessID string) (*session.BusinessContext, error) {
	if businessID == "" {
		return nil, errors.New("business id is required")
	}
	var row Business
	err := c.db.WithContext(ctx).First(&row, "business_id = ?", businessID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: business %q", ErrNotFound, businessID)
		}
		return nil, err
	}
	return &session.BusinessContext{
		BusinessID:      row.BusinessID,
		Name:            row.Name,
		Description:     row.Description,
		Website:         row.Website,
		InstagramPage:   row.InstagramPage,
		FacebookPage:    row.FacebookPage,
		TwitterPage:     row.TwitterPage,
		TikTok:          row.TikTok,
		BankName:        row.BankName,
		BankAccount:     row.BankAccount,
		BankAccountName: row.BankAccountName,
		LogisticID:      row.LogisticID,
	}, nil
}

// Product returns a single product listing.
func (c *Catalog) Product(ctx context.Context, businessID, name string) (*Product, error) {
	if businessID == "" || name == "" {
		return nil, errors.New("business id and product name are required")
	}
	var row Product
	err := c.db.WithContext(ctx).
		First(&row, "business_id = ? AND name = ?", businessID, name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %q", ErrNotFound, name)
		}
		return nil, err
	}
	return &row, nil
}

// Products lists the catalog entries for a business, ordered by name.
func (c *Catalog) Products(ctx context.Context, businessID string) ([]Product, error) {
	if businessID == "" {
		return nil, errors.New("business id is required")
	}
	var rows []Product
	err := c.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("name").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertBusiness creates or replaces a business profile.
func (c *Catalog) UpsertBusiness(ctx context.Context, b Business) error {
	if b.BusinessID == "" {
		return errors.New("business id is required")
	}
	return c.db.WithContext(ctx).Save(&b).Error
}

// UpsertProduct creates or updates a product listing.
func (c *Catalog) UpsertProduct(ctx context.Context, p Product) error {
	if p.BusinessID == "" || p.Name == "" {
		return errors.New("business id and product name are required")
	}
	return c.db.WithContext(ctx).
		Where("business_id = ? AND name = ?", p.BusinessID, p.Name).
		Assign(map[string]any{"price": p.Price, "available": p.Available}).
		FirstOrCreate(&p).Error
}
