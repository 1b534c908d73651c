// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/pkg/database"
)

// NewDB opens a migrated in-memory sqlite database private to the test.
// A single connection keeps every query on the same in-memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     ":memory:",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SeedUser inserts a standard user and returns its ID.
func SeedUser(t *testing.T, db *gorm.DB, username string) string {
	t.Helper()

	id := uuid.NewString()
	model := &domain.UserModel{
		ID:           id,
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "x",
		Role:         string(domain.RoleStandard),
	}
	require.NoError(t, db.WithContext(context.Background()).Create(model).Error)
	return id
}

// SeedListing inserts an on-sale listing with the given ID and owner.
func SeedListing(t *testing.T, db *gorm.DB, id int64, ownerID, city, description string, price int64) {
	t.Helper()

	model := &domain.ListingModel{
		ID:          id,
		Title:       fmt.Sprintf("listing %d", id),
		Description: description,
		City:        city,
		Price:       decimal.NewFromInt(price),
		OwnerID:     ownerID,
		State:       string(domain.ListingStateOnSale),
	}
	require.NoError(t, db.WithContext(context.Background()).Create(model).Error)
}
