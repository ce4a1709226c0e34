//go:build integration

package farm_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onnwee/farmrank/internal/farm"
	"github.com/onnwee/farmrank/internal/user"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("farmrank"),
		postgres.WithUsername("farmrank"),
		postgres.WithPassword("farmrank"),
		postgres.WithInitScripts(
			filepath.Join("..", "..", "migrations", "000001_create_users.up.sql"),
			filepath.Join("..", "..", "migrations", "000002_create_farms.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(ctr))
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	return db
}

func TestPostgresRepository_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	users := user.NewPostgresRepository(db, nil)
	farms := farm.NewPostgresRepository(db, nil)

	owner := &user.User{
		Email:       "owner@example.com",
		Coordinates: "52.0907,5.1214",
		Address:     "Utrecht",
	}
	require.NoError(t, users.Insert(ctx, owner))
	assert.NotEmpty(t, owner.ID)

	for i := 1; i <= 150; i++ {
		f := &farm.Farm{
			Name:        fmt.Sprintf("Farm %03d", i),
			Coordinates: "52.3676,4.9041",
			Address:     fmt.Sprintf("Street %d", i),
			Size:        float64(20 + i%80),
			Yield:       float64(20 + i%80),
			UserID:      owner.ID,
		}
		require.NoError(t, farms.Insert(ctx, f))
		assert.NotEmpty(t, f.ID)
	}

	t.Run("page by name ascending", func(t *testing.T) {
		page, err := farms.QueryPage(ctx, farm.PageQuery{Limit: 50, Offset: 100, Column: farm.ColumnName})
		require.NoError(t, err)
		require.Len(t, page, 50)
		assert.Equal(t, "Farm 101", page[0].Name)
		assert.Equal(t, "Farm 150", page[49].Name)
		assert.Equal(t, "owner@example.com", page[0].Owner)
	})

	t.Run("page by name descending", func(t *testing.T) {
		page, err := farms.QueryPage(ctx, farm.PageQuery{Limit: 2, Column: farm.ColumnName, Descending: true})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "Farm 150", page[0].Name)
		assert.Equal(t, "Farm 149", page[1].Name)
	})

	t.Run("yield band", func(t *testing.T) {
		avg, err := farms.AverageYield(ctx)
		require.NoError(t, err)
		assert.Greater(t, avg, 0.0)

		band := &farm.YieldBand{Center: avg, Band: farm.DefaultOutlierBand}
		page, err := farms.QueryPage(ctx, farm.PageQuery{Limit: 100, Column: farm.ColumnCreatedAt, Band: band})
		require.NoError(t, err)
		require.NotEmpty(t, page)
		for _, p := range page {
			assert.True(t, band.Contains(p.Yield), "yield %v outside band", p.Yield)
		}
	})

	t.Run("unknown owner", func(t *testing.T) {
		f := &farm.Farm{
			Name:        "Orphan",
			Coordinates: "0,0",
			Address:     "Nowhere",
			Size:        1,
			Yield:       1,
			UserID:      "00000000-0000-0000-0000-000000000000",
		}
		assert.ErrorIs(t, farms.Insert(ctx, f), farm.ErrOwnerNotFound)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := users.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("user by email", func(t *testing.T) {
		got, err := users.GetByEmail(ctx, "OWNER@example.com")
		require.NoError(t, err)
		assert.Equal(t, owner.ID, got.ID)

		_, err = users.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := &user.User{Email: "Owner@Example.com", Coordinates: "0,0", Address: "Elsewhere"}
		assert.ErrorIs(t, users.Insert(ctx, dup), user.ErrDuplicateEmail)
	})
}
