package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	assert.NoError(t, MapPostgresError(nil))
	assert.ErrorIs(t, MapPostgresError(pgx.ErrNoRows), models.ErrNotFound)
	assert.ErrorIs(t, MapPostgresError(fmt.Errorf("scan: %w", pgx.ErrNoRows)), models.ErrNotFound)

	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "23505"}), models.ErrConflict)
	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "23503"}), models.ErrNotFound)
	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "22P02", Message: "bad uuid"}), models.ErrValidation)

	other := &pgconn.PgError{Code: "42P01"}
	assert.Same(t, other, MapPostgresError(other))

	plain := errors.New("plain")
	assert.Equal(t, plain, MapPostgresError(plain))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
