package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "playlist_items_pkey"}, ErrDuplicateKey},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrForeignKeyViolation},
		{"append-only trigger", &pgconn.PgError{Code: "P0001", Message: "sync_history is append-only"}, ErrAppendOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapError(tt.err, "op")
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), "op:")
		})
	}
}

func TestWrapError_NilAndPassthrough(t *testing.T) {
	assert.NoError(t, WrapError(nil, "op"))

	base := errors.New("connection reset")
	err := WrapError(base, "find playlist")
	assert.ErrorIs(t, err, base)
	assert.False(t, IsNotFound(err))
	assert.False(t, IsDuplicateKey(err))
}
