package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"wrapped serialization", fmt.Errorf("commit transaction: %w", &pq.Error{Code: "40001"}), ErrorClassSerialization},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"check violation", &pq.Error{Code: "23514"}, ErrorClassPermanent},
		{"domain error", ErrProductNotFound, ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.Equal(t, tt.want, got, "got %s", got)
			assert.Equal(t, tt.want != ErrorClassPermanent, IsRetryable(tt.err))
		})
	}
}

func TestErrorKinds(t *testing.T) {
	for _, err := range []error{ErrProductNotFound, ErrCategoryNotFound, ErrUserNotFound, ErrOrderNotFound, ErrOrderItemNotFound} {
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrInvalidArgument)
	}
	for _, err := range []error{ErrInvalidQuantity, ErrProductUnavailable, ErrOrderNotPending, ErrInvalidStatusTransition} {
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.NotErrorIs(t, err, ErrNotFound)
	}

	assert.Equal(t, "product not found", ErrProductNotFound.Error())

	err := InvalidArgumentf("price must be greater than 0, got %s", "-1")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, "invalid argument: price must be greater than 0, got -1", err.Error())
}

func TestConstraintHelpers(t *testing.T) {
	unique := &pq.Error{Code: "23505", Constraint: "categories_name_key"}
	assert.True(t, IsUniqueViolation(unique, ""))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", unique), "categories_name_key"))
	assert.False(t, IsUniqueViolation(unique, "orders_order_number_key"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))

	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsForeignKeyViolation(unique))
}
