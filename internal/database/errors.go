package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassDeadlock:
		return "deadlock"
	case ErrorClassSerialization:
		return "serialization"
	default:
		return "permanent"
	}
}

// ClassifyError inspects the SQLSTATE of a Postgres error. Anything that is
// not a lock or serialization failure is permanent.
func ClassifyError(err error) ErrorClass {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		}
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	return ClassifyError(err) != ErrorClassPermanent
}

// Error kinds. Every error returned by the store wraps exactly one of these
// when it is caused by the caller rather than by the database.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	ErrProductNotFound   = fmt.Errorf("product %w", ErrNotFound)
	ErrCategoryNotFound  = fmt.Errorf("category %w", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", ErrNotFound)
	ErrOrderItemNotFound = fmt.Errorf("order item %w", ErrNotFound)
	ErrCartItemNotFound  = fmt.Errorf("cart item %w", ErrNotFound)

	ErrInvalidQuantity         = InvalidArgumentf("quantity must be at least 1")
	ErrProductUnavailable      = InvalidArgumentf("product is not available")
	ErrOrderNotPending         = InvalidArgumentf("order is no longer pending")
	ErrInvalidStatusTransition = InvalidArgumentf("invalid order status transition")
	ErrCartEmpty               = InvalidArgumentf("cart is empty")
)

// InvalidArgumentf builds a validation error that matches ErrInvalidArgument.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsUniqueViolation reports whether err is a unique constraint failure on the
// named constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsForeignKeyViolation reports whether err is a foreign key failure.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
