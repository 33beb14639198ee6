package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Serialization failure / deadlock (40001, 40P01): the allocation
	// coordinator treats these as retryable concurrency conflicts.
	case "40001", "40P01":
		return errors.ConcurrentConflict("")

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "qty_available_non_negative"):
		// The conditional decrement should make this unreachable; the CHECK
		// is the storage-level backstop against lost updates.
		return errors.Conflict("batch quantity would become negative")

	case strings.Contains(constraint, "qty_positive"):
		return errors.Validation(map[string]string{
			"qty": "must be a positive integer",
		})

	case strings.Contains(constraint, "movement_type_valid"):
		return errors.Validation(map[string]string{
			"movement_type": "must be one of: DISPATCH, TRANSFER, DAMAGE, RECOVERY, RETURN",
		})

	case strings.Contains(constraint, "direction_valid"):
		return errors.Validation(map[string]string{
			"direction": "must be IN or OUT",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "order_ref"):
		return "a dispatch with this order reference already exists"
	case strings.Contains(constraint, "awb"):
		return "a dispatch with this AWB number already exists"
	default:
		return "a record with these values already exists"
	}
}
