package dao

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInsufficientPoints = errors.New("You do not have enough points")
)

// isUniqueViolation reports whether err is a unique constraint failure on
// constraint, for both postgres and sqlite.
func isUniqueViolation(err error, constraint, column string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation &&
			(constraint == "" || strings.Contains(pgErr.Message, constraint) || pgErr.ConstraintName == constraint)
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") &&
		(column == "" || strings.Contains(msg, column))
}

// forUpdate adds a row lock on dialects that support it.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	return tx
}

func paginate(page, limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		if page <= 0 {
			page = 1
		}

		return db.Offset((page - 1) * limit).Limit(limit)
	}
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

// addPoints changes a balance by delta. When floor is set the update only
// happens if the balance stays non-negative.
func addPoints(tx *gorm.DB, userID uint, delta int, floor bool) error {
	q := tx.Model(&User{}).Where("id = ?", userID)
	if floor {
		q = q.Where("points + ? >= 0", delta)
	}

	result := q.Update("points", gorm.Expr("points + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if floor {
			return ErrInsufficientPoints
		}
		return ErrUserNotFound
	}

	return nil
}
