// Package gormstore implements the engine's store contracts on GORM,
// against PostgreSQL in production and the pure-Go sqlite driver in
// tests and demos.
package gormstore

import (
	"errors"

	"github.com/EcoCampusLab/gamify/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	tripStatusCompleted = "completed"

	errorOperationStore      = "store"
	errorSubjectAccount      = "account"
	errorSubjectEntry        = "entry"
	errorSubjectReward       = "reward"
	errorSubjectChallenge    = "challenge"
	errorSubjectProgress     = "progress"
	errorSubjectBadge        = "badge"
	errorSubjectOwnedBadge   = "owned_badge"
	errorSubjectTrip         = "trip"
	errorCodeLookup          = "lookup"
	errorCodeInsert          = "insert"
	errorCodeUpdate          = "update"
	errorCodeDelete          = "delete"
	errorCodeList            = "list"
	errorCodeCount           = "count"
	errorCodeInvalid         = "invalid"
	errorCodeSum             = "sum"
	errorCodeBalanceConflict = "balance_conflict"
)

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

type sqlSum struct {
	Total float64
}

type sqlCount struct {
	Total int64
}
