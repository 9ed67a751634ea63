// Package repository holds the MySQL and Redis persistence for LearnTrack.
// Sentinel errors let the service and handler layers tell failure cases
// apart without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique
// key, such as a taken username or client id.
var ErrDuplicate = errors.New("duplicate")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isDuplicate(err):
		return ErrDuplicate
	}
	return err
}

// affected turns a zero row count into ErrNotFound.
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
