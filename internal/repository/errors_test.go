package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bob' for key 'uq_users_username'"}
	other := errors.New("boom")

	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("insert: %w", dup)), ErrDuplicate)
	assert.Equal(t, other, translate(other))
}
