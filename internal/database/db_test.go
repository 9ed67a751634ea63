package database

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learntrack/learntrack/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.Database{DBUser: "lt", DBPass: "p@ss", DBHost: "db", DBPort: "3307", DBName: "learntrack"})

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "lt", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "db:3307", parsed.Addr)
	assert.Equal(t, "learntrack", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
	assert.True(t, parsed.ClientFoundRows)
}
