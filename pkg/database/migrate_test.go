package database

import (
	"context"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/pkg/logger"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_product.up.sql":   {Data: []byte("CREATE TABLE product (product_id TEXT PRIMARY KEY)")},
		"001_product.down.sql": {Data: []byte("DROP TABLE product")},
		"002_category.up.sql":  {Data: []byte("CREATE TABLE product_category (product_category_id TEXT PRIMARY KEY)")},
		"README.md":            {Data: []byte("not a migration")},
	}
}

func TestPendingMigrations_OnlyUpFilesSorted(t *testing.T) {
	names, err := pendingMigrations(testMigrations())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_product.up.sql", "002_category.up.sql"}, names)
}

func TestRunMigrations_AppliesAndSkips(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_product.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("002_category.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE product_category").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_category.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = RunMigrations(context.Background(), mock, testMigrations(), logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorRollsBack(t *testing.T) {
	mock, err := NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_product.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE product").
		WillReturnError(errStr("syntax error at or near \"TABLE\""))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, testMigrations(), logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_product.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
