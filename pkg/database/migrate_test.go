package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func migrationFS() fstest.MapFS {
	return fstest.MapFS{
		"000002_usages.up.sql":   {Data: []byte("CREATE TABLE promotion_usages (id UUID PRIMARY KEY)")},
		"000001_init.up.sql":     {Data: []byte("CREATE TABLE promotions (id UUID PRIMARY KEY)")},
		"000001_init.down.sql":   {Data: []byte("DROP TABLE promotions")},
		"000002_usages.down.sql": {Data: []byte("DROP TABLE promotion_usages")},
	}
}

const existsSQL = "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)"

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	for _, m := range []struct{ version, body string }{
		{"000001_init.up.sql", "CREATE TABLE promotions"},
		{"000002_usages.up.sql", "CREATE TABLE promotion_usages"},
	} {
		mock.ExpectQuery(regexp.QuoteMeta(existsSQL)).
			WithArgs(m.version).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(m.body)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1)")).
			WithArgs(m.version).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
	}

	err = RunMigrations(context.Background(), mock, migrationFS(), discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(existsSQL)).
		WithArgs("000001_init.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(existsSQL)).
		WithArgs("000002_usages.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err = RunMigrations(context.Background(), mock, migrationFS(), discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SQLErrorRollsBackWithoutRetry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(existsSQL)).
		WithArgs("000001_init.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE promotions").WillReturnError(errors.New("syntax error at or near \"UUID\""))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, migrationFS(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 000001_init.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RetriesConnectionFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	for _, version := range []string{"000001_init.up.sql", "000002_usages.up.sql"} {
		mock.ExpectQuery(regexp.QuoteMeta(existsSQL)).
			WithArgs(version).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	}

	err = RunMigrations(context.Background(), mock, migrationFS(), discardLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpMigrations_SortsAndFilters(t *testing.T) {
	fsys := migrationFS()
	fsys["README.md"] = &fstest.MapFile{Data: []byte("notes")}
	fsys["archive/000000_old.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 1")}

	got, err := upMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init.up.sql", "000002_usages.up.sql"}, got)
}
