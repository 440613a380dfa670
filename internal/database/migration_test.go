package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestMigrator_ApplySkipsAlreadyAppliedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	m, err := NewMigrator(db, DriverMySQL)
	require.NoError(t, err)

	mig := Migration{
		Name: "0001_create_notification_history",
		SQL:  map[Driver]string{DriverMySQL: "CREATE TABLE notification_history (id INT)"},
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM schema_migrations WHERE name = ?").
		WithArgs(mig.Name).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, m.Apply(mig))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_ApplyRunsAndRecordsNewMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	m, err := NewMigrator(db, DriverMySQL)
	require.NoError(t, err)

	mig := Migration{
		Name: "0001_create_notification_history",
		SQL:  map[Driver]string{DriverMySQL: "CREATE TABLE notification_history (id INT)"},
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM schema_migrations WHERE name = ?").
		WithArgs(mig.Name).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE notification_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(mig.Name).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Apply(mig))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_ApplyRollsBackOnExecFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	m, err := NewMigrator(db, DriverMySQL)
	require.NoError(t, err)

	mig := Migration{
		Name: "0001_create_notification_history",
		SQL:  map[Driver]string{DriverMySQL: "CREATE TABLE notification_history (id INT)"},
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM schema_migrations WHERE name = ?").
		WithArgs(mig.Name).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE notification_history").WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	require.Error(t, m.Apply(mig))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_ApplyErrorsOnDriverMissingFromSQLMap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	m, err := NewMigrator(db, DriverMySQL)
	require.NoError(t, err)

	mig := Migration{
		Name: "sqlite_only_migration",
		SQL:  map[Driver]string{DriverSQLite: "CREATE TABLE x (id INTEGER)"},
	}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM schema_migrations WHERE name = ?").
		WithArgs(mig.Name).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	require.Error(t, m.Apply(mig))
}
