package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBackend(t *testing.T) (*PostgresSettingsBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSettingsBackend(db, "bot"), mock
}

func TestReadMissingDocument(t *testing.T) {
	b, mock := newMockBackend(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM settings_documents WHERE name = $1`)).
		WithArgs("bot").
		WillReturnError(sql.ErrNoRows)

	data, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadDocument(t *testing.T) {
	b, mock := newMockBackend(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM settings_documents WHERE name = $1`)).
		WithArgs("bot").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(`{"steps_goal":9000}`))

	data, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"steps_goal":9000}`, string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteUpserts(t *testing.T) {
	b, mock := newMockBackend(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO settings_documents`)).
		WithArgs("bot", `{"steps_goal":8000}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, b.Write(context.Background(), []byte(`{"steps_goal":8000}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuarantineReturnsRecoveryReference(t *testing.T) {
	b, mock := newMockBackend(t)
	at := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO settings_recovery`)).
		WithArgs("bot", `{broken`, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	ref, err := b.Quarantine(context.Background(), []byte(`{broken`), at)
	require.NoError(t, err)
	assert.Equal(t, "settings_recovery/7", ref)
	assert.NoError(t, mock.ExpectationsWereMet())
}
