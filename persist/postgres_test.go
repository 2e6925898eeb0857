package persist

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresMigrate(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS doc_updates").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS doc_updates_doc_seq").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppend(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO doc_updates (id, doc_id, peer_id, payload) VALUES ($1, $2, $3, $4)`)).
		WithArgs(sqlmock.AnyArg(), "doc-1", "peer-a", []byte{1, 2, 3}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, p.Append(context.Background(), "doc-1", "peer-a", []byte{1, 2, 3}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendErrors(t *testing.T) {
	p, mock := newMockPostgres(t)

	assert.ErrorIs(t, p.Append(context.Background(), "", "peer-a", []byte{1}), ErrEmptyDocID)

	boom := errors.New("boom")
	mock.ExpectExec("INSERT INTO doc_updates").WillReturnError(boom)
	err := p.Append(context.Background(), "doc-1", "peer-a", []byte{1})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoad(t *testing.T) {
	p, mock := newMockPostgres(t)
	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte{1}).
		AddRow([]byte{2, 2})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT payload FROM doc_updates WHERE doc_id = $1 ORDER BY seq`)).
		WithArgs("doc-1").
		WillReturnRows(rows)

	updates, err := p.Load(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1}, {2, 2}}, updates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoadEmpty(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT payload FROM doc_updates").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	updates, err := p.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestPostgresLoadRowError(t *testing.T) {
	p, mock := newMockPostgres(t)
	boom := errors.New("row failed")
	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte{1}).
		RowError(0, boom)
	mock.ExpectQuery("SELECT payload FROM doc_updates").WillReturnRows(rows)

	_, err := p.Load(context.Background(), "doc-1")
	assert.ErrorIs(t, err, boom)
}
