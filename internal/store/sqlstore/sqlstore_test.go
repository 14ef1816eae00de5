package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3", ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	_, ok, err := s.Load(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Ensure(ctx, "1"))
	got, ok, err := s.Load(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.Sections)

	doc := model.Document{Sections: []model.Section{
		{Title: "Kitchen", Items: []model.Item{{Text: "Buy milk", Completed: true}}},
	}}
	require.NoError(t, s.Save(ctx, "1", doc))
	got, _, err = s.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	require.NoError(t, s.Ensure(ctx, "1"))
	got, _, err = s.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, doc, got, "ensure must not reset an existing record")
}

func TestSQLiteSaveUnknownBoard(t *testing.T) {
	s := openMemory(t)
	err := s.Save(context.Background(), "nope", model.Empty())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrWriteRejected))
}

func TestSQLiteNullAndLegacySections(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	_, err := s.db.ExecContext(ctx, `INSERT INTO meetings (id, sections) VALUES ('null', NULL), ('old', '[{"title":"S","items":["Milk","Bread"]}]')`)
	require.NoError(t, err)

	got, ok, err := s.Load(ctx, "null")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got.Sections)

	got, _, err = s.Load(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []model.Item{{Text: "Milk"}, {Text: "Bread"}}, got.Sections[0].Items)
}

func TestSQLiteCorruptRecord(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	_, err := s.db.ExecContext(ctx, `INSERT INTO meetings (id, sections) VALUES ('bad', '{not json')`)
	require.NoError(t, err)

	_, ok, err := s.Load(ctx, "bad")
	assert.True(t, ok)
	assert.True(t, errors.Is(err, store.ErrCorruptData))
}

func TestBackendErrorsAreUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := New(sqlx.NewDb(db, "sqlmock"), nil)

	mock.ExpectQuery("SELECT sections FROM meetings").
		WithArgs("1").
		WillReturnError(errors.New("connection refused"))
	_, _, err = s.Load(context.Background(), "1")
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))

	mock.ExpectExec("UPDATE meetings SET sections").
		WithArgs("[]", "1").
		WillReturnError(errors.New("connection reset"))
	err = s.Save(context.Background(), "1", model.Empty())
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveZeroRowsIsRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := New(sqlx.NewDb(db, "sqlmock"), nil)

	mock.ExpectExec("UPDATE meetings SET sections").
		WithArgs(`[{"title":"A","items":[]}]`, "7").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.Save(context.Background(), "7", model.Document{Sections: []model.Section{{Title: "A"}}})
	assert.True(t, errors.Is(err, store.ErrWriteRejected))
	assert.NoError(t, mock.ExpectationsWereMet())
}
