package namespaces

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"nanocld/internal/store"
)

type fakeCounter struct {
	count int64
	err   error
}

func (f fakeCounter) CountByNamespace(ctx context.Context, namespace string) (int64, error) {
	return f.count, f.err
}

func TestDelObjByPKRejectsWhenCargoesExist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)

	m := New(nil, gw, fakeCounter{count: 2}, fakeCounter{count: 0})
	err = m.DelObjByPK(context.Background(), "default")
	require.Error(t, err)
	_ = mock
}

func TestDelObjByPKRejectsWhenVmsExist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)

	m := New(nil, gw, fakeCounter{count: 0}, fakeCounter{count: 1})
	err = m.DelObjByPK(context.Background(), "default")
	require.Error(t, err)
	_ = mock
}

func TestDelObjByPKDeletesWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM namespaces").WithArgs("default").WillReturnResult(sqlmock.NewResult(0, 1))

	m := New(nil, gw, fakeCounter{count: 0}, fakeCounter{count: 0})
	require.NoError(t, m.DelObjByPK(context.Background(), "default"))
}
