package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namespaceRow struct {
	Name      string
	CreatedAt time.Time
}

type fakeNamespaceTable struct{}

func (fakeNamespaceTable) TableName() string        { return "namespaces" }
func (fakeNamespaceTable) PrimaryKeyColumn() string { return "name" }
func (fakeNamespaceTable) Columns() map[string]Column {
	return map[string]Column{
		"name":       {SQLPath: "name", Kind: KindText},
		"created_at": {SQLPath: "created_at", Kind: KindTime},
	}
}

func scanNamespace(row RowScanner) (namespaceRow, error) {
	var n namespaceRow
	err := row.Scan(&n.Name, &n.CreatedAt)
	return n, err
}

func newNamespaceRepo(t *testing.T) (*Repository[namespaceRow], sqlmock.Sqlmock) {
	gw, mock := newMockGateway(t)
	return NewRepository[namespaceRow](gw, fakeNamespaceTable{}, scanNamespace), mock
}

func TestReadByPKReturnsRow(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM namespaces WHERE name = \\$1").
		WithArgs("global").
		WillReturnRows(sqlmock.NewRows([]string{"name", "created_at"}).AddRow("global", now))

	ns, err := repo.ReadByPK(context.Background(), "global")
	require.NoError(t, err)
	assert.Equal(t, "global", ns.Name)
}

func TestReadByPKNotFound(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	mock.ExpectQuery("SELECT \\* FROM namespaces WHERE name = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name", "created_at"}))

	_, err := repo.ReadByPK(context.Background(), "missing")
	require.Error(t, err)
}

func TestReadByRendersFilterAndTail(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	now := time.Now()
	mock.ExpectQuery("SELECT \\* FROM namespaces WHERE name = \\$1 ORDER BY created_at DESC LIMIT 100 OFFSET 0").
		WithArgs("global").
		WillReturnRows(sqlmock.NewRows([]string{"name", "created_at"}).AddRow("global", now))

	f := NewFilter().Where("name", Eq, "global")
	rows, err := repo.ReadBy(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "global", rows[0].Name)
}

func TestCountByReturnsCount(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM namespaces").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountBy(context.Background(), NewFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCreateExecutesGivenInsert(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	mock.ExpectExec("INSERT INTO namespaces").
		WithArgs("global", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), "INSERT INTO namespaces (name, created_at) VALUES ($1, $2)", "global", time.Now())
	require.NoError(t, err)
}

func TestUpdatePKAffectsRow(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	mock.ExpectExec("UPDATE namespaces SET created_at = \\$1 WHERE name = \\$2").
		WithArgs(sqlmock.AnyArg(), "global").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdatePK(context.Background(), "global", map[string]interface{}{"created_at": time.Now()})
	require.NoError(t, err)
}

func TestUpdatePKNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	mock.ExpectExec("UPDATE namespaces SET created_at = \\$1 WHERE name = \\$2").
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePK(context.Background(), "missing", map[string]interface{}{"created_at": time.Now()})
	require.Error(t, err)
}

func TestUpdatePKRejectsUnknownColumn(t *testing.T) {
	repo, _ := newNamespaceRepo(t)
	err := repo.UpdatePK(context.Background(), "global", map[string]interface{}{"bogus": 1})
	require.Error(t, err)
}

func TestDeleteByPKRemovesRow(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	mock.ExpectExec("DELETE FROM namespaces WHERE name = \\$1").
		WithArgs("global").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeleteByPK(context.Background(), "global")
	require.NoError(t, err)
}

func TestDeleteByReturnsCount(t *testing.T) {
	repo, mock := newNamespaceRepo(t)
	mock.ExpectExec("DELETE FROM namespaces WHERE name = \\$1").
		WithArgs("global").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteBy(context.Background(), NewFilter().Where("name", Eq, "global"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
