package vmimage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"nanocld/internal/apperrors"
	"nanocld/internal/store"
)

func mustNow() time.Time { return time.Now() }

func notFoundErr() error { return apperrors.NotFound("vm image", "other-snap") }

func newTestManager(t *testing.T, run runner) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gw, err := store.OpenWithDB(db)
	require.NoError(t, err)
	m := New(gw, "/var/lib/nanocl/vm-images")
	m.run = run
	return m, mock
}

func fakeInfo(format string, virtual, actual int64) runner {
	return func(ctx context.Context, args ...string) ([]byte, error) {
		return json.Marshal(qemuImgInfo{Format: format, VirtualSize: virtual, ActualSize: actual})
	}
}

func TestCreateRegistersBaseImage(t *testing.T) {
	m, mock := newTestManager(t, fakeInfo("qcow2", 10<<30, 2<<30))
	mock.ExpectExec("INSERT INTO vm_images").
		WithArgs("ubuntu-22", "Base", "/tmp/ubuntu-22.qcow2", "qcow2", int64(2<<30), int64(10<<30), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	img, err := m.Create(context.Background(), "ubuntu-22", "/tmp/ubuntu-22.qcow2")
	require.NoError(t, err)
	require.Equal(t, "ubuntu-22", img.Name)
	require.Nil(t, img.Parent)
}

func TestCreateSnapRejectsWhenNameTaken(t *testing.T) {
	m, mock := newTestManager(t, fakeInfo("qcow2", 0, 0))
	now := mustNow()
	mock.ExpectQuery("SELECT \\* FROM vm_images").WithArgs("snap-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "kind", "path", "format", "size_actual", "size_virtual", "parent", "created_at"}).
			AddRow("snap-1", "Snapshot", "/tmp/snap-1.qcow2", "qcow2", int64(1), int64(1), nil, now))

	_, err := m.CreateSnap(context.Background(), "snap-1", 20, "ubuntu-22")
	require.Error(t, err)
}

func TestCreateSnapRejectsNonBaseParent(t *testing.T) {
	m, mock := newTestManager(t, fakeInfo("qcow2", 0, 0))
	now := mustNow()
	mock.ExpectQuery("SELECT \\* FROM vm_images").WithArgs("snap-1").
		WillReturnError(notFoundErr())
	mock.ExpectQuery("SELECT \\* FROM vm_images").WithArgs("other-snap").
		WillReturnRows(sqlmock.NewRows([]string{"name", "kind", "path", "format", "size_actual", "size_virtual", "parent", "created_at"}).
			AddRow("other-snap", "Snapshot", "/tmp/other-snap.qcow2", "qcow2", int64(1), int64(1), "base-x", now))

	_, err := m.CreateSnap(context.Background(), "snap-1", 20, "other-snap")
	require.Error(t, err)
}

func TestDelObjByPKRejectsWhenChildrenExist(t *testing.T) {
	m, mock := newTestManager(t, fakeInfo("qcow2", 0, 0))
	now := mustNow()
	mock.ExpectQuery("SELECT \\* FROM vm_images").WithArgs("ubuntu-22").
		WillReturnRows(sqlmock.NewRows([]string{"name", "kind", "path", "format", "size_actual", "size_virtual", "parent", "created_at"}).
			AddRow("ubuntu-22", "Base", "/tmp/ubuntu-22.qcow2", "qcow2", int64(1), int64(1), nil, now))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM vm_images").WithArgs("ubuntu-22").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	err := m.DelObjByPK(context.Background(), "ubuntu-22")
	require.Error(t, err)
}
