// Package namespaces implements the Namespace Object Manager: the
// top-level grouping that owns a runtime network of the same name plus
// the Cargoes and Vms created inside it.
package namespaces

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

type Table struct{}

func (Table) TableName() string        { return "namespaces" }
func (Table) PrimaryKeyColumn() string { return "name" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"name":       {SQLPath: "name", Kind: store.KindText},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
	}
}

func scan(row store.RowScanner) (models.Namespace, error) {
	var n models.Namespace
	err := row.Scan(&n.Name, &n.CreatedAt)
	return n, err
}

// cargoLister and vmLister are the narrow capabilities this manager
// needs from the Cargo/Vm managers to enforce "delete requires empty",
// avoiding an import cycle with the full cargoes/vms packages.
type cargoLister interface {
	CountByNamespace(ctx context.Context, namespace string) (int64, error)
}

type vmLister interface {
	CountByNamespace(ctx context.Context, namespace string) (int64, error)
}

// Manager is the Namespace Object Manager.
type Manager struct {
	docker *client.Client
	repo   *store.Repository[models.Namespace]
	cargos cargoLister
	vms    vmLister
}

func New(docker *client.Client, gw *store.Gateway, cargos cargoLister, vms vmLister) *Manager {
	return &Manager{
		docker: docker,
		repo:   store.NewRepository[models.Namespace](gw, Table{}, scan),
		cargos: cargos,
		vms:    vms,
	}
}

// CreateObj ensures the runtime network exists and inserts the Namespace
// row.
func (m *Manager) CreateObj(ctx context.Context, name string) (models.Namespace, error) {
	if name == "" {
		return models.Namespace{}, apperrors.BadInput("namespace name cannot be empty")
	}
	existing, err := m.docker.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return models.Namespace{}, apperrors.Internal("failed to list networks", err)
	}
	found := false
	for _, n := range existing {
		if n.Name == name {
			found = true
			break
		}
	}
	if !found {
		if _, err := m.docker.NetworkCreate(ctx, name, network.CreateOptions{}); err != nil {
			return models.Namespace{}, apperrors.Internal("failed to create network", err)
		}
	}

	ns := models.Namespace{Name: name, CreatedAt: time.Now()}
	query := `INSERT INTO namespaces (name, created_at) VALUES ($1, $2)`
	if err := m.repo.Create(ctx, query, ns.Name, ns.CreatedAt); err != nil {
		return models.Namespace{}, err
	}
	return ns, nil
}

func (m *Manager) InspectObjByPK(ctx context.Context, name string) (models.Namespace, error) {
	return m.repo.ReadByPK(ctx, name)
}

// DelObjByPK removes the namespace, refusing if it still owns Cargoes or
// Vms.
func (m *Manager) DelObjByPK(ctx context.Context, name string) error {
	if m.cargos != nil {
		n, err := m.cargos.CountByNamespace(ctx, name)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperrors.Conflict("namespace %s still owns %d cargo(es)", name, n)
		}
	}
	if m.vms != nil {
		n, err := m.vms.CountByNamespace(ctx, name)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperrors.Conflict("namespace %s still owns %d vm(s)", name, n)
		}
	}
	return m.repo.DeleteByPK(ctx, name)
}

func (m *Manager) List(ctx context.Context, f *store.Filter) ([]models.Namespace, error) {
	return m.repo.ReadBy(ctx, f)
}

func (m *Manager) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	return m.repo.CountBy(ctx, f)
}
