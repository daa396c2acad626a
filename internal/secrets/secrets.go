// Package secrets implements the Secret Object Manager: an opaque,
// kind-typed credential/env blob referenced by Cargoes. Unlike the other
// Object Managers, a Secret has no Spec history or ObjPsStatus of its
// own — its row is the spec.
package secrets

import (
	"context"
	"encoding/json"

	"nanocld/internal/apperrors"
	"nanocld/internal/events"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

type Table struct{}

func (Table) TableName() string        { return "secrets" }
func (Table) PrimaryKeyColumn() string { return "key" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"key":        {SQLPath: "key", Kind: store.KindText},
		"kind":       {SQLPath: "kind", Kind: store.KindText},
		"data":       {SQLPath: "data", Kind: store.KindJSON},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
		"metadata":   {SQLPath: "metadata", Kind: store.KindJSON},
	}
}

func scan(row store.RowScanner) (models.Secret, error) {
	var s models.Secret
	var metadata []byte
	err := row.Scan(&s.Key, &s.Kind, &s.Data, &s.CreatedAt, &metadata)
	if err != nil {
		return models.Secret{}, err
	}
	if len(metadata) > 0 {
		json.Unmarshal(metadata, &s.Metadata)
	}
	return s, nil
}

// Manager is the Secret Object Manager.
type Manager struct {
	repo *store.Repository[models.Secret]
	bus  *events.Bus
}

func New(gw *store.Gateway, bus *events.Bus) *Manager {
	return &Manager{repo: store.NewRepository[models.Secret](gw, Table{}, scan), bus: bus}
}

// validateData enforces the shape mandated by kind: nanocl.io/env
// requires a []string, nanocl.io/tls requires the TLS record shape.
func validateData(kind string, data json.RawMessage) error {
	switch kind {
	case models.SecretKindEnv:
		var env []string
		if err := json.Unmarshal(data, &env); err != nil {
			return apperrors.BadInput("secret of kind %s requires data to be a string array: %s", kind, err)
		}
	case models.SecretKindTLS:
		var tls models.SecretTLS
		if err := json.Unmarshal(data, &tls); err != nil {
			return apperrors.BadInput("secret of kind %s requires a TLS record: %s", kind, err)
		}
		if tls.Cert == "" || tls.CertKey == "" {
			return apperrors.BadInput("secret of kind %s requires Cert and CertKey", kind)
		}
	default:
		return apperrors.BadInput("unknown secret kind %q", kind)
	}
	return nil
}

// CreateObj validates data against kind and inserts the row.
func (m *Manager) CreateObj(ctx context.Context, partial models.Secret) (models.Secret, error) {
	if partial.Key == "" {
		return models.Secret{}, apperrors.BadInput("secret key cannot be empty")
	}
	if err := validateData(partial.Kind, partial.Data); err != nil {
		return models.Secret{}, err
	}
	metadata, _ := json.Marshal(partial.Metadata)
	insert := `
		INSERT INTO secrets (key, kind, data, created_at, metadata)
		VALUES ($1, $2, $3, now(), $4)
	`
	if err := m.repo.Create(ctx, insert, partial.Key, partial.Kind, partial.Data, metadata); err != nil {
		return models.Secret{}, err
	}
	return m.InspectObjByPK(ctx, partial.Key)
}

func (m *Manager) InspectObjByPK(ctx context.Context, key string) (models.Secret, error) {
	return m.repo.ReadByPK(ctx, key)
}

// PutObjByPK overwrites data (same kind), re-validates it, and emits a
// Secret/Update event the Reconciler fans out to referencing Cargoes.
func (m *Manager) PutObjByPK(ctx context.Context, key string, data json.RawMessage) (models.Secret, error) {
	cur, err := m.repo.ReadByPK(ctx, key)
	if err != nil {
		return models.Secret{}, err
	}
	if err := validateData(cur.Kind, data); err != nil {
		return models.Secret{}, err
	}
	if err := m.repo.UpdatePK(ctx, key, map[string]interface{}{"data": data}); err != nil {
		return models.Secret{}, err
	}
	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: "Update",
		Reason: "secret data updated",
		Actor:  &models.Actor{Kind: models.ActorSecret, Key: key},
	}); err != nil {
		return models.Secret{}, err
	}
	return m.InspectObjByPK(ctx, key)
}

func (m *Manager) DelObjByPK(ctx context.Context, key string) error {
	return m.repo.DeleteByPK(ctx, key)
}

func (m *Manager) List(ctx context.Context, f *store.Filter) ([]models.Secret, error) {
	return m.repo.ReadBy(ctx, f)
}

func (m *Manager) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	return m.repo.CountBy(ctx, f)
}
