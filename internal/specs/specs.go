// Package specs implements the Spec Registry: versioned specification
// history for Cargo/Vm/Resource. Writes are append-only — every
// create/update produces a fresh row rather than mutating an existing
// one — and reads resolve to the owner's current spec_key ("latest
// wins"). Revert copies a historical row forward as a new current row
// rather than resurrecting the old one, preserving the append-only
// invariant.
package specs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

// Table is the capability record for the spec table, shared by every
// kind_name since specs are stored in one table keyed by kind_key.
type Table struct{}

func (Table) TableName() string        { return "specs" }
func (Table) PrimaryKeyColumn() string { return "key" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"key":        {SQLPath: "key", Kind: store.KindText},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
		"kind_name":  {SQLPath: "kind_name", Kind: store.KindText},
		"kind_key":   {SQLPath: "kind_key", Kind: store.KindText},
		"version":    {SQLPath: "version", Kind: store.KindText},
		"data":       {SQLPath: "data", Kind: store.KindJSON},
		"metadata":   {SQLPath: "metadata", Kind: store.KindJSON},
	}
}

// Registry is the Spec Registry: a thin, generic Repository[models.Spec]
// plus the write-new-version-on-update and revert semantics the spec
// contract names (§4.2).
type Registry struct {
	repo *store.Repository[models.Spec]
}

func New(gw *store.Gateway) *Registry {
	return &Registry{repo: store.NewRepository[models.Spec](gw, Table{}, scanSpec)}
}

func scanSpec(row store.RowScanner) (models.Spec, error) {
	var s models.Spec
	var metadata []byte
	err := row.Scan(&s.Key, &s.CreatedAt, &s.KindName, &s.KindKey, &s.Version, &s.Data, &metadata)
	if err != nil {
		return models.Spec{}, err
	}
	if len(metadata) > 0 {
		s.Metadata = json.RawMessage(metadata)
	}
	return s, nil
}

// Write appends a new current Spec row for kindKey and returns it. It
// never modifies an existing row (P1).
func (r *Registry) Write(ctx context.Context, kindName, kindKey, version string, data, metadata json.RawMessage) (models.Spec, error) {
	s := models.Spec{
		Key:       uuid.New().String(),
		CreatedAt: time.Now(),
		KindName:  kindName,
		KindKey:   kindKey,
		Version:   version,
		Data:      data,
		Metadata:  metadata,
	}
	query := `
		INSERT INTO specs (key, created_at, kind_name, kind_key, version, data, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if err := r.repo.Create(ctx, query, s.Key, s.CreatedAt, s.KindName, s.KindKey, s.Version, s.Data, s.Metadata); err != nil {
		return models.Spec{}, err
	}
	return s, nil
}

// Latest returns the most recently written Spec for kindKey.
func (r *Registry) Latest(ctx context.Context, kindKey string) (models.Spec, error) {
	f := store.NewFilter().Where("kind_key", store.Eq, kindKey).OrderByDesc("created_at").WithLimit(1, 0)
	return r.repo.ReadOneBy(ctx, f)
}

// ByKey fetches a single historical Spec row by its own key.
func (r *Registry) ByKey(ctx context.Context, key string) (models.Spec, error) {
	return r.repo.ReadByPK(ctx, key)
}

// History lists every Spec ever written for kindKey, newest first.
func (r *Registry) History(ctx context.Context, kindKey string, limit, offset int) ([]models.Spec, error) {
	f := store.NewFilter().Where("kind_key", store.Eq, kindKey).OrderByDesc("created_at").WithLimit(limit, offset)
	return r.repo.ReadBy(ctx, f)
}

// Revert copies the historical row identified by specID into a new
// current Spec: fresh uuid and created_at, same kind_name/kind_key/
// version/data/metadata, preserving append-only history (L2).
func (r *Registry) Revert(ctx context.Context, kindKey, specID string) (models.Spec, error) {
	old, err := r.ByKey(ctx, specID)
	if err != nil {
		return models.Spec{}, err
	}
	if old.KindKey != kindKey {
		return models.Spec{}, apperrors.BadInput("spec %s does not belong to %s", specID, kindKey)
	}
	return r.Write(ctx, old.KindName, old.KindKey, old.Version, old.Data, old.Metadata)
}

// DeleteAllFor cascades the deletion of an owner's entire spec history,
// used when the owning Cargo/Vm/Resource is deleted.
func (r *Registry) DeleteAllFor(ctx context.Context, kindKey string) (int64, error) {
	f := store.NewFilter().Where("kind_key", store.Eq, kindKey)
	return r.repo.DeleteBy(ctx, f)
}
