// Package resourcekinds implements the ResourceKind registry: a kind
// name plus one or more versioned validation strategies, each either an
// inline JSON Schema or a delegated controller URL. Exactly one of
// Schema/URL must be set per version (P7).
package resourcekinds

import (
	"context"
	"regexp"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

var domainNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*/[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

type KindTable struct{}

func (KindTable) TableName() string        { return "resource_kinds" }
func (KindTable) PrimaryKeyColumn() string { return "name" }
func (KindTable) Columns() map[string]store.Column {
	return map[string]store.Column{
		"name":       {SQLPath: "name", Kind: store.KindText},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
	}
}

func scanKind(row store.RowScanner) (models.ResourceKind, error) {
	var k models.ResourceKind
	err := row.Scan(&k.Name, &k.CreatedAt)
	return k, err
}

type VersionTable struct{}

func (VersionTable) TableName() string        { return "resource_kind_versions" }
func (VersionTable) PrimaryKeyColumn() string { return "name" }
func (VersionTable) Columns() map[string]store.Column {
	return map[string]store.Column{
		"name":       {SQLPath: "name", Kind: store.KindText},
		"version":    {SQLPath: "version", Kind: store.KindText},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
		"schema":     {SQLPath: "schema", Kind: store.KindJSON},
		"url":        {SQLPath: "url", Kind: store.KindText},
	}
}

func scanVersion(row store.RowScanner) (models.ResourceKindVersion, error) {
	var v models.ResourceKindVersion
	var schema []byte
	var url *string
	err := row.Scan(&v.Name, &v.Version, &v.CreatedAt, &schema, &url)
	if err != nil {
		return models.ResourceKindVersion{}, err
	}
	v.Data.Schema = schema
	if url != nil {
		v.Data.URL = *url
	}
	return v, nil
}

// Registry is the ResourceKind + ResourceKindVersion manager.
type Registry struct {
	kinds    *store.Repository[models.ResourceKind]
	versions *store.Repository[models.ResourceKindVersion]
}

func New(gw *store.Gateway) *Registry {
	return &Registry{
		kinds:    store.NewRepository[models.ResourceKind](gw, KindTable{}, scanKind),
		versions: store.NewRepository[models.ResourceKindVersion](gw, VersionTable{}, scanVersion),
	}
}

func validateName(name string) error {
	if !domainNameRegex.MatchString(name) {
		return apperrors.BadInput("resource kind name %q must match {domain}/{name}", name)
	}
	return nil
}

func validateVersionData(data models.ResourceKindVersionData) error {
	hasSchema := len(data.Schema) > 0
	hasURL := data.URL != ""
	if hasSchema == hasURL {
		return apperrors.BadInput("resource kind version must set exactly one of schema or url")
	}
	return nil
}

// CreateObj registers a new ResourceKind and its first version.
func (r *Registry) CreateObj(ctx context.Context, name, version string, data models.ResourceKindVersionData) (models.ResourceKind, error) {
	if err := validateName(name); err != nil {
		return models.ResourceKind{}, err
	}
	if err := validateVersionData(data); err != nil {
		return models.ResourceKind{}, err
	}
	k := models.ResourceKind{Name: name}
	if err := r.kinds.Create(ctx, `INSERT INTO resource_kinds (name, created_at) VALUES ($1, now())`, name); err != nil {
		return models.ResourceKind{}, err
	}
	schema, url := versionArgs(data)
	insert := `
		INSERT INTO resource_kind_versions (name, version, created_at, schema, url)
		VALUES ($1, $2, now(), $3, $4)
	`
	if err := r.versions.Create(ctx, insert, name, version, schema, url); err != nil {
		return models.ResourceKind{}, err
	}
	return k, nil
}

// versionArgs converts a ResourceKindVersionData into the nil-or-value
// pair the INSERT statement expects, since exactly one of schema/url is
// ever set.
func versionArgs(data models.ResourceKindVersionData) (schema, url interface{}) {
	if len(data.Schema) > 0 {
		schema = []byte(data.Schema)
	}
	if data.URL != "" {
		url = data.URL
	}
	return schema, url
}

// AddVersion registers a new version under an existing kind.
func (r *Registry) AddVersion(ctx context.Context, name, version string, data models.ResourceKindVersionData) error {
	if err := validateVersionData(data); err != nil {
		return err
	}
	if _, err := r.kinds.ReadByPK(ctx, name); err != nil {
		return err
	}
	schema, url := versionArgs(data)
	insert := `
		INSERT INTO resource_kind_versions (name, version, created_at, schema, url)
		VALUES ($1, $2, now(), $3, $4)
	`
	return r.versions.Create(ctx, insert, name, version, schema, url)
}

// InspectObjByPK returns the ResourceKind row.
func (r *Registry) InspectObjByPK(ctx context.Context, name string) (models.ResourceKind, error) {
	return r.kinds.ReadByPK(ctx, name)
}

// InspectVersion returns a specific version of a kind.
func (r *Registry) InspectVersion(ctx context.Context, name, version string) (models.ResourceKindVersion, error) {
	f := store.NewFilter().Where("name", store.Eq, name).Where("version", store.Eq, version)
	return r.versions.ReadOneBy(ctx, f)
}

// LatestVersion resolves the kind's newest version, used when a
// Resource's kind string omits the "/vN" suffix.
func (r *Registry) LatestVersion(ctx context.Context, name string) (models.ResourceKindVersion, error) {
	f := store.NewFilter().Where("name", store.Eq, name).OrderByDesc("created_at").WithLimit(1, 0)
	return r.versions.ReadOneBy(ctx, f)
}

func (r *Registry) DelObjByPK(ctx context.Context, name string) error {
	return r.kinds.DeleteByPK(ctx, name)
}

func (r *Registry) List(ctx context.Context, f *store.Filter) ([]models.ResourceKind, error) {
	return r.kinds.ReadBy(ctx, f)
}
