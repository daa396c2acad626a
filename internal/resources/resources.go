// Package resources implements the Resource Object Manager: a
// kind-scoped declarative object whose data is validated either by an
// inline JSON Schema or delegated to a controller URL, per the
// ResourceKindVersion its kind string resolves to.
package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"nanocld/internal/apperrors"
	"nanocld/internal/events"
	"nanocld/internal/models"
	"nanocld/internal/resourcekinds"
	"nanocld/internal/specs"
	"nanocld/internal/store"
)

const kindName = "Resource"

var kindRefRegex = regexp.MustCompile(`^([a-z0-9][a-z0-9.-]*/[a-zA-Z0-9][a-zA-Z0-9_-]*)(?:/v(\d+))?$`)

type Table struct{}

func (Table) TableName() string        { return "resources" }
func (Table) PrimaryKeyColumn() string { return "name" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"name":       {SQLPath: "name", Kind: store.KindText},
		"kind":       {SQLPath: "kind", Kind: store.KindText},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
		"spec_key":   {SQLPath: "spec_key", Kind: store.KindText},
	}
}

func scan(row store.RowScanner) (models.Resource, error) {
	var r models.Resource
	err := row.Scan(&r.Name, &r.Kind, &r.CreatedAt, &r.SpecKey)
	return r, err
}

// Manager is the Resource Object Manager.
type Manager struct {
	repo  *store.Repository[models.Resource]
	specs *specs.Registry
	kinds *resourcekinds.Registry
	bus   *events.Bus
	http  *http.Client
}

func New(gw *store.Gateway, sp *specs.Registry, kinds *resourcekinds.Registry, bus *events.Bus) *Manager {
	return &Manager{
		repo:  store.NewRepository[models.Resource](gw, Table{}, scan),
		specs: sp,
		kinds: kinds,
		bus:   bus,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// resolveKind splits "{domain}/{name}" or "{domain}/{name}/v{n}" and
// resolves the version via the ResourceKind registry when omitted.
func (m *Manager) resolveKind(ctx context.Context, kind string) (models.ResourceKindVersion, error) {
	matches := kindRefRegex.FindStringSubmatch(kind)
	if matches == nil {
		return models.ResourceKindVersion{}, apperrors.BadInput("resource kind %q must be {domain}/{name}[/vN]", kind)
	}
	name := matches[1]
	if matches[2] != "" {
		return m.kinds.InspectVersion(ctx, name, "v"+matches[2])
	}
	return m.kinds.LatestVersion(ctx, name)
}

// validate applies the resolved ResourceKindVersion's strategy: JSON
// Schema validation against an inline schema, or delegation to a
// controller URL which returns normalized data or a 4xx {msg}.
func (m *Manager) validate(ctx context.Context, version models.ResourceKindVersion, data json.RawMessage) (json.RawMessage, error) {
	if len(version.Data.Schema) > 0 {
		schemaLoader := gojsonschema.NewBytesLoader(version.Data.Schema)
		docLoader := gojsonschema.NewBytesLoader(data)
		result, err := gojsonschema.Validate(schemaLoader, docLoader)
		if err != nil {
			return nil, apperrors.BadInput("invalid resource data: %s", err)
		}
		if !result.Valid() {
			var msgs []string
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, apperrors.BadInput("resource data failed schema validation: %s", strings.Join(msgs, "; "))
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, version.Data.URL, bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Internal("failed to build controller validation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, apperrors.Internal("resource kind controller unreachable", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Internal("failed to read controller response", err)
	}
	if resp.StatusCode >= 400 {
		var msg apperrors.MsgResponse
		_ = json.Unmarshal(body, &msg)
		if msg.Msg == "" {
			msg.Msg = fmt.Sprintf("controller rejected resource data (status %d)", resp.StatusCode)
		}
		return nil, apperrors.BadInput("%s", msg.Msg)
	}
	return body, nil
}

// CreateObj resolves the Resource's kind, validates data against it, and
// writes the Spec + Resource rows.
func (m *Manager) CreateObj(ctx context.Context, partial models.ResourcePartial) (models.Resource, error) {
	if partial.Name == "" {
		return models.Resource{}, apperrors.BadInput("resource name cannot be empty")
	}
	version, err := m.resolveKind(ctx, partial.Kind)
	if err != nil {
		return models.Resource{}, err
	}
	normalized, err := m.validate(ctx, version, partial.Data)
	if err != nil {
		return models.Resource{}, err
	}

	spec, err := m.specs.Write(ctx, kindName, partial.Name, version.Version, normalized, nil)
	if err != nil {
		return models.Resource{}, err
	}
	insert := `
		INSERT INTO resources (name, kind, created_at, spec_key)
		VALUES ($1, $2, now(), $3)
	`
	if err := m.repo.Create(ctx, insert, partial.Name, partial.Kind, spec.Key); err != nil {
		return models.Resource{}, err
	}
	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: "Create",
		Reason: "resource created",
		Actor:  &models.Actor{Kind: models.ActorResource, Key: partial.Name},
	}); err != nil {
		return models.Resource{}, err
	}
	return m.InspectObjByPK(ctx, partial.Name)
}

func (m *Manager) InspectObjByPK(ctx context.Context, name string) (models.Resource, error) {
	res, err := m.repo.ReadByPK(ctx, name)
	if err != nil {
		return models.Resource{}, err
	}
	spec, err := m.specs.ByKey(ctx, res.SpecKey)
	if err == nil {
		res.Spec = &spec
	}
	return res, nil
}

// PutObjByPK re-validates data against the resource's current kind and
// writes a new Spec version.
func (m *Manager) PutObjByPK(ctx context.Context, name string, data json.RawMessage) (models.Resource, error) {
	res, err := m.repo.ReadByPK(ctx, name)
	if err != nil {
		return models.Resource{}, err
	}
	version, err := m.resolveKind(ctx, res.Kind)
	if err != nil {
		return models.Resource{}, err
	}
	normalized, err := m.validate(ctx, version, data)
	if err != nil {
		return models.Resource{}, err
	}
	spec, err := m.specs.Write(ctx, kindName, name, version.Version, normalized, nil)
	if err != nil {
		return models.Resource{}, err
	}
	if err := m.repo.UpdatePK(ctx, name, map[string]interface{}{"spec_key": spec.Key}); err != nil {
		return models.Resource{}, err
	}
	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: "Update",
		Reason: "resource updated",
		Actor:  &models.Actor{Kind: models.ActorResource, Key: name},
	}); err != nil {
		return models.Resource{}, err
	}
	return m.InspectObjByPK(ctx, name)
}

func (m *Manager) DelObjByPK(ctx context.Context, name string) error {
	if _, err := m.specs.DeleteAllFor(ctx, name); err != nil {
		return err
	}
	if err := m.repo.DeleteByPK(ctx, name); err != nil {
		return err
	}
	return m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: "Destroy",
		Reason: "resource deleted",
		Actor:  &models.Actor{Kind: models.ActorResource, Key: name},
	})
}

func (m *Manager) List(ctx context.Context, f *store.Filter) ([]models.Resource, error) {
	return m.repo.ReadBy(ctx, f)
}

func (m *Manager) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	return m.repo.CountBy(ctx, f)
}
