// Package state implements the Statefile loader and its apply/remove
// drivers: parsing a declarative bundle (§4.10) and replaying it against
// the Object Managers, emitting one StateStreamItem per entity.
package state

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
)

// DefaultNamespace is used when a Statefile doesn't name one, mirroring
// the Object Managers' own "global" default.
const DefaultNamespace = "global"

// Statefile is the declarative bundle accepted by /state/apply and
// /state/remove. Arguments, sub-states, and grouping are CLI/templating
// concerns (spec.md's stated Non-goal) and are intentionally not parsed.
type Statefile struct {
	ApiVersion      string                     `json:"ApiVersion" yaml:"ApiVersion"`
	Namespace       string                     `json:"Namespace,omitempty" yaml:"Namespace,omitempty"`
	Secrets         []models.Secret            `json:"Secrets,omitempty" yaml:"Secrets,omitempty"`
	Resources       []models.ResourcePartial   `json:"Resources,omitempty" yaml:"Resources,omitempty"`
	Cargoes         []models.CargoSpecPartial  `json:"Cargoes,omitempty" yaml:"Cargoes,omitempty"`
	VirtualMachines []models.VmSpecPartial     `json:"VirtualMachines,omitempty" yaml:"VirtualMachines,omitempty"`
	Jobs            []models.JobPartial        `json:"Jobs,omitempty" yaml:"Jobs,omitempty"`
}

// Parse accepts either YAML or JSON (JSON is valid YAML); the daemon's
// own CLI ships Statefiles as YAML, but the HTTP body is whatever the
// caller sends.
//
// Decoding goes through an intermediate generic value and back out as
// JSON rather than unmarshalling yaml.v3 directly onto Statefile: the
// nested Resource/Secret "Data" fields are json.RawMessage, which
// yaml.v3 has no special handling for, but encoding/json does — so YAML
// is only used to turn the wire bytes into plain Go values, and
// encoding/json does the actual struct binding.
func Parse(body []byte) (Statefile, error) {
	var generic interface{}
	if err := yaml.Unmarshal(body, &generic); err != nil {
		return Statefile{}, apperrors.BadInput("invalid statefile: %s", err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return Statefile{}, apperrors.BadInput("invalid statefile: %s", err)
	}
	var sf Statefile
	if err := json.Unmarshal(asJSON, &sf); err != nil {
		return Statefile{}, apperrors.BadInput("invalid statefile: %s", err)
	}
	if sf.ApiVersion == "" {
		return Statefile{}, apperrors.BadInput("statefile missing ApiVersion")
	}
	return sf, nil
}

// namespaceOf returns the Statefile's namespace or DefaultNamespace.
func (sf Statefile) namespaceOf() string {
	if sf.Namespace == "" {
		return DefaultNamespace
	}
	return sf.Namespace
}

// unchanged reports whether a freshly-marshaled partial spec equals the
// currently stored one once both are re-marshaled from their decoded
// JSON, so key order and whitespace do not count (L3: applying the
// same Statefile twice produces UnChanged on the second run).
func unchanged(partial interface{}, current json.RawMessage) bool {
	fresh, err := json.Marshal(partial)
	if err != nil || len(current) == 0 {
		return false
	}
	var a, b interface{}
	if json.Unmarshal(fresh, &a) != nil || json.Unmarshal(current, &b) != nil {
		return false
	}
	fa, _ := json.Marshal(a)
	fb, _ := json.Marshal(b)
	return string(fa) == string(fb)
}

func item(key string, kind models.StateKind, status models.StateStatus, errCtx error) models.StateStreamItem {
	out := models.StateStreamItem{Key: key, Kind: kind, Status: status}
	if errCtx != nil {
		out.Context = errCtx.Error()
	}
	return out
}
