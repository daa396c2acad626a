package process

import (
	"encoding/json"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
)

// decodeHostConfig decodes the opaque HostConfig payload carried on a
// ContainerConfig into the runtime's native HostConfig shape. The spec
// treats HostConfig as opaque declarative data the daemon passes through
// to the runtime rather than a shape it validates field-by-field.
func decodeHostConfig(raw json.RawMessage, out *container.HostConfig) error {
	return json.Unmarshal(raw, out)
}

// marshalInspect serializes a runtime container's full inspect payload,
// stored verbatim as Process.Data so the HTTP surface can return it
// without re-querying the runtime.
func marshalInspect(inspect types.ContainerJSON) (json.RawMessage, error) {
	return json.Marshal(inspect)
}
