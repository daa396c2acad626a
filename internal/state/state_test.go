package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsMissingApiVersion(t *testing.T) {
	_, err := Parse([]byte("Namespace: default\n"))
	require.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	sf, err := Parse([]byte(`
ApiVersion: v0.6
Namespace: demo
Cargoes:
  - Name: web
    Container:
      Image: nginx:latest
`))
	require.NoError(t, err)
	assert.Equal(t, "v0.6", sf.ApiVersion)
	assert.Equal(t, "demo", sf.Namespace)
	require.Len(t, sf.Cargoes, 1)
	assert.Equal(t, "web", sf.Cargoes[0].Name)
	assert.Equal(t, "nginx:latest", sf.Cargoes[0].Container.Image)
}

func TestParseResourceDataSurvivesAsRawJSON(t *testing.T) {
	sf, err := Parse([]byte(`
ApiVersion: v0.6
Resources:
  - Name: my-proxy-rule
    Kind: ncproxy.io/rule
    Data:
      Rules:
        - Network: Public
          Target:
            Cargo:
              Name: web
`))
	require.NoError(t, err)
	require.Len(t, sf.Resources, 1)
	assert.Equal(t, "my-proxy-rule", sf.Resources[0].Name)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(sf.Resources[0].Data, &decoded))
	rules, ok := decoded["Rules"].([]interface{})
	require.True(t, ok)
	require.Len(t, rules, 1)
}

func TestParseJSONIsValidYAML(t *testing.T) {
	sf, err := Parse([]byte(`{"ApiVersion": "v0.6", "Jobs": [{"Name": "migrate", "Containers": [{"Image": "busybox"}]}]}`))
	require.NoError(t, err)
	require.Len(t, sf.Jobs, 1)
	assert.Equal(t, "migrate", sf.Jobs[0].Name)
}

func TestNamespaceOfDefaultsToGlobal(t *testing.T) {
	assert.Equal(t, DefaultNamespace, Statefile{}.namespaceOf())
	assert.Equal(t, "demo", Statefile{Namespace: "demo"}.namespaceOf())
}

func TestUnchangedDetectsIdenticalSpec(t *testing.T) {
	type partial struct {
		Name  string `json:"Name"`
		Image string `json:"Image"`
	}
	p := partial{Name: "web", Image: "nginx:latest"}
	current, err := json.Marshal(p)
	require.NoError(t, err)

	assert.True(t, unchanged(p, current))

	p.Image = "nginx:1.27"
	assert.False(t, unchanged(p, current))
}

func TestUnchangedFalseOnEmptyCurrent(t *testing.T) {
	assert.False(t, unchanged(struct{}{}, nil))
}

func TestItemIncludesContextOnError(t *testing.T) {
	it := item("default.web", "Cargo", "Failed", assertError{})
	assert.Equal(t, "boom", it.Context)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
