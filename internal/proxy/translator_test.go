package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nanocld/internal/models"
)

func TestListenAddress(t *testing.T) {
	gw := func(namespace string) string { return namespace + "-gateway" }

	cases := []struct {
		network string
		port    int
		want    string
	}{
		{"All", 80, ":80"},
		{"Public", 443, "10.0.0.1:443"},
		{"Internal", 8080, "127.0.0.1:8080"},
		{"staging.nsp", 9000, "staging-gateway:9000"},
		{"bogus", 1, ":1"},
	}
	for _, c := range cases {
		got := listenAddress(c.network, c.port, "10.0.0.1", gw)
		if got != c.want {
			t.Errorf("listenAddress(%q, %d) = %q, want %q", c.network, c.port, got, c.want)
		}
	}
}

func TestRedirectStatus(t *testing.T) {
	cases := map[Redirect]int{
		RedirectMovedPermanently: 301,
		RedirectPermanent:        308,
		RedirectTemporary:        307,
		Redirect(""):             0,
		Redirect("Bogus"):        0,
	}
	for r, want := range cases {
		if got := redirectStatus(r); got != want {
			t.Errorf("redirectStatus(%q) = %d, want %d", r, got, want)
		}
	}
}

func TestOwnerKeyAndKind(t *testing.T) {
	cases := []struct {
		key      string
		wantKey  string
		wantIsVm bool
	}{
		{"web.default.c", "default.web", false},
		{"db.prod.v", "prod.db", true},
		{"malformed", "malformed", false},
	}
	for _, c := range cases {
		u := UpstreamTarget{Key: c.key}
		key, isVm := u.ownerKeyAndKind()
		if key != c.wantKey || isVm != c.wantIsVm {
			t.Errorf("ownerKeyAndKind(%q) = (%q, %v), want (%q, %v)", c.key, key, isVm, c.wantKey, c.wantIsVm)
		}
	}
}

func TestRenderFragmentUpstreamAndServer(t *testing.T) {
	data := fragmentData{
		Upstreams: []upstreamBlock{{Name: "default_web", Servers: []string{"172.17.0.2:8080"}}},
		Servers:   []serverBlock{{Listen: ":80", ProxyPass: "http://default_web"}},
	}
	text, err := renderFragment(data)
	if err != nil {
		t.Fatalf("renderFragment: %v", err)
	}
	for _, want := range []string{"upstream default_web {", "server 172.17.0.2:8080;", "listen :80;", "proxy_pass http://default_web;"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered fragment missing %q, got:\n%s", want, text)
		}
	}
}

func TestRenderFragmentRedirect(t *testing.T) {
	data := fragmentData{
		Servers: []serverBlock{{Listen: ":80", ReturnStatus: 301, ReturnURL: "https://example.com"}},
	}
	text, err := renderFragment(data)
	if err != nil {
		t.Fatalf("renderFragment: %v", err)
	}
	if !strings.Contains(text, "return 301 https://example.com;") {
		t.Errorf("rendered fragment missing redirect return, got:\n%s", text)
	}
}

func TestProcessIPs(t *testing.T) {
	raw := json.RawMessage(`{"NetworkSettings":{"Networks":{"bridge":{"IPAddress":"172.17.0.5"}}}}`)
	ips := processIPs(raw)
	if len(ips) != 1 || ips[0] != "172.17.0.5" {
		t.Fatalf("processIPs = %v, want [172.17.0.5]", ips)
	}

	if ips := processIPs(json.RawMessage(`not json`)); ips != nil {
		t.Fatalf("processIPs on malformed data = %v, want nil", ips)
	}
}

func TestWriteTestReloadSuccess(t *testing.T) {
	dir := t.TempDir()
	var ranArgs [][]string
	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		ranArgs = append(ranArgs, append([]string{name}, args...))
		return "", nil
	}
	tr := New(nil, "v1", dir, "10.0.0.1", runner)

	if err := tr.writeTestReload(context.Background(), "my-res", "server {}\n"); err != nil {
		t.Fatalf("writeTestReload: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "my-res.conf"))
	if err != nil {
		t.Fatalf("fragment not written: %v", err)
	}
	if string(got) != "server {}\n" {
		t.Errorf("fragment contents = %q, want %q", got, "server {}\n")
	}
	if len(ranArgs) != 2 {
		t.Fatalf("expected nginx -t then nginx -s reload, got %v", ranArgs)
	}
}

func TestWriteTestReloadRollsBackOnValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my-res.conf")
	original := "server { listen 80; }\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatalf("seed fragment: %v", err)
	}

	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		if len(args) > 0 && args[0] == "-t" {
			return "nginx: [emerg] bad directive", apperrorsTestError{}
		}
		return "", nil
	}
	tr := New(nil, "v1", dir, "10.0.0.1", runner)

	err := tr.writeTestReload(context.Background(), "my-res", "server { broken\n")
	if err == nil {
		t.Fatal("expected error on validation failure")
	}

	got, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("fragment should still exist: %v", readErr)
	}
	if string(got) != original {
		t.Errorf("fragment was not rolled back: got %q, want %q", got, original)
	}
}

func TestWriteTestReloadRemovesFragmentOnFailureWithNoPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new-res.conf")

	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		return "bad config", apperrorsTestError{}
	}
	tr := New(nil, "v1", dir, "10.0.0.1", runner)

	if err := tr.writeTestReload(context.Background(), "new-res", "server { broken\n"); err == nil {
		t.Fatal("expected error on validation failure")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("fragment should have been removed, stat err = %v", err)
	}
}

func TestRemoveFragment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.conf")
	if err := os.WriteFile(path, []byte("server {}\n"), 0o644); err != nil {
		t.Fatalf("seed fragment: %v", err)
	}

	var reloaded bool
	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		reloaded = true
		return "", nil
	}
	tr := New(nil, "v1", dir, "10.0.0.1", runner)

	if err := tr.removeFragment("gone"); err != nil {
		t.Fatalf("removeFragment: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("fragment should be gone, stat err = %v", err)
	}
	if !reloaded {
		t.Error("expected nginx reload after fragment removal")
	}
}

func TestRemoveFragmentMissingIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	runner := func(ctx context.Context, name string, args ...string) (string, error) { return "", nil }
	tr := New(nil, "v1", dir, "10.0.0.1", runner)

	if err := tr.removeFragment("never-existed"); err != nil {
		t.Fatalf("removeFragment on missing fragment should succeed, got: %v", err)
	}
}

// apperrorsTestError is a minimal error used to simulate a failing
// CommandRunner without depending on the apperrors package's internals.
type apperrorsTestError struct{}

func (apperrorsTestError) Error() string { return "command failed" }

// newTestDaemonServer builds an httptest.Server backing a DaemonClient,
// serving the resources/processes endpoints the Translator calls.
func newTestDaemonServer(t *testing.T, resources []models.Resource, processesByOwner map[string][]models.Process) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/resources", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(resources)
	})
	for _, res := range resources {
		res := res
		mux.HandleFunc("/v1/resources/"+res.Name+"/inspect", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(res)
		})
	}
	mux.HandleFunc("/v1/processes", func(w http.ResponseWriter, r *http.Request) {
		kindKey := r.URL.Query().Get("kind_key")
		_ = json.NewEncoder(w).Encode(processesByOwner[kindKey])
	})
	return httptest.NewServer(mux)
}

func TestResourcesTargeting(t *testing.T) {
	rule := ResourceProxyRule{Rules: []ProxyRule{{
		Network: "All", Port: 80,
		Target: ProxyTarget{Upstream: &UpstreamTarget{Key: "web.default.c", Port: 8080}},
	}}}
	ruleData, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal rule: %v", err)
	}

	resources := []models.Resource{
		{Name: "web-proxy", Kind: "ProxyRule", Spec: &models.Spec{Data: ruleData}},
		{Name: "unrelated", Kind: "ProxyRule", Spec: &models.Spec{Data: json.RawMessage(`{"Rules":[]}`)}},
	}
	srv := newTestDaemonServer(t, resources, nil)
	defer srv.Close()

	tr := New(NewDaemonClient(srv.URL), "v1", t.TempDir(), "10.0.0.1", func(ctx context.Context, name string, args ...string) (string, error) { return "", nil })

	matches, err := tr.resourcesTargeting(context.Background(), "default.web")
	if err != nil {
		t.Fatalf("resourcesTargeting: %v", err)
	}
	if len(matches) != 1 || matches[0] != "web-proxy" {
		t.Fatalf("resourcesTargeting = %v, want [web-proxy]", matches)
	}
}

func TestRenderResourceEndToEnd(t *testing.T) {
	rule := ResourceProxyRule{Rules: []ProxyRule{{
		Network: "Public", Port: 80,
		Target: ProxyTarget{Upstream: &UpstreamTarget{Key: "web.default.c", Port: 8080}},
	}}}
	ruleData, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal rule: %v", err)
	}
	resources := []models.Resource{
		{Name: "web-proxy", Kind: "ProxyRule", Spec: &models.Spec{Data: ruleData}},
	}
	procData, err := json.Marshal(containerNetworkSettings{
		NetworkSettings: struct {
			Networks map[string]struct {
				IPAddress string `json:"IPAddress"`
			} `json:"Networks"`
		}{Networks: map[string]struct {
			IPAddress string `json:"IPAddress"`
		}{"bridge": {IPAddress: "172.17.0.9"}}},
	})
	if err != nil {
		t.Fatalf("marshal container data: %v", err)
	}
	processesByOwner := map[string][]models.Process{
		"default.web": {{Key: "default.web.1", Name: "web-1", Data: procData}},
	}
	srv := newTestDaemonServer(t, resources, processesByOwner)
	defer srv.Close()

	dir := t.TempDir()
	var ranReload bool
	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		if len(args) > 0 && args[0] == "-s" {
			ranReload = true
		}
		return "", nil
	}
	tr := New(NewDaemonClient(srv.URL), "v1", dir, "10.0.0.1", runner)

	if err := tr.RenderResource(context.Background(), "web-proxy"); err != nil {
		t.Fatalf("RenderResource: %v", err)
	}
	if !ranReload {
		t.Error("expected nginx reload after successful render")
	}

	text, err := os.ReadFile(filepath.Join(dir, "web-proxy.conf"))
	if err != nil {
		t.Fatalf("fragment not written: %v", err)
	}
	for _, want := range []string{"server 172.17.0.9:8080;", "listen 10.0.0.1:80;"} {
		if !strings.Contains(string(text), want) {
			t.Errorf("rendered fragment missing %q, got:\n%s", want, text)
		}
	}
}
