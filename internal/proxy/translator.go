package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nanocld/internal/apperrors"
	"nanocld/internal/logger"
	"nanocld/internal/models"
)

// Translator is the Proxy Rule Translator (C11). Its only state is the
// rendered config tree under ConfDir plus the nginx process it manages
// via Runner.
type Translator struct {
	daemon      *DaemonClient
	version     string
	confDir     string
	hostGateway string
	runner      CommandRunner
}

// New builds a Translator. confDir is the directory config fragments
// are written to (one file per Resource, named "{resource}.conf").
func New(daemon *DaemonClient, version, confDir, hostGateway string, runner CommandRunner) *Translator {
	if runner == nil {
		runner = execRunnerFunc
	}
	return &Translator{daemon: daemon, version: version, confDir: confDir, hostGateway: hostGateway, runner: runner}
}

func (t *Translator) fragmentPath(resourceName string) string {
	return filepath.Join(t.confDir, resourceName+".conf")
}

// namespaceGateway derives the per-namespace bridge listen address; the
// Namespace Object Manager names the runtime network after the
// namespace, so its gateway is reachable at "{namespace}-gateway" on the
// daemon's own resolver (no direct Docker network inspection needed
// here — only the Process Controller talks to the runtime).
func (t *Translator) namespaceGateway(namespace string) string {
	return namespace + "-gateway"
}

// Run subscribes to the daemon's event stream and translates every
// Cargo/Vm/Resource event that affects the rendered config tree, until
// ctx is cancelled.
func (t *Translator) Run(ctx context.Context) error {
	ch := make(chan models.Event, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- t.daemon.Events(ctx, t.version, ch) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case e := <-ch:
			t.handleEvent(ctx, e)
		}
	}
}

func (t *Translator) handleEvent(ctx context.Context, e models.Event) {
	if e.Actor == nil {
		return
	}
	log := logger.Proxy()
	switch e.Actor.Kind {
	case models.ActorResource:
		if err := t.handleResourceEvent(ctx, e); err != nil {
			log.Error().Err(err).Str("resource", e.Actor.Key).Msg("failed to translate resource event")
		}
	case models.ActorCargo, models.ActorVm:
		if err := t.handleOwnerEvent(ctx, e); err != nil {
			log.Error().Err(err).Str("owner", e.Actor.Key).Msg("failed to re-render owner event")
		}
	}
}

func isStartOrUpdate(action string) bool {
	a := strings.ToLower(action)
	return strings.Contains(a, "start") || strings.Contains(a, "update") || a == strings.ToLower(string(models.StatusCreate))
}

func isStopOrDestroy(action string) bool {
	a := strings.ToLower(action)
	return strings.Contains(a, "stop") || strings.Contains(a, "destroy")
}

// handleResourceEvent implements "On Resource/Create|Update: parse the
// payload as a ResourceProxyRule... On Resource/Destroy: delete the
// fragment."
func (t *Translator) handleResourceEvent(ctx context.Context, e models.Event) error {
	if isStopOrDestroy(e.Action) {
		return t.removeFragment(e.Actor.Key)
	}
	if !isStartOrUpdate(e.Action) {
		return nil
	}
	return t.RenderResource(ctx, e.Actor.Key)
}

// handleOwnerEvent implements "On Cargo/Start|Update: re-render every
// Resource fragment whose rule targets this cargo. On Cargo/Stop|Delete:
// delete those fragments." Vm is symmetric. Matching resources are found
// by listing every Resource and checking each rule's Upstream targets
// against the owner's key, since the daemon has no reverse index from
// owner to referencing Resources.
func (t *Translator) handleOwnerEvent(ctx context.Context, e models.Event) error {
	starting := isStartOrUpdate(e.Action)
	stopping := isStopOrDestroy(e.Action)
	if !starting && !stopping {
		return nil
	}

	matches, err := t.resourcesTargeting(ctx, e.Actor.Key)
	if err != nil {
		return err
	}
	for _, name := range matches {
		if starting {
			if err := t.RenderResource(ctx, name); err != nil {
				return err
			}
			continue
		}
		if err := t.removeFragment(name); err != nil {
			return err
		}
	}
	return nil
}

// resourcesTargeting returns the names of every Resource whose parsed
// ResourceProxyRule has an Upstream target resolving to ownerKey.
func (t *Translator) resourcesTargeting(ctx context.Context, ownerKey string) ([]string, error) {
	resources, err := t.daemon.ListResources(ctx, t.version)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, res := range resources {
		if res.Spec == nil {
			continue
		}
		rule, err := parseResourceProxyRule(res.Spec.Data)
		if err != nil {
			continue // not a proxy-domain resource
		}
		for _, r := range rule.Rules {
			if r.Target.Upstream == nil {
				continue
			}
			key, _ := r.Target.Upstream.ownerKeyAndKind()
			if key == ownerKey {
				names = append(names, res.Name)
				break
			}
		}
	}
	return names, nil
}

// RenderResource fetches a Resource's current rule, resolves its
// targets, and writes/validates/reloads the nginx fragment. On
// validation failure it restores the fragment's prior contents (or
// removes it if none existed) so the on-disk tree stays byte-identical
// to its pre-call state (P8).
func (t *Translator) RenderResource(ctx context.Context, name string) error {
	res, err := t.daemon.InspectResource(ctx, t.version, name)
	if err != nil {
		return err
	}
	if res.Spec == nil {
		return apperrors.Internal("resource has no spec", nil)
	}
	rule, err := parseResourceProxyRule(res.Spec.Data)
	if err != nil {
		return apperrors.BadInput("invalid proxy rule for resource %s: %s", name, err)
	}

	data, err := t.resolve(ctx, rule)
	if err != nil {
		return err
	}
	text, err := renderFragment(data)
	if err != nil {
		return err
	}

	return t.writeTestReload(ctx, name, text)
}

func (t *Translator) resolve(ctx context.Context, rule ResourceProxyRule) (fragmentData, error) {
	var out fragmentData
	for _, r := range rule.Rules {
		listen := listenAddress(r.Network, r.Port, t.hostGateway, t.namespaceGateway)
		switch {
		case r.Target.Upstream != nil:
			up := r.Target.Upstream
			ownerKey, _ := up.ownerKeyAndKind()
			procs, err := t.daemon.ProcessesByOwner(ctx, t.version, ownerKey)
			if err != nil {
				return fragmentData{}, err
			}
			upstreamName := strings.ReplaceAll(ownerKey, ".", "_")
			var servers []string
			for _, p := range procs {
				for _, ip := range processIPs(p.Data) {
					servers = append(servers, fmt.Sprintf("%s:%d", ip, up.Port))
				}
			}
			out.Upstreams = append(out.Upstreams, upstreamBlock{Name: upstreamName, Servers: servers})
			out.Servers = append(out.Servers, serverBlock{Listen: listen, ProxyPass: "http://" + upstreamName})
		case r.Target.Unix != nil:
			out.Servers = append(out.Servers, serverBlock{Listen: listen, ProxyPass: "http://unix:" + r.Target.Unix.Path + ":"})
		case r.Target.Http != nil:
			h := r.Target.Http
			if status := redirectStatus(h.Redirect); status != 0 {
				out.Servers = append(out.Servers, serverBlock{Listen: listen, ReturnStatus: status, ReturnURL: h.Url})
			} else {
				out.Servers = append(out.Servers, serverBlock{Listen: listen, ProxyPass: h.Url})
			}
		}
	}
	return out, nil
}

// writeTestReload writes text to the resource's fragment, runs
// `nginx -t`, and either reloads on success or restores the fragment's
// previous contents (or removes it) on failure.
func (t *Translator) writeTestReload(ctx context.Context, resourceName, text string) error {
	path := t.fragmentPath(resourceName)
	previous, hadPrevious := readIfExists(path)

	if err := os.MkdirAll(t.confDir, 0o755); err != nil {
		return apperrors.Internal("failed to create proxy config dir", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return apperrors.Internal("failed to write proxy fragment", err)
	}

	if out, err := t.runner(ctx, "nginx", "-t"); err != nil {
		t.rollback(path, previous, hadPrevious)
		return apperrors.BadInput("nginx config validation failed: %s", out)
	}

	if out, err := t.runner(ctx, "nginx", "-s", "reload"); err != nil {
		return apperrors.Internal(fmt.Sprintf("nginx reload failed: %s", out), err)
	}
	return nil
}

func (t *Translator) rollback(path string, previous []byte, hadPrevious bool) {
	if hadPrevious {
		_ = os.WriteFile(path, previous, 0o644)
		return
	}
	_ = os.Remove(path)
}

func (t *Translator) removeFragment(resourceName string) error {
	path := t.fragmentPath(resourceName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.Internal("failed to remove proxy fragment", err)
	}
	if _, err := t.runner(context.Background(), "nginx", "-s", "reload"); err != nil {
		return apperrors.Internal("nginx reload failed after fragment removal", err)
	}
	return nil
}

func readIfExists(path string) ([]byte, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return b, true
}
