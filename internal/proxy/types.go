// Package proxy implements the Proxy Rule Translator (C11): it
// subscribes to the daemon's Event Bus over HTTP, translates
// ResourceProxyRule payloads into nginx config fragments, and reloads
// the nginx process, rolling back the fragment on validation failure.
package proxy

import (
	"encoding/json"
	"strings"
)

// ResourceProxyRule is the declarative payload of a Resource whose kind
// selects the proxy domain; it is what `Resource.Spec.Data` unmarshals
// into for a proxy-domain kind.
type ResourceProxyRule struct {
	Rules []ProxyRule `json:"Rules"`
}

// ProxyRule is a single listen/target pair. Network selects the listen
// address; Target selects what traffic on that address is forwarded to.
type ProxyRule struct {
	Network string      `json:"Network"` // "All" | "Public" | "Internal" | "{namespace}.nsp"
	Port    int         `json:"Port"`
	Target  ProxyTarget `json:"Target"`
}

// ProxyTarget is a closed union; exactly one field is set.
type ProxyTarget struct {
	Upstream *UpstreamTarget `json:"Upstream,omitempty"`
	Unix     *UnixTarget     `json:"Unix,omitempty"`
	Http     *HttpTarget     `json:"Http,omitempty"`
}

// UpstreamTarget names a Cargo or Vm by its owner key; Key has the
// "{name}.{namespace}.c" (Cargo) or "{name}.{namespace}.v" (Vm) shape.
type UpstreamTarget struct {
	Key  string `json:"Key"`
	Port int    `json:"Port"`
}

// UnixTarget forwards to a single unix domain socket.
type UnixTarget struct {
	Path string `json:"Path"`
}

// HttpTarget either proxies to url or, when Redirect is set, emits a
// rewrite/return pair for that redirect kind.
type HttpTarget struct {
	Url      string   `json:"Url"`
	Redirect Redirect `json:"Redirect,omitempty"`
}

// Redirect names an HTTP redirect kind; redirectStatus maps it to its
// numeric status code.
type Redirect string

const (
	RedirectMovedPermanently Redirect = "MovedPermanently"
	RedirectPermanent        Redirect = "Permanent"
	RedirectTemporary        Redirect = "Temporary"
)

func redirectStatus(r Redirect) int {
	switch r {
	case RedirectMovedPermanently:
		return 301
	case RedirectPermanent:
		return 308
	case RedirectTemporary:
		return 307
	default:
		return 0
	}
}

// parseResourceProxyRule unmarshals a Resource's opaque Spec data as a
// ResourceProxyRule.
func parseResourceProxyRule(data json.RawMessage) (ResourceProxyRule, error) {
	var rule ResourceProxyRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return ResourceProxyRule{}, err
	}
	return rule, nil
}

// ownerKeyAndKind translates the wire-facing "{name}.{namespace}.c"/".v"
// target key into the Object Managers' internal "{namespace}.{name}"
// owner key, plus which kind it names.
func (u UpstreamTarget) ownerKeyAndKind() (key string, isVm bool) {
	parts := strings.Split(u.Key, ".")
	if len(parts) != 3 {
		return u.Key, false
	}
	name, namespace, suffix := parts[0], parts[1], parts[2]
	return namespace + "." + name, suffix == "v"
}
