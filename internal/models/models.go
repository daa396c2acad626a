// Package models holds the daemon's persisted entity shapes (§3 of the
// spec) and the small capability-record interfaces the Store Gateway
// dispatches generic CRUD through (§9 Design Notes: "dynamic dispatch per
// entity" instead of inheritance).
package models

import (
	"encoding/json"
	"time"
)

// Namespace is a logical grouping owning a runtime network of the same
// name plus the Cargoes and Vms created inside it.
type Namespace struct {
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Spec is an immutable specification snapshot. History is append-only;
// rows are never modified, only superseded by a newer row with the same
// KindKey.
type Spec struct {
	Key       string          `json:"key" db:"key"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	KindName  string          `json:"kind_name" db:"kind_name"`
	KindKey   string          `json:"kind_key" db:"kind_key"`
	Version   string          `json:"version" db:"version"`
	Data      json.RawMessage `json:"data" db:"data"`
	Metadata  json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// ObjPsStatus is the desired/actual status pair for a living object.
// Transitions always preserve the previous value (P2).
type ObjPsStatus struct {
	Key         string           `json:"key" db:"key"`
	Wanted      ObjPsStatusValue `json:"wanted" db:"wanted"`
	PrevWanted  ObjPsStatusValue `json:"prev_wanted" db:"prev_wanted"`
	Actual      ObjPsStatusValue `json:"actual" db:"actual"`
	PrevActual  ObjPsStatusValue `json:"prev_actual" db:"prev_actual"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// Cargo is a replicated, long-lived container workload.
type CargoSpecPartial struct {
	Name        string            `json:"Name" yaml:"Name"`
	Container   ContainerConfig   `json:"Container" yaml:"Container"`
	Secrets     []string          `json:"Secrets,omitempty" yaml:"Secrets,omitempty"`
	Metadata    map[string]string `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
	Replication *ReplicationSpec  `json:"Replication,omitempty" yaml:"Replication,omitempty"`
}

// ReplicationSpec is declared in the Cargo spec but reconciliation today
// caps concurrent instances at 1 (see Open Questions in SPEC_FULL.md).
type ReplicationSpec struct {
	Mode string `json:"Mode" yaml:"Mode"` // Auto, Unique, UniqueByNode, StaticByNodes, ...
}

// ContainerConfig is the opaque declarative container payload; it mirrors
// the subset of a Docker container config the daemon cares about.
type ContainerConfig struct {
	Image      string            `json:"Image" yaml:"Image"`
	Env        []string          `json:"Env,omitempty" yaml:"Env,omitempty"`
	Cmd        []string          `json:"Cmd,omitempty" yaml:"Cmd,omitempty"`
	Labels     map[string]string `json:"Labels,omitempty" yaml:"Labels,omitempty"`
	HostConfig json.RawMessage   `json:"HostConfig,omitempty" yaml:"HostConfig,omitempty"`
}

// CargoSpec is the current, fully-resolved spec for a Cargo.
type CargoSpec struct {
	Key       string          `json:"Key"`
	CreatedAt time.Time       `json:"CreatedAt"`
	Name      string          `json:"Name"`
	Version   string          `json:"Version"`
	CargoKey  string          `json:"CargoKey"`
	CargoSpecPartial
}

// Cargo is the live object: namespace + stable key + current status.
type Cargo struct {
	Key            string       `json:"Key"`
	Name           string       `json:"Name"`
	NamespaceName  string       `json:"NamespaceName"`
	CreatedAt      time.Time    `json:"CreatedAt"`
	SpecKey        string       `json:"SpecKey"`
	Spec           *CargoSpec   `json:"Spec,omitempty"`
	Status         *ObjPsStatus `json:"Status,omitempty"`
}

// VmSpecPartial is the declarative payload for a Vm.
type VmSpecPartial struct {
	Name       string            `json:"Name" yaml:"Name"`
	Disk       VmDiskSpec        `json:"Disk" yaml:"Disk"`
	HostConfig json.RawMessage   `json:"HostConfig,omitempty" yaml:"HostConfig,omitempty"`
	Metadata   map[string]string `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
}

// VmDiskSpec names the base VmImage and the snapshot size to create at
// start time.
type VmDiskSpec struct {
	Image string `json:"Image" yaml:"Image"`
	Size  int64  `json:"Size" yaml:"Size"` // GB
}

type VmSpec struct {
	Key       string    `json:"Key"`
	CreatedAt time.Time `json:"CreatedAt"`
	Name      string    `json:"Name"`
	Version   string    `json:"Version"`
	VmKey     string    `json:"VmKey"`
	VmSpecPartial
}

type Vm struct {
	Key           string       `json:"Key"`
	Name          string       `json:"Name"`
	NamespaceName string       `json:"NamespaceName"`
	CreatedAt     time.Time    `json:"CreatedAt"`
	SpecKey       string       `json:"SpecKey"`
	Spec          *VmSpec      `json:"Spec,omitempty"`
	Status        *ObjPsStatus `json:"Status,omitempty"`
}

// Job is a one-shot or scheduled sequence of containers.
type JobPartial struct {
	Name       string            `json:"Name" yaml:"Name"`
	Containers []ContainerConfig `json:"Containers" yaml:"Containers"`
	TTL        *int64            `json:"TTL,omitempty" yaml:"TTL,omitempty"` // seconds from terminal state
	Metadata   map[string]string `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
}

type Job struct {
	Key        string       `json:"Key"`
	Name       string       `json:"Name"`
	CreatedAt  time.Time    `json:"CreatedAt"`
	Containers []ContainerConfig `json:"Containers"`
	TTL        *int64       `json:"TTL,omitempty"`
	Status     *ObjPsStatus `json:"Status,omitempty"`
}

// Process is a runtime instance backing a Cargo/Vm/Job.
type Process struct {
	Key       string          `json:"Key" db:"key"`
	Name      string          `json:"Name" db:"name"`
	Kind      ProcessKind     `json:"Kind" db:"kind"`
	KindKey   string          `json:"KindKey" db:"kind_key"`
	NodeKey   string          `json:"NodeKey" db:"node_key"`
	Data      json.RawMessage `json:"Data" db:"data"`
	CreatedAt time.Time       `json:"CreatedAt" db:"created_at"`
	UpdatedAt time.Time       `json:"UpdatedAt" db:"updated_at"`
}

// Actor identifies the subject of an Event.
type Actor struct {
	Kind       ActorKind              `json:"Kind"`
	Key        string                 `json:"Key,omitempty"`
	Attributes map[string]interface{} `json:"Attributes,omitempty"`
}

// Event is a bus message describing a state change (§3, §6 wire format).
type Event struct {
	Key                  string                 `json:"Key"`
	CreatedAt            time.Time              `json:"CreatedAt"`
	ExpiresAt            time.Time              `json:"ExpiresAt"`
	ReportingNode        string                 `json:"ReportingNode"`
	ReportingController  string                 `json:"ReportingController"`
	Kind                 EventKind              `json:"Kind"`
	Action               string                 `json:"Action"`
	Reason               string                 `json:"Reason"`
	Note                 string                 `json:"Note,omitempty"`
	Actor                *Actor                 `json:"Actor,omitempty"`
	Related              map[string]interface{} `json:"Related,omitempty"`
	Metadata             map[string]interface{} `json:"Metadata,omitempty"`
}

// Resource is a kind-scoped declarative object.
type ResourcePartial struct {
	Name string          `json:"Name" yaml:"Name"`
	Kind string          `json:"Kind" yaml:"Kind"` // "{domain}/{name}" or ".../vN"
	Data json.RawMessage `json:"Data" yaml:"Data"`
}

type Resource struct {
	Name      string          `json:"Name"`
	Kind      string          `json:"Kind"`
	CreatedAt time.Time       `json:"CreatedAt"`
	SpecKey   string          `json:"SpecKey"`
	Spec      *Spec           `json:"Spec,omitempty"`
}

// ResourceKind selects between two validation strategies: an inline JSON
// Schema or a delegated controller URL. Exactly one of Schema/URL is set.
type ResourceKindVersionData struct {
	Schema json.RawMessage `json:"Schema,omitempty"`
	URL    string          `json:"Url,omitempty"`
}

type ResourceKindVersion struct {
	Name      string                   `json:"Name"`
	Version   string                   `json:"Version"`
	CreatedAt time.Time                `json:"CreatedAt"`
	Data      ResourceKindVersionData  `json:"Data"`
}

type ResourceKind struct {
	Name      string    `json:"Name"`
	CreatedAt time.Time `json:"CreatedAt"`
}

// Secret holds an opaque, typed credential/env blob referenced by Cargoes.
const (
	SecretKindEnv = "nanocl.io/env"
	SecretKindTLS = "nanocl.io/tls"
)

type SecretTLS struct {
	Cert   string `json:"Cert"`
	CertKey string `json:"CertKey"`
	CertCA string `json:"CertCA,omitempty"`
}

type Secret struct {
	Key       string            `json:"Key" yaml:"Key"`
	Kind      string            `json:"Kind" yaml:"Kind"`
	Data      json.RawMessage   `json:"Data" yaml:"Data"`
	CreatedAt time.Time         `json:"CreatedAt" yaml:"CreatedAt,omitempty"`
	Metadata  map[string]string `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
}

// VmImage is an on-disk VM disk file; Bases may own Snapshots.
type VmImage struct {
	Name        string      `json:"Name" db:"name"`
	Kind        VmImageKind `json:"Kind" db:"kind"`
	Path        string      `json:"Path" db:"path"`
	Format      string      `json:"Format" db:"format"`
	SizeActual  int64       `json:"SizeActual" db:"size_actual"`
	SizeVirtual int64       `json:"SizeVirtual" db:"size_virtual"`
	Parent      *string     `json:"Parent,omitempty" db:"parent"`
	CreatedAt   time.Time   `json:"CreatedAt" db:"created_at"`
}

// StateStreamItem is one line of the /state/apply or /state/remove
// response stream.
type StateStreamItem struct {
	Key     string      `json:"Key"`
	Kind    StateKind   `json:"Kind"`
	Status  StateStatus `json:"Status"`
	Context string      `json:"Context,omitempty"`
}
