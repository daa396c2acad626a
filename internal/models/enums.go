package models

// ObjPsStatusValue is one of the closed set of object lifecycle states.
type ObjPsStatusValue string

const (
	StatusCreate  ObjPsStatusValue = "Create"
	StatusStart   ObjPsStatusValue = "Start"
	StatusStop    ObjPsStatusValue = "Stop"
	StatusUpdate  ObjPsStatusValue = "Update"
	StatusFinish  ObjPsStatusValue = "Finish"
	StatusFail    ObjPsStatusValue = "Fail"
	StatusDestroy ObjPsStatusValue = "Destroy"
	StatusUnknown ObjPsStatusValue = "Unknown"
)

// EventKind classifies an Event's severity.
type EventKind string

const (
	EventKindNormal  EventKind = "Normal"
	EventKindWarning EventKind = "Warning"
	EventKindError   EventKind = "Error"
)

// ActorKind identifies the domain entity an Event or Actor refers to.
type ActorKind string

const (
	ActorCargo         ActorKind = "Cargo"
	ActorVm            ActorKind = "Vm"
	ActorJob           ActorKind = "Job"
	ActorNamespace     ActorKind = "Namespace"
	ActorSecret        ActorKind = "Secret"
	ActorResource      ActorKind = "Resource"
	ActorResourceKind  ActorKind = "ResourceKind"
	ActorProcess       ActorKind = "Process"
)

// ProcessKind identifies which object kind a Process instance belongs to.
type ProcessKind string

const (
	ProcessKindCargo ProcessKind = "Cargo"
	ProcessKindVm    ProcessKind = "Vm"
	ProcessKindJob   ProcessKind = "Job"
)

// VmImageKind distinguishes a Base disk image from a Snapshot derived from one.
type VmImageKind string

const (
	VmImageBase     VmImageKind = "Base"
	VmImageSnapshot VmImageKind = "Snapshot"
)

// StateStatus is the per-item status emitted by /state/apply and /state/remove.
type StateStatus string

const (
	StatePending   StateStatus = "Pending"
	StateFailed    StateStatus = "Failed"
	StateSuccess   StateStatus = "Success"
	StateNotFound  StateStatus = "NotFound"
	StateUnChanged StateStatus = "UnChanged"
)

// StateKind is the kind discriminator of a StateStream item.
type StateKind string

const (
	StateKindCargo          StateKind = "Cargo"
	StateKindVirtualMachine StateKind = "VirtualMachine"
	StateKindResource       StateKind = "Resource"
	StateKindSecret         StateKind = "Secret"
	StateKindJob            StateKind = "Job"
	StateKindNamespace      StateKind = "Namespace"
	StateKindResourceKind   StateKind = "ResourceKind"
)

// NativeEventAction is the reconciler-facing action derived from an Event's
// Reason/Action pair for a given actor kind.
type NativeEventAction string

const (
	ActionStarting   NativeEventAction = "starting"
	ActionStopping   NativeEventAction = "stopping"
	ActionUpdating   NativeEventAction = "updating"
	ActionDestroying NativeEventAction = "destroying"
	ActionDie        NativeEventAction = "die"
	ActionCreate     NativeEventAction = "create"
)
