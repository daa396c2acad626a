package cache

import "fmt"

// Key prefixes, one per cached entity kind.
const (
	PrefixCargo = "cargo"
	PrefixVm    = "vm"
)

// CargoInspectKey caches a single cargo's InspectObjByPK result.
func CargoInspectKey(key string) string {
	return fmt.Sprintf("%s:inspect:%s", PrefixCargo, key)
}

// CargoListKey caches a cargo list page, one entry per distinct query
// string since the filter shapes the result set.
func CargoListKey(rawQuery string) string {
	return fmt.Sprintf("%s:list:%s", PrefixCargo, rawQuery)
}

// CargoNamespacePattern matches the cached cargo inspect entries whose
// key starts with the namespace. List entries are keyed by raw query
// string and are not matched; they expire with the TTL they were stored
// with.
func CargoNamespacePattern(namespace string) string {
	return fmt.Sprintf("%s:*:%s*", PrefixCargo, namespace)
}

// VmInspectKey caches a single VM's InspectObjByPK result.
func VmInspectKey(key string) string {
	return fmt.Sprintf("%s:inspect:%s", PrefixVm, key)
}

// VmListKey caches a VM list page.
func VmListKey(rawQuery string) string {
	return fmt.Sprintf("%s:list:%s", PrefixVm, rawQuery)
}

// VmNamespacePattern matches the cached VM inspect entries for a
// namespace; like CargoNamespacePattern it does not match list entries.
func VmNamespacePattern(namespace string) string {
	return fmt.Sprintf("%s:*:%s*", PrefixVm, namespace)
}
