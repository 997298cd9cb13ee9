// config_* toggles the per-request verbosity flags Node carries directly
// (showCalls, resolveHashes, showStorageLogs) rather than anything owned
// by a core subsystem, since these only affect how this package logs a
// request, never chain state.
package rpc

func init() {
	registerMethods(map[string]handlerFunc{
		"config_setShowCalls":       configSetShowCalls,
		"config_setResolveHashes":   configSetResolveHashes,
		"config_setShowStorageLogs": configSetShowStorageLogs,
	})
}

func configSetShowCalls(n *Node, params []interface{}) (interface{}, error) {
	on, _ := paramAt(params, 0).(bool)
	n.mu.Lock()
	n.showCalls = on
	n.mu.Unlock()
	return true, nil
}

func configSetResolveHashes(n *Node, params []interface{}) (interface{}, error) {
	on, _ := paramAt(params, 0).(bool)
	n.mu.Lock()
	n.resolveHashes = on
	n.mu.Unlock()
	return true, nil
}

func configSetShowStorageLogs(n *Node, params []interface{}) (interface{}, error) {
	on, _ := paramAt(params, 0).(bool)
	n.mu.Lock()
	n.showStorageLogs = on
	n.mu.Unlock()
	return true, nil
}
