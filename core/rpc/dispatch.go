package rpc

// methodTable maps a JSON-RPC method name to its handler. Each *.go file in
// this package registers its own slice of methods from an init func so the
// table's population order follows the file layout, not a single giant
// literal.
var methodTable = make(map[string]handlerFunc)

func registerMethods(m map[string]handlerFunc) {
	for name, h := range m {
		methodTable[name] = h
	}
}

const defaultCallGas uint64 = 30_000_000
