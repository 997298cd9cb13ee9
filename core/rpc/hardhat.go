// hardhat_* is Hardhat Network's naming for the same admin surface
// anvil_* exposes; every handler here is the identical Go function, not a
// wrapper, so the two namespaces can never drift apart.
package rpc

import "anvilzksync/core"

func init() {
	registerMethods(map[string]handlerFunc{
		"hardhat_setBalance":                  anvilSetBalance,
		"hardhat_setNonce":                    anvilSetNonce,
		"hardhat_setCode":                     anvilSetCode,
		"hardhat_setStorageAt":                anvilSetStorageAt,
		"hardhat_setNextBlockBaseFeePerGas":    anvilSetNextBlockBaseFeePerGas,
		"hardhat_impersonateAccount":           anvilImpersonateAccount,
		"hardhat_stopImpersonatingAccount":     anvilStopImpersonatingAccount,
		"hardhat_mine":                         evmMine,
		"hardhat_reset":                        hardhatReset,
	})
}

// hardhat_reset is not supported on a running node (it has no upstream
// provider to re-fork from on every call), so it always returns an error;
// a fork-target reset is done by restarting with `fork`/`replay_tx`.
func hardhatReset(n *Node, _ []interface{}) (interface{}, error) {
	return nil, core.NewError(core.KindEnvironment, "hardhat_reset", "not supported on a running node; restart with `fork` or `replay_tx` instead")
}
