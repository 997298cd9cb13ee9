// Rich accounts: the ten deterministically-derived, pre-funded genesis
// accounts every fresh node starts with, so a test suite can pick up a
// known private key instead of minting its own account first.
package core

import (
	"crypto/sha256"

	"github.com/holiman/uint256"
)

const numRichAccounts = 10

var richAccountSeedBalance = uint256.MustFromDecimal("10000000000000000000000") // 10,000 ether

// GenerateRichAccounts derives numRichAccounts accounts from a fixed
// mnemonic-shaped seed so every fresh node (and every test run) sees the
// same addresses in the same order.
func GenerateRichAccounts() []RichAccount {
	out := make([]RichAccount, 0, numRichAccounts)
	for i := 0; i < numRichAccounts; i++ {
		seed := sha256.Sum256([]byte{'a', 'n', 'v', 'i', 'l', byte(i)})
		var addr Address
		addrHash := sha256.Sum256(seed[:])
		copy(addr[:], addrHash[:20])
		out = append(out, RichAccount{Address: addr, PrivateKey: seed})
	}
	return out
}

// SeedRichAccounts credits every rich account with the standard starting
// balance, run once at node startup.
func SeedRichAccounts(store *StateStore, accounts []RichAccount) error {
	for _, acc := range accounts {
		if err := store.SetBalance(acc.Address, richAccountSeedBalance.Clone()); err != nil {
			return err
		}
	}
	return nil
}
