// Fee Oracle: tracks the current base fee and retargets it after every
// sealed block using an EIP-1559-shaped controller — gas used above the
// target pushes the fee up, below pushes it down, bounded by a maximum
// per-block swing so a single empty or full block cannot move the fee by
// more than 12.5%, mirroring the teacher's gas_table retargeting notes
// generalized from a flat per-opcode schedule to a whole-block fee market.
package core

import (
	"sync"

	"github.com/holiman/uint256"
)

const (
	feeDenominator  = 8 // 1/8 = 12.5% max swing per block
	defaultGasLimit = 30_000_000
	targetGasRatio  = 2 // target = gasLimit / targetGasRatio
)

type FeeOracle struct {
	mu       sync.Mutex
	baseFee  *Amount
	gasLimit uint64
	override *Amount // admin-forced next-block base fee, consumed on use
}

// NewFeeOracle starts the fee market at startFee wei with the given block
// gas limit.
func NewFeeOracle(startFee uint64, gasLimit uint64) *FeeOracle {
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	return &FeeOracle{baseFee: uint256.NewInt(startFee), gasLimit: gasLimit}
}

// CurrentBaseFee returns the fee that will apply to the next block.
func (f *FeeOracle) CurrentBaseFee() *Amount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseFee.Clone()
}

// SetNextBaseFee overrides the fee for the next block only, the admin
// primitive behind anvil_setNextBlockBaseFeePerGas.
func (f *FeeOracle) SetNextBaseFee(fee *Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override = fee.Clone()
}

// Retarget computes the next block's base fee from how much gas the just-
// sealed block used, then applies it (or the pending override, which wins
// outright and clears itself).
func (f *FeeOracle) Retarget(gasUsed uint64) *Amount {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.override != nil {
		f.baseFee = f.override
		f.override = nil
		return f.baseFee.Clone()
	}
	target := f.gasLimit / targetGasRatio
	switch {
	case gasUsed == target:
		// unchanged
	case gasUsed > target:
		delta := f.baseFee.Uint64()*(gasUsed-target)/target/feeDenominator + 1
		f.baseFee = uint256.NewInt(f.baseFee.Uint64() + delta)
	default:
		delta := f.baseFee.Uint64() * (target - gasUsed) / target / feeDenominator
		next := f.baseFee.Uint64()
		if delta >= next {
			next = 1
		} else {
			next -= delta
		}
		f.baseFee = uint256.NewInt(next)
	}
	return f.baseFee.Clone()
}

type feeSnapshot struct {
	baseFee *Amount
}

func (f *FeeOracle) snapshot() *feeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &feeSnapshot{baseFee: f.baseFee.Clone()}
}

func (f *FeeOracle) restore(s *feeSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseFee = s.baseFee
}
