package core

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
)

// countingFork answers every GetBalance with a fixed value while counting
// how many times it was actually dispatched, backing the state store's
// "fetched from the remote at most once" property.
type countingFork struct {
	balance *Amount
	calls   int
}

func (f *countingFork) GetBalance(_ context.Context, _ Address) (*Amount, error) {
	f.calls++
	return f.balance.Clone(), nil
}
func (f *countingFork) GetCode(_ context.Context, _ Address) ([]byte, error) { return nil, nil }
func (f *countingFork) GetStorageAt(_ context.Context, _ Address, _ Hash) (Hash, error) {
	return Hash{}, nil
}
func (f *countingFork) GetNonce(_ context.Context, _ Address) (uint64, error) { return 0, nil }
func (f *countingFork) ForkBlock() uint64                                    { return 1 }
func (f *countingFork) RequestCount() uint64                                 { return uint64(f.calls) }

func TestForkReadThroughFetchesOnce(t *testing.T) {
	s := newTestStore(t)
	fork := &countingFork{balance: uint256.NewInt(123)}
	s.AttachFork(fork)

	addr := Address{9}
	for i := 0; i < 5; i++ {
		got := s.GetBalance(addr)
		if got.Cmp(uint256.NewInt(123)) != 0 {
			t.Fatalf("GetBalance = %v, want 123", got)
		}
	}
	if fork.calls != 1 {
		t.Fatalf("fork.calls = %d, want 1 (cached after first miss)", fork.calls)
	}
}

func TestForkReadThroughIsBypassedAfterLocalWrite(t *testing.T) {
	s := newTestStore(t)
	fork := &countingFork{balance: uint256.NewInt(123)}
	s.AttachFork(fork)

	addr := Address{10}
	if err := s.SetBalance(addr, uint256.NewInt(5)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if got := s.GetBalance(addr); got.Cmp(uint256.NewInt(5)) != 0 {
		t.Fatalf("GetBalance = %v, want 5 (local write shadows fork)", got)
	}
	if fork.calls != 0 {
		t.Fatalf("fork.calls = %d, want 0, a local write should never consult the fork", fork.calls)
	}
}
