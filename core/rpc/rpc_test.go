package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"anvilzksync/core"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	store, err := core.NewStateStore(core.StateStoreConfig{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}
	index := core.NewChainIndex()
	clock := core.NewTimeOracle()
	fees := core.NewFeeOracle(1_000_000_000, 30_000_000)
	pool := core.NewMempool(store)
	cheats := core.NewCheatcodeRegistry(store, clock)
	snaps := core.NewSnapshotManager(store, index, pool, clock, fees)
	seq := core.NewSequencer(core.SequencerConfig{
		Store: store, Index: index, Pool: pool, Clock: clock, Fees: fees, Cheats: cheats, Snaps: snaps,
	})
	rich := core.GenerateRichAccounts()
	if err := core.SeedRichAccounts(store, rich); err != nil {
		t.Fatalf("SeedRichAccounts: %v", err)
	}
	return NewNode(NodeConfig{
		Store: store, Index: index, Pool: pool, Clock: clock, Fees: fees,
		Cheats: cheats, Snaps: snaps, Sequencer: seq, Rich: rich,
	})
}

func callMethod(t *testing.T, n *Node, method string, params ...interface{}) interface{} {
	t.Helper()
	h, ok := methodTable[method]
	if !ok {
		t.Fatalf("no handler registered for %s", method)
	}
	result, err := h(n, params)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return result
}

func TestEthChainIDAndBlockNumber(t *testing.T) {
	n := newTestNode(t)
	if got := callMethod(t, n, "eth_chainId"); got != "0x104" {
		t.Fatalf("eth_chainId = %v, want 0x104", got)
	}
	if got := callMethod(t, n, "eth_blockNumber"); got != "0x0" {
		t.Fatalf("eth_blockNumber = %v, want 0x0 before any block is sealed", got)
	}
}

func TestAnvilSetBalanceVisibleViaEthGetBalance(t *testing.T) {
	n := newTestNode(t)
	addr := n.rich[0].Address.Hex()
	callMethod(t, n, "anvil_setBalance", addr, "0x2540be400")
	got := callMethod(t, n, "eth_getBalance", addr, "latest")
	if got != "0x2540be400" {
		t.Fatalf("eth_getBalance = %v, want 0x2540be400", got)
	}
}

func TestSendTransactionSealsBlockUnderAutoMine(t *testing.T) {
	n := newTestNode(t)
	from := n.rich[0].Address.Hex()
	to := n.rich[1].Address.Hex()
	callMethod(t, n, "anvil_impersonateAccount", from)
	h := callMethod(t, n, "eth_sendTransaction", map[string]interface{}{
		"from": from, "to": to, "value": "0x1",
	})
	if h == "" {
		t.Fatal("expected a transaction hash")
	}
	if got := callMethod(t, n, "eth_blockNumber"); got != "0x1" {
		t.Fatalf("eth_blockNumber = %v, want 0x1 after auto-mined send", got)
	}
}

func TestEvmSnapshotRevertRoundTrips(t *testing.T) {
	n := newTestNode(t)
	addr := n.rich[0].Address.Hex()
	id := callMethod(t, n, "evm_snapshot")
	callMethod(t, n, "anvil_setBalance", addr, "0x5")
	if ok := callMethod(t, n, "evm_revert", id); ok != true {
		t.Fatalf("evm_revert returned %v, want true", ok)
	}
	got := callMethod(t, n, "eth_getBalance", addr, "latest")
	if got == "0x5" {
		t.Fatal("balance change should have been reverted")
	}
}

func TestEstimateGasBinarySearchesDownward(t *testing.T) {
	n := newTestNode(t)
	from := n.rich[0].Address.Hex()
	to := n.rich[1].Address.Hex()
	got := callMethod(t, n, "eth_estimateGas", map[string]interface{}{
		"from": from, "to": to, "value": "0x1",
	})
	s, ok := got.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		t.Fatalf("eth_estimateGas = %v, want a 0x-prefixed quantity", got)
	}
	if v, err := parseQuantity(s); err != nil || v >= defaultCallGas {
		t.Fatalf("eth_estimateGas = %v, want an estimate searched down below the %d ceiling", s, defaultCallGas)
	}
}

func TestServeHTTPDispatchesJSONRPC(t *testing.T) {
	n := newTestNode(t)
	srv := NewServer(n)
	body := `{"jsonrpc":"2.0","id":1,"method":"eth_chainId","params":[]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	var resp rpcResponse
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	if resp.Result != "0x104" {
		t.Fatalf("result = %v, want 0x104", resp.Result)
	}
}

func TestUnknownMethodReturnsError(t *testing.T) {
	n := newTestNode(t)
	srv := NewServer(n)
	body := `{"jsonrpc":"2.0","id":1,"method":"nope_notAMethod","params":[]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	var resp rpcResponse
	if err := json.NewDecoder(rw.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected an error for an unregistered method")
	}
}
