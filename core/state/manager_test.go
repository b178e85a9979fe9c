package state

import (
	"math/big"
	"testing"

	"veritynet/storage"
)

type kvRecord struct {
	Name  string
	Count uint64
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestKVRoundTrip(t *testing.T) {
	m := newTestManager(t)

	found, err := m.KVGet([]byte("missing"), nil)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Fatalf("expected missing key")
	}

	in := kvRecord{Name: "topic", Count: 7}
	if err := m.KVPut([]byte("record/1"), &in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out kvRecord
	found, err = m.KVGet([]byte("record/1"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected key to exist")
	}
	if out.Name != in.Name || out.Count != in.Count {
		t.Fatalf("unexpected record: %+v", out)
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	m := newTestManager(t)
	key := []byte("index/attesters")

	if err := m.KVAppend(key, []byte{0xaa}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.KVAppend(key, []byte{0xbb}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.KVAppend(key, []byte{0xaa}); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}

	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0][0] != 0xaa || list[1][0] != 0xbb {
		t.Fatalf("unexpected order: %v", list)
	}
}

func TestKVGetListMissingYieldsEmpty(t *testing.T) {
	m := newTestManager(t)
	list := [][]byte{{0x01}}
	if err := m.KVGetList([]byte("index/none"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
}

func TestNextIDMonotonic(t *testing.T) {
	m := newTestManager(t)
	for want := uint64(1); want <= 3; want++ {
		got, err := m.NextID("assertion")
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if got != want {
			t.Fatalf("expected id %d, got %d", want, got)
		}
	}
	other, err := m.NextID("dispute")
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if other != 1 {
		t.Fatalf("counters must be independent, got %d", other)
	}
}

func TestTransactionCommitAndAbort(t *testing.T) {
	m := newTestManager(t)

	if err := m.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := m.Begin(); err == nil {
		t.Fatalf("expected nested begin to fail")
	}
	if err := m.KVPut([]byte("pending"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	var val uint64
	found, err := m.KVGet([]byte("pending"), &val)
	if err != nil || !found || val != 1 {
		t.Fatalf("expected read-your-write, found=%v val=%d err=%v", found, val, err)
	}
	m.Abort()

	found, err = m.KVGet([]byte("pending"), &val)
	if err != nil {
		t.Fatalf("get after abort: %v", err)
	}
	if found {
		t.Fatalf("aborted write must not persist")
	}

	if err := m.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := m.KVPut([]byte("pending"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	found, err = m.KVGet([]byte("pending"), &val)
	if err != nil || !found || val != 2 {
		t.Fatalf("committed write lost, found=%v val=%d err=%v", found, val, err)
	}
}

func TestAccountDefaultsAndRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := make([]byte, 20)
	addr[19] = 0x01

	account, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.BalanceVNT.Sign() != 0 || account.PendingRewards.Sign() != 0 {
		t.Fatalf("expected zeroed account, got %+v", account)
	}

	account.Nonce = 4
	account.BalanceVNT = big.NewInt(1500)
	account.PendingRewards = big.NewInt(25)
	if err := m.PutAccount(addr, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reloaded, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.Nonce != 4 || reloaded.BalanceVNT.Cmp(big.NewInt(1500)) != 0 || reloaded.PendingRewards.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("unexpected account: %+v", reloaded)
	}
}

func TestCounterSurvivesTransaction(t *testing.T) {
	m := newTestManager(t)
	if err := m.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.NextID("assertion"); err != nil {
		t.Fatalf("next id: %v", err)
	}
	m.Abort()

	got, err := m.NextID("assertion")
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if got != 1 {
		t.Fatalf("aborted increment must not persist, got %d", got)
	}
}

func TestParamStoreRoundTrip(t *testing.T) {
	m := newTestManager(t)

	_, found, err := m.ParamStoreGet("assert.minAssertionStake")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected unset parameter")
	}

	if err := m.ParamStoreSet("assert.minAssertionStake", []byte(`"100"`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, found, err := m.ParamStoreGet("assert.minAssertionStake")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || string(value) != `"100"` {
		t.Fatalf("unexpected value %q found=%v", value, found)
	}
}
