package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

type fakeChain struct {
	nativeCalls int
	tokenCalls  int
	native      *big.Int
	nativeErr   error
	token       *big.Int
	tokenErr    error
}

func (f *fakeChain) NativeBalance(context.Context, string) (*big.Int, error) {
	f.nativeCalls++
	return f.native, f.nativeErr
}

func (f *fakeChain) TokenBalance(context.Context, string, string) (*big.Int, error) {
	f.tokenCalls++
	return f.token, f.tokenErr
}

const addr = "0x52908400098527886E0F7030069857D2E4169EE7"

func TestValidAddress(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{addr, true},
		{"0x" + "a1b2c3d4e5f6a7b8c9d0a1b2c3d4e5f6a7b8c9d0", true},
		{"", false},
		{"0xZZZ", false},
		{"0x1234", false},
		{addr + "ab", false},
		{addr[2:], false},
	}
	for _, tc := range cases {
		if got := ValidAddress(tc.addr); got != tc.want {
			t.Fatalf("ValidAddress(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestTracker_TTLGate(t *testing.T) {
	chain := &fakeChain{native: big.NewInt(2e18)}
	tracker := NewTracker(chain, addr, nil, WithApproxPrice(300))

	clock := time.Now()
	tracker.now = func() time.Time { return clock }

	snap := tracker.Refetch(context.Background(), false)
	if chain.nativeCalls != 1 {
		t.Fatalf("expected 1 remote call, got %d", chain.nativeCalls)
	}
	if snap.Amount != "2" || snap.USDApprox != "600.00" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Within the TTL the second unforced refetch is answered from cache.
	clock = clock.Add(time.Minute)
	tracker.Refetch(context.Background(), false)
	if chain.nativeCalls != 1 {
		t.Fatalf("cache bypassed: %d remote calls", chain.nativeCalls)
	}

	// Force always fetches.
	tracker.Refetch(context.Background(), true)
	if chain.nativeCalls != 2 {
		t.Fatalf("force ignored: %d remote calls", chain.nativeCalls)
	}

	// After the TTL an unforced refetch fetches again.
	clock = clock.Add(DefaultTTL)
	tracker.Refetch(context.Background(), false)
	if chain.nativeCalls != 3 {
		t.Fatalf("TTL expiry ignored: %d remote calls", chain.nativeCalls)
	}
}

func TestTracker_InvalidAddressNeverFetches(t *testing.T) {
	for _, bad := range []string{"", "0xZZZ", "not-an-address", "0x1234"} {
		chain := &fakeChain{native: big.NewInt(1)}
		tracker := NewTracker(chain, bad, nil)

		before := tracker.Snapshot()
		after := tracker.Refetch(context.Background(), true)
		if chain.nativeCalls != 0 {
			t.Fatalf("address %q triggered a remote call", bad)
		}
		if after != before {
			t.Fatalf("address %q changed state: %+v -> %+v", bad, before, after)
		}
	}
}

func TestTracker_NoFetchOnConstruction(t *testing.T) {
	chain := &fakeChain{native: big.NewInt(1)}
	tracker := NewTracker(chain, addr, nil)
	if chain.nativeCalls != 0 {
		t.Fatalf("constructor fetched: %d calls", chain.nativeCalls)
	}
	if snap := tracker.Snapshot(); snap.Amount != "" || snap.Loading {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
}

func TestTracker_PrimaryFailureKeepsAmounts(t *testing.T) {
	chain := &fakeChain{native: big.NewInt(5e17)}
	tracker := NewTracker(chain, addr, nil)

	first := tracker.Refetch(context.Background(), true)
	if first.Amount != "0.5" || first.Err != "" {
		t.Fatalf("unexpected first snapshot: %+v", first)
	}

	chain.nativeErr = errors.New("rpc unreachable")
	second := tracker.Refetch(context.Background(), true)
	if second.Err == "" {
		t.Fatal("expected error surfaced in snapshot")
	}
	if second.Amount != "0.5" {
		t.Fatalf("previous amount lost on failure: %+v", second)
	}

	// Recovery clears the error.
	chain.nativeErr = nil
	third := tracker.Refetch(context.Background(), true)
	if third.Err != "" || third.Amount != "0.5" {
		t.Fatalf("error not cleared after recovery: %+v", third)
	}
}

func TestTracker_TokenSubQueryDegradesToZero(t *testing.T) {
	chain := &fakeChain{
		native:   big.NewInt(1e18),
		tokenErr: errors.New("contract reverted"),
	}
	tracker := NewTracker(chain, addr, nil, WithToken("0x0000000000000000000000000000000000000001"))

	snap := tracker.Refetch(context.Background(), true)
	if snap.Err != "" {
		t.Fatalf("token failure aborted the fetch: %+v", snap)
	}
	if snap.Amount != "1" {
		t.Fatalf("token failure did not degrade to zero: %+v", snap)
	}

	chain.tokenErr = nil
	chain.token = big.NewInt(5e17)
	snap = tracker.Refetch(context.Background(), true)
	if snap.Amount != "1.5" {
		t.Fatalf("token balance not included: %+v", snap)
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		raw      string
		decimals int
		want     string
	}{
		{"0", 18, "0"},
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"-2500000000000000000", 18, "-2.5"},
		{"12345", 0, "12345"},
	}
	for _, tc := range cases {
		v, ok := new(big.Int).SetString(tc.raw, 10)
		if !ok {
			t.Fatalf("bad raw %q", tc.raw)
		}
		if got := FormatUnits(v, tc.decimals); got != tc.want {
			t.Fatalf("FormatUnits(%s, %d) = %q, want %q", tc.raw, tc.decimals, got, tc.want)
		}
	}
}
