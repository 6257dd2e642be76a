// Package wallet tracks on-chain wallet balances behind a TTL cache so
// repeated refetch triggers do not translate into redundant RPC calls.
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/wallet"
	"github.com/Van103/fun-charity-sub001/internal/app/metrics"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// DefaultTTL is how long a fetched balance stays fresh.
const DefaultTTL = 5 * time.Minute

// nativeDecimals is the native coin precision (wei).
const nativeDecimals = 18

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether addr is a 0x-prefixed 40-hex-digit address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// BalanceReader reads balances from the chain.
type BalanceReader interface {
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	TokenBalance(ctx context.Context, token, address string) (*big.Int, error)
}

// Tracker caches the balance of one wallet address. Nothing is fetched at
// construction; callers drive fetches through Refetch. Each tracker owns its
// snapshot exclusively.
type Tracker struct {
	chain       BalanceReader
	log         *logger.Logger
	ttl         time.Duration
	approxPrice float64
	token       string
	now         func() time.Time

	mu        sync.Mutex
	address   string
	snap      wallet.Snapshot
	lastFetch time.Time
	loading   bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL overrides the cache freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithApproxPrice sets the fixed native-to-USD conversion rate. The derived
// USD figure is a display estimate, not a live quote.
func WithApproxPrice(price float64) Option {
	return func(t *Tracker) { t.approxPrice = price }
}

// WithToken also includes the balance of the given token contract in the
// tracked amount. A failing token read degrades to zero instead of failing
// the whole fetch.
func WithToken(contract string) Option {
	return func(t *Tracker) { t.token = contract }
}

// NewTracker creates a tracker for the address. The address is validated on
// each fetch, not here, so an empty or not-yet-connected wallet is
// representable.
func NewTracker(chain BalanceReader, address string, log *logger.Logger, opts ...Option) *Tracker {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	t := &Tracker{
		chain:   chain,
		log:     log,
		ttl:     DefaultTTL,
		now:     time.Now,
		address: strings.TrimSpace(address),
	}
	t.snap.Address = t.address
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot returns a copy of the cached balance state.
func (t *Tracker) Snapshot() wallet.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.snap
	snap.Loading = t.loading
	return snap
}

// Refetch fetches the balance unless the cached value is still fresh. With
// force the TTL gate is bypassed. An invalid or empty address is treated as
// not-yet-ready and leaves state untouched. Transport failures surface in
// the snapshot's Err field; previous amounts are kept.
func (t *Tracker) Refetch(ctx context.Context, force bool) wallet.Snapshot {
	t.mu.Lock()
	address := t.address
	if !ValidAddress(address) {
		snap := t.snap
		t.mu.Unlock()
		return snap
	}
	if t.loading {
		snap := t.snap
		snap.Loading = true
		t.mu.Unlock()
		return snap
	}
	if !force && !t.lastFetch.IsZero() && t.now().Sub(t.lastFetch) < t.ttl {
		metrics.RecordBalanceCacheHit()
		snap := t.snap
		t.mu.Unlock()
		return snap
	}
	t.loading = true
	t.mu.Unlock()

	native, err := t.chain.NativeBalance(ctx, address)
	var total *big.Int
	if err == nil {
		total = new(big.Int).Set(native)
		if t.token != "" {
			tokenBal, tokenErr := t.chain.TokenBalance(ctx, t.token, address)
			if tokenErr != nil {
				// Secondary sub-query degrades to zero rather than aborting.
				t.log.WithError(tokenErr).WithField("token", t.token).Warn("token balance degraded to zero")
			} else if tokenBal != nil {
				total.Add(total, tokenBal)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false

	if err != nil {
		// Primary query failed: keep the previous amounts, surface the error.
		t.snap.Err = err.Error()
		t.log.WithError(err).WithField("address", address).Warn("balance fetch failed")
		metrics.RecordBalanceFetch("error")
		return t.snap
	}

	amount := FormatUnits(total, nativeDecimals)
	t.snap = wallet.Snapshot{
		Address:   address,
		Amount:    amount,
		USDApprox: approxUSD(amount, t.approxPrice),
		FetchedAt: t.now().UTC(),
	}
	t.lastFetch = t.now()
	metrics.RecordBalanceFetch("ok")
	return t.snap
}

// FormatUnits renders a raw integer balance as a decimal string with the
// given number of fractional digits, trimming trailing zeros.
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	raw := v.String()
	negative := strings.HasPrefix(raw, "-")
	if negative {
		raw = raw[1:]
	}
	if len(raw) <= decimals {
		raw = strings.Repeat("0", decimals-len(raw)+1) + raw
	}
	split := len(raw) - decimals
	whole, frac := raw[:split], raw[split:]
	frac = strings.TrimRight(frac, "0")
	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if negative {
		out = "-" + out
	}
	return out
}

// approxUSD multiplies a decimal amount by the fixed configured price.
func approxUSD(amount string, price float64) string {
	if price <= 0 {
		return "0"
	}
	value, ok := new(big.Float).SetString(amount)
	if !ok {
		return "0"
	}
	value.Mul(value, big.NewFloat(price))
	return fmt.Sprintf("%.2f", value)
}
