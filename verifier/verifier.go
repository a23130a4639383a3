// Package verifier reconciles client-supplied transaction references against
// confirmed ToolCalled events emitted by the ToolRegistry contract.
package verifier

import (
	"context"
	"errors"
	"time"

	"github.com/andrewreder/toolfi/go-api/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Reason explains why a reference did not verify.
type Reason string

const (
	ReasonMalformedReference Reason = "malformed_reference"
	ReasonTxNotFound         Reason = "tx_not_found"
	ReasonTxFailed           Reason = "tx_failed"
	ReasonWrongContract      Reason = "wrong_contract"
	ReasonNoMatchingEvent    Reason = "no_matching_event"
	ReasonToolMismatch       Reason = "tool_mismatch"
	ReasonChainUnavailable   Reason = "chain_unavailable"
)

// Retryable reports whether the same reference may verify on a later attempt
// without the caller doing anything new.
func (r Reason) Retryable() bool {
	return r == ReasonChainUnavailable
}

// Message is a short human readable explanation of r.
func (r Reason) Message() string {
	switch r {
	case ReasonMalformedReference:
		return "payment reference is not a transaction hash"
	case ReasonTxNotFound:
		return "transaction not found or not yet confirmed"
	case ReasonTxFailed:
		return "transaction reverted"
	case ReasonWrongContract:
		return "transaction was not sent to the tool registry"
	case ReasonNoMatchingEvent:
		return "transaction carries no ToolCalled event"
	case ReasonToolMismatch:
		return "transaction paid for a different tool"
	case ReasonChainUnavailable:
		return "chain unavailable, retry later"
	default:
		return string(r)
	}
}

// Payment is a verified payment for one tool call.
type Payment struct {
	ToolID     uint64         `json:"toolId"`
	Caller     common.Address `json:"caller"`
	TxRef      string         `json:"txRef"`
	VerifiedAt time.Time      `json:"verifiedAt"`
}

// Result is the outcome of Verify. Payment is set only when Verified.
type Result struct {
	Verified bool
	Payment  *Payment
	Reason   Reason
}

func rejected(reason Reason) Result {
	return Result{Reason: reason}
}

// Verifier answers whether a transaction paid the registry for a tool.
type Verifier struct {
	source   chain.Source
	registry common.Address
	cache    Cache
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	group singleflight.Group
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(v *Verifier) { v.cache = c }
}

// WithTimeout bounds each chain lookup.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) { v.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// WithClock overrides the clock stamping VerifiedAt.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// New returns a Verifier that accepts only transactions sent to, and events
// emitted by, the registry address.
func New(source chain.Source, registry common.Address, opts ...Option) *Verifier {
	v := &Verifier{
		source:   source,
		registry: registry,
		timeout:  10 * time.Second,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.cache == nil {
		v.cache = NewMemoryCache(24*time.Hour, 100_000)
	}
	return v
}

// Registry returns the registry address payments must target.
func (v *Verifier) Registry() common.Address {
	return v.registry
}

// Verify checks that txRef is a successful registry transaction carrying a
// ToolCalled event for expectedToolID. A verified reference stays bound to
// that tool for as long as the cache remembers it. Chain errors never verify.
func (v *Verifier) Verify(ctx context.Context, txRef string, expectedToolID uint64) Result {
	hash, err := chain.ParseTxHash(txRef)
	if err != nil {
		return rejected(ReasonMalformedReference)
	}
	ref := hash.Hex()
	log := v.log.With().Str("tx", ref).Uint64("tool_id", expectedToolID).Logger()

	if cached, ok, err := v.cache.Get(ctx, ref); err != nil {
		log.Warn().Err(err).Msg("verification cache lookup failed")
	} else if ok {
		return v.bound(cached, expectedToolID)
	}

	out, err := v.fetch(ctx, hash)
	if errors.Is(err, chain.ErrTxNotFound) {
		return rejected(ReasonTxNotFound)
	}
	if err != nil {
		log.Warn().Err(err).Msg("chain lookup failed")
		return rejected(ReasonChainUnavailable)
	}
	if !out.Success {
		return rejected(ReasonTxFailed)
	}
	if out.To != v.registry {
		return rejected(ReasonWrongContract)
	}

	called, reason := v.match(out, expectedToolID)
	if called == nil {
		log.Debug().Str("reason", string(reason)).Msg("no payment event for tool")
		return rejected(reason)
	}

	winner, err := v.cache.PutIfAbsent(ctx, ref, Payment{
		ToolID:     expectedToolID,
		Caller:     called.Caller,
		TxRef:      ref,
		VerifiedAt: v.now().UTC(),
	})
	if err != nil {
		// The chain proved the payment; a cache outage only loses idempotence.
		log.Warn().Err(err).Msg("verification cache write failed")
		winner = Payment{ToolID: expectedToolID, Caller: called.Caller, TxRef: ref, VerifiedAt: v.now().UTC()}
	}
	log.Debug().Str("caller", winner.Caller.Hex()).Msg("payment verified")
	return v.bound(winner, expectedToolID)
}

func (v *Verifier) bound(p Payment, expectedToolID uint64) Result {
	if p.ToolID != expectedToolID {
		return rejected(ReasonToolMismatch)
	}
	return Result{Verified: true, Payment: &p}
}

// match returns the first ToolCalled event for toolID emitted by the
// registry. Logs from other emitters and logs of other shapes are skipped.
func (v *Verifier) match(out *chain.Outcome, toolID uint64) (*chain.ToolCalled, Reason) {
	reason := ReasonNoMatchingEvent
	for _, lg := range out.Logs {
		if lg == nil || lg.Address != v.registry {
			continue
		}
		called, err := chain.DecodeToolCalled(lg)
		if err != nil {
			continue
		}
		if called.ToolID.IsUint64() && called.ToolID.Uint64() == toolID {
			return called, ""
		}
		reason = ReasonToolMismatch
	}
	return nil, reason
}

// fetch shares one chain lookup between concurrent callers of the same hash.
// The lookup runs detached from any single caller's cancellation; each caller
// still stops waiting when its own context ends.
func (v *Verifier) fetch(ctx context.Context, hash common.Hash) (*chain.Outcome, error) {
	ch := v.group.DoChan(hash.Hex(), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return v.source.TransactionOutcome(lookupCtx, hash)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*chain.Outcome), nil
	}
}
