// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"fmt"
	"sync"
)

// TooLowGasLimitError reports a destination gas limit below the resolved
// policy floor, naming both values.
type TooLowGasLimitError struct {
	Min      uint64
	Supplied uint64
}

func (e *TooLowGasLimitError) Error() string {
	return fmt.Sprintf("gas limit too low: minimum %d, supplied %d", e.Min, e.Supplied)
}

// GasPolicy resolves the minimum acceptable destination gas limit for a
// (domain, packet type) pair from a two-level override table: a global base
// per packet type and a per-domain override. Zero means unset, not a genuine
// floor of zero; the effective floor is the larger of the two.
type GasPolicy struct {
	mu        sync.RWMutex
	base      map[PacketType]uint64
	perDomain map[uint32]map[PacketType]uint64
}

func NewGasPolicy() *GasPolicy {
	return &GasPolicy{
		base:      make(map[PacketType]uint64),
		perDomain: make(map[uint32]map[PacketType]uint64),
	}
}

// SetBaseMinGas sets the global floor for a packet type.
func (p *GasPolicy) SetBaseMinGas(pt PacketType, limit uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base[pt] = limit
}

// SetMinGas sets the per-domain floor for a packet type.
func (p *GasPolicy) SetMinGas(domain uint32, pt PacketType, limit uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.perDomain[domain] == nil {
		p.perDomain[domain] = make(map[PacketType]uint64)
	}
	p.perDomain[domain][pt] = limit
}

// BaseMinGas returns the global floor (0 if unset).
func (p *GasPolicy) BaseMinGas(pt PacketType) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.base[pt]
}

// MinGas returns the per-domain floor (0 if unset).
func (p *GasPolicy) MinGas(domain uint32, pt PacketType) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if m := p.perDomain[domain]; m != nil {
		return m[pt]
	}
	return 0
}

// Floor returns the effective minimum for the pair: max(base, perDomain).
func (p *GasPolicy) Floor(domain uint32, pt PacketType) uint64 {
	base := p.BaseMinGas(pt)
	if d := p.MinGas(domain, pt); d > base {
		return d
	}
	return base
}

// Require rejects a caller-supplied limit below the floor. With both levels
// unset the limit passes through unconstrained.
func (p *GasPolicy) Require(domain uint32, pt PacketType, supplied uint64) error {
	floor := p.Floor(domain, pt)
	if floor > 0 && supplied < floor {
		return &TooLowGasLimitError{Min: floor, Supplied: supplied}
	}
	return nil
}

// Effective clamps a limit up to the floor. Used where the limit arrived in
// a remote payload and rejecting it would only make every retry fail the
// same way.
func (p *GasPolicy) Effective(domain uint32, pt PacketType, supplied uint64) uint64 {
	if floor := p.Floor(domain, pt); supplied < floor {
		return floor
	}
	return supplied
}
