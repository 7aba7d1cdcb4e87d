// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

var ErrMarketLiquidity = errors.New("market liquidity too low")

// CollateralMarket is where the vault parks deposited assets. TotalAssetsOwned
// reports the vault's position including accrued yield; Deposit and Withdraw
// move assets between the vault's custody and the market.
type CollateralMarket interface {
	TotalAssetsOwned(owner common.Address) *big.Int
	Deposit(owner common.Address, assets *big.Int) error
	Withdraw(owner common.Address, assets *big.Int) error
}

// SavingsMarket is an interest-accruing market: positions grow when Accrue
// is called, simulating yield on the pooled collateral.
type SavingsMarket struct {
	mu        sync.RWMutex
	positions map[common.Address]*big.Int
}

func NewSavingsMarket() *SavingsMarket {
	return &SavingsMarket{positions: make(map[common.Address]*big.Int)}
}

func (m *SavingsMarket) TotalAssetsOwned(owner common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.positions[owner]; ok {
		return new(big.Int).Set(p)
	}
	return new(big.Int)
}

func (m *SavingsMarket) Deposit(owner common.Address, assets *big.Int) error {
	if assets.Sign() < 0 {
		return ErrMarketLiquidity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[owner]
	if !ok {
		p = new(big.Int)
		m.positions[owner] = p
	}
	p.Add(p, assets)
	return nil
}

func (m *SavingsMarket) Withdraw(owner common.Address, assets *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[owner]
	if !ok || p.Cmp(assets) < 0 {
		return ErrMarketLiquidity
	}
	p.Sub(p, assets)
	return nil
}

// Accrue grows every position by numerator/denominator, e.g. Accrue(owner, 5, 100)
// adds five percent yield to the owner's position.
func (m *SavingsMarket) Accrue(owner common.Address, numerator, denominator int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[owner]
	if !ok {
		return
	}
	gain := new(big.Int).Mul(p, big.NewInt(numerator))
	gain.Div(gain, big.NewInt(denominator))
	p.Add(p, gain)
}
