// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token models the fungible balances the vault system moves around:
// an ERC20-style asset with allowances, and the native currency bank used to
// pay relay fees and airdrops. Both are deliberately small; the real assets
// live outside this module and these types stand in for them.
package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrInsufficientNative    = errors.New("insufficient native balance")
)

// Token is the minimal fungible-token surface the gateway, hub and vault
// need. Transfer moves the caller's own funds; TransferFrom spends an
// allowance granted by owner to spender.
type Token interface {
	BalanceOf(addr common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, owner, to common.Address, amount *big.Int) error
	Approve(owner, spender common.Address, amount *big.Int)
	Allowance(owner, spender common.Address) *big.Int
	Mint(to common.Address, amount *big.Int)
}

// MemToken is an in-memory Token.
type MemToken struct {
	mu         sync.RWMutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func NewMemToken() *MemToken {
	return &MemToken{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *MemToken) BalanceOf(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (t *MemToken) Mint(to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amount)
}

func (t *MemToken) Transfer(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

func (t *MemToken) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowance(owner, spender)
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.move(owner, to, amount); err != nil {
		return err
	}
	t.allowances[owner][spender] = new(big.Int).Sub(allowed, amount)
	return nil
}

func (t *MemToken) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (t *MemToken) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.allowance(owner, spender))
}

func (t *MemToken) allowance(owner, spender common.Address) *big.Int {
	if t.allowances[owner] == nil {
		return big.NewInt(0)
	}
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return big.NewInt(0)
}

func (t *MemToken) move(from, to common.Address, amount *big.Int) error {
	bal := t.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.balances[from] = new(big.Int).Sub(bal, amount)
	t.credit(to, amount)
	return nil
}

func (t *MemToken) credit(to common.Address, amount *big.Int) {
	if b, ok := t.balances[to]; ok {
		t.balances[to] = new(big.Int).Add(b, amount)
	} else {
		t.balances[to] = new(big.Int).Set(amount)
	}
}

// Bank tracks native-currency balances on one domain. Relay fees, airdrops
// and refunds all settle through it.
type Bank struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
}

func NewBank() *Bank {
	return &Bank{balances: make(map[common.Address]*uint256.Int)}
}

func (b *Bank) BalanceOf(addr common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.balances[addr]; ok {
		return v.ToBig()
	}
	return big.NewInt(0)
}

// Credit adds amount to addr.
func (b *Bank) Credit(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(addr, amount)
}

// Debit removes amount from addr, failing without mutation if the balance
// does not cover it.
func (b *Bank) Debit(addr common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debit(addr, amount)
}

// Transfer moves amount between two accounts atomically.
func (b *Bank) Transfer(from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.credit(to, amount)
	return nil
}

func (b *Bank) credit(addr common.Address, amount *big.Int) {
	v, _ := uint256.FromBig(amount)
	if cur, ok := b.balances[addr]; ok {
		b.balances[addr] = new(uint256.Int).Add(cur, v)
	} else {
		b.balances[addr] = v
	}
}

func (b *Bank) debit(addr common.Address, amount *big.Int) error {
	v, _ := uint256.FromBig(amount)
	cur, ok := b.balances[addr]
	if !ok || cur.Lt(v) {
		return ErrInsufficientNative
	}
	b.balances[addr] = new(uint256.Int).Sub(cur, v)
	return nil
}
