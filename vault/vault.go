// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault implements a yield-bearing share vault over an underlying
// asset token. Deposited assets are parked in a collateral market; shares
// appreciate as the market position accrues. Share prices are computed
// against a snapshot taken before any balances move, with rounding always
// in the vault's favor.
package vault

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/lz-asia/oChai/event"
	"github.com/lz-asia/oChai/token"
)

var (
	ErrInvalidReceiver      = errors.New("invalid receiver")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrInsufficientApproval = errors.New("insufficient share allowance")
)

// DepositEvent records a deposit or mint.
type DepositEvent struct {
	Caller common.Address
	Owner  common.Address
	Assets *big.Int
	Shares *big.Int
}

func (DepositEvent) Name() string { return "Deposit" }

// WithdrawEvent records a withdraw or redeem.
type WithdrawEvent struct {
	Caller   common.Address
	Receiver common.Address
	Owner    common.Address
	Assets   *big.Int
	Shares   *big.Int
}

func (WithdrawEvent) Name() string { return "Withdraw" }

type Vault struct {
	mu          sync.RWMutex
	asset       token.Token
	market      CollateralMarket
	self        common.Address
	shares      map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalShares *big.Int
	emit        event.Emitter
}

// New creates a vault custodied at self. The vault acts as the market's
// position owner and as the spender pulling assets from depositors, so
// depositors approve self on the asset token.
func New(asset token.Token, market CollateralMarket, self common.Address, emit event.Emitter) *Vault {
	if emit == nil {
		emit = event.Discard
	}
	return &Vault{
		asset:       asset,
		market:      market,
		self:        self,
		shares:      make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalShares: new(big.Int),
		emit:        emit,
	}
}

func (v *Vault) Address() common.Address { return v.self }

func (v *Vault) TotalAssets() *big.Int {
	return v.market.TotalAssetsOwned(v.self)
}

func (v *Vault) TotalShares() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.totalShares)
}

func (v *Vault) BalanceOf(owner common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if b, ok := v.shares[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Snapshot freezes the current exchange rate.
func (v *Vault) Snapshot() Snapshot {
	return Snapshot{TotalAssets: v.TotalAssets(), TotalShares: v.TotalShares()}
}

// PreviewDeposit quotes the shares minted for depositing assets now.
func (v *Vault) PreviewDeposit(assets *big.Int) (*big.Int, error) {
	return v.Snapshot().SharesForDeposit(assets)
}

// PreviewRedeem quotes the assets returned for redeeming shares now.
func (v *Vault) PreviewRedeem(shares *big.Int) *big.Int {
	return v.Snapshot().AssetsForRedeem(shares)
}

// Deposit pulls assets from caller and mints the corresponding shares to
// receiver, rounding shares down.
func (v *Vault) Deposit(caller common.Address, assets *big.Int, receiver common.Address) (*big.Int, error) {
	if err := v.checkReceiver(receiver); err != nil {
		return nil, err
	}
	snap := v.Snapshot()
	shares, err := snap.SharesForDeposit(assets)
	if err != nil {
		return nil, err
	}
	if err := v.pullAssets(caller, assets); err != nil {
		return nil, err
	}
	v.mint(receiver, shares)
	v.emit(DepositEvent{Caller: caller, Owner: receiver, Assets: new(big.Int).Set(assets), Shares: shares})
	return shares, nil
}

// Mint pulls the assets needed to mint exactly shares to receiver, rounding
// assets up. It returns the assets charged.
func (v *Vault) Mint(caller common.Address, shares *big.Int, receiver common.Address) (*big.Int, error) {
	if err := v.checkReceiver(receiver); err != nil {
		return nil, err
	}
	snap := v.Snapshot()
	assets := snap.AssetsForMint(shares)
	if err := v.pullAssets(caller, assets); err != nil {
		return nil, err
	}
	v.mint(receiver, new(big.Int).Set(shares))
	v.emit(DepositEvent{Caller: caller, Owner: receiver, Assets: assets, Shares: new(big.Int).Set(shares)})
	return assets, nil
}

// Withdraw burns owner's shares to pay exactly assets to receiver, rounding
// shares up. A caller other than owner spends share allowance. It returns
// the shares burned.
func (v *Vault) Withdraw(caller common.Address, assets *big.Int, receiver, owner common.Address) (*big.Int, error) {
	if err := v.checkReceiver(receiver); err != nil {
		return nil, err
	}
	snap := v.Snapshot()
	shares, err := snap.SharesForWithdraw(assets)
	if err != nil {
		return nil, err
	}
	if err := v.burnFrom(caller, owner, shares); err != nil {
		return nil, err
	}
	if err := v.pushAssets(receiver, assets); err != nil {
		return nil, err
	}
	v.emit(WithdrawEvent{Caller: caller, Receiver: receiver, Owner: owner, Assets: new(big.Int).Set(assets), Shares: shares})
	return shares, nil
}

// Redeem burns exactly shares from owner and pays the corresponding assets
// to receiver, rounding assets down. It returns the assets paid.
func (v *Vault) Redeem(caller common.Address, shares *big.Int, receiver, owner common.Address) (*big.Int, error) {
	if err := v.checkReceiver(receiver); err != nil {
		return nil, err
	}
	snap := v.Snapshot()
	assets := snap.AssetsForRedeem(shares)
	if err := v.burnFrom(caller, owner, new(big.Int).Set(shares)); err != nil {
		return nil, err
	}
	if err := v.pushAssets(receiver, assets); err != nil {
		return nil, err
	}
	v.emit(WithdrawEvent{Caller: caller, Receiver: receiver, Owner: owner, Assets: assets, Shares: new(big.Int).Set(shares)})
	return assets, nil
}

// Transfer moves shares between holders.
func (v *Vault) Transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) || to == v.self {
		return ErrInvalidReceiver
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.move(from, to, amount)
}

// Approve lets spender move up to amount of owner's shares.
func (v *Vault) Approve(owner, spender common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	inner, ok := v.allowances[owner]
	if !ok {
		inner = make(map[common.Address]*big.Int)
		v.allowances[owner] = inner
	}
	inner[spender] = new(big.Int).Set(amount)
}

func (v *Vault) Allowance(owner, spender common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if a, ok := v.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// TransferFrom moves owner's shares by spender, consuming allowance.
func (v *Vault) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) || to == v.self {
		return ErrInvalidReceiver
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if spender != owner {
		if err := v.spendAllowance(owner, spender, amount); err != nil {
			return err
		}
	}
	return v.move(owner, to, amount)
}

func (v *Vault) checkReceiver(receiver common.Address) error {
	if receiver == (common.Address{}) || receiver == v.self {
		return ErrInvalidReceiver
	}
	return nil
}

func (v *Vault) pullAssets(from common.Address, assets *big.Int) error {
	if err := v.asset.TransferFrom(v.self, from, v.self, assets); err != nil {
		return err
	}
	return v.market.Deposit(v.self, assets)
}

func (v *Vault) pushAssets(to common.Address, assets *big.Int) error {
	if err := v.market.Withdraw(v.self, assets); err != nil {
		return err
	}
	return v.asset.Transfer(v.self, to, assets)
}

func (v *Vault) mint(to common.Address, shares *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.shares[to]
	if !ok {
		b = new(big.Int)
		v.shares[to] = b
	}
	b.Add(b, shares)
	v.totalShares.Add(v.totalShares, shares)
}

func (v *Vault) burnFrom(caller, owner common.Address, shares *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != owner {
		if err := v.spendAllowance(owner, caller, shares); err != nil {
			return err
		}
	}
	b, ok := v.shares[owner]
	if !ok || b.Cmp(shares) < 0 {
		return ErrInsufficientShares
	}
	b.Sub(b, shares)
	v.totalShares.Sub(v.totalShares, shares)
	return nil
}

func (v *Vault) move(from, to common.Address, amount *big.Int) error {
	b, ok := v.shares[from]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientShares
	}
	b.Sub(b, amount)
	dst, ok := v.shares[to]
	if !ok {
		dst = new(big.Int)
		v.shares[to] = dst
	}
	dst.Add(dst, amount)
	return nil
}

func (v *Vault) spendAllowance(owner, spender common.Address, amount *big.Int) error {
	a, ok := v.allowances[owner][spender]
	if !ok || a.Cmp(amount) < 0 {
		return ErrInsufficientApproval
	}
	a.Sub(a, amount)
	return nil
}
