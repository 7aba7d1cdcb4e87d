// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"math/big"
)

// ErrNoBackingAssets reports a snapshot with shares outstanding but nothing
// backing them; pricing a deposit or withdrawal against it would mint or
// burn shares for free.
var ErrNoBackingAssets = errors.New("shares outstanding with no backing assets")

// Snapshot freezes the vault's exchange rate for one operation. All four
// conversions on a snapshot are consistent with each other; taking the
// snapshot before mutating balances keeps an operation from pricing itself.
type Snapshot struct {
	TotalAssets *big.Int
	TotalShares *big.Int
}

// SharesForDeposit converts assets to shares, rounding down.
func (s Snapshot) SharesForDeposit(assets *big.Int) (*big.Int, error) {
	if s.TotalShares.Sign() == 0 {
		return new(big.Int).Set(assets), nil
	}
	if s.TotalAssets.Sign() == 0 {
		return nil, ErrNoBackingAssets
	}
	return mulDivFloor(assets, s.TotalShares, s.TotalAssets), nil
}

// AssetsForMint converts shares to the assets owed for minting them,
// rounding up.
func (s Snapshot) AssetsForMint(shares *big.Int) *big.Int {
	if s.TotalShares.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	return mulDivCeil(shares, s.TotalAssets, s.TotalShares)
}

// AssetsForRedeem converts shares to assets, rounding down.
func (s Snapshot) AssetsForRedeem(shares *big.Int) *big.Int {
	if s.TotalShares.Sign() == 0 {
		return new(big.Int).Set(shares)
	}
	return mulDivFloor(shares, s.TotalAssets, s.TotalShares)
}

// SharesForWithdraw converts assets to the shares burned to withdraw them,
// rounding up.
func (s Snapshot) SharesForWithdraw(assets *big.Int) (*big.Int, error) {
	if s.TotalShares.Sign() == 0 {
		return new(big.Int).Set(assets), nil
	}
	if s.TotalAssets.Sign() == 0 {
		return nil, ErrNoBackingAssets
	}
	return mulDivCeil(assets, s.TotalShares, s.TotalAssets), nil
}

// Both helpers require a nonzero denominator; every caller branches on the
// degenerate snapshots first.
func mulDivFloor(a, b, denom *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Div(out, denom)
}

func mulDivCeil(a, b, denom *big.Int) *big.Int {
	prod := new(big.Int).Mul(a, b)
	out, rem := new(big.Int).DivMod(prod, denom, new(big.Int))
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}
