// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"errors"
	"math/big"
	"testing"
)

func snap(assets, shares int64) Snapshot {
	return Snapshot{TotalAssets: big.NewInt(assets), TotalShares: big.NewInt(shares)}
}

func TestBootstrapRateIsOneToOne(t *testing.T) {
	s := snap(0, 0)
	if got, err := s.SharesForDeposit(big.NewInt(1000)); err != nil || got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("SharesForDeposit = %v, %v, want 1000", got, err)
	}
	if got := s.AssetsForMint(big.NewInt(7)); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("AssetsForMint = %v, want 7", got)
	}
	if got := s.AssetsForRedeem(big.NewInt(7)); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("AssetsForRedeem = %v, want 7", got)
	}
}

func TestRoundingDirections(t *testing.T) {
	// 3 shares outstanding against 10 assets: rate 10/3.
	s := snap(10, 3)

	// Deposit rounds shares down: 7 assets * 3 / 10 = 2.1 -> 2.
	if got, err := s.SharesForDeposit(big.NewInt(7)); err != nil || got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("SharesForDeposit = %v, %v, want 2", got, err)
	}
	// Mint rounds assets up: 2 shares * 10 / 3 = 6.66 -> 7.
	if got := s.AssetsForMint(big.NewInt(2)); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("AssetsForMint = %v, want 7", got)
	}
	// Redeem rounds assets down: 2 shares -> 6.
	if got := s.AssetsForRedeem(big.NewInt(2)); got.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("AssetsForRedeem = %v, want 6", got)
	}
	// Withdraw rounds shares up: 7 assets * 3 / 10 = 2.1 -> 3.
	if got, err := s.SharesForWithdraw(big.NewInt(7)); err != nil || got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("SharesForWithdraw = %v, %v, want 3", got, err)
	}
}

// Shares outstanding with nothing backing them must refuse to price a
// deposit or withdrawal instead of converting to zero.
func TestUnbackedSharesRejectConversion(t *testing.T) {
	s := snap(0, 5)
	if _, err := s.SharesForDeposit(big.NewInt(100)); !errors.Is(err, ErrNoBackingAssets) {
		t.Fatalf("err = %v, want ErrNoBackingAssets", err)
	}
	if _, err := s.SharesForWithdraw(big.NewInt(100)); !errors.Is(err, ErrNoBackingAssets) {
		t.Fatalf("err = %v, want ErrNoBackingAssets", err)
	}
	// Redeeming worthless shares is still well-defined: they return zero.
	if got := s.AssetsForRedeem(big.NewInt(5)); got.Sign() != 0 {
		t.Fatalf("AssetsForRedeem = %v, want 0", got)
	}
}

// Depositing then redeeming can never come out ahead, whatever the rate.
func TestRoundTripNeverCreatesValue(t *testing.T) {
	cases := []struct{ assets, totalAssets, totalShares int64 }{
		{1, 3, 7},
		{999, 1000, 1},
		{1000000, 123457, 99991},
		{5, 0, 0},
		{13, 17, 17},
		{7919, 104729, 1299709},
	}
	for _, c := range cases {
		s := snap(c.totalAssets, c.totalShares)
		in := big.NewInt(c.assets)
		shares, err := s.SharesForDeposit(in)
		if err != nil {
			t.Fatalf("SharesForDeposit at (%d, %d): %v", c.totalAssets, c.totalShares, err)
		}
		out := s.AssetsForRedeem(shares)
		if out.Cmp(in) > 0 {
			t.Errorf("round trip of %d at (%d, %d) returned %v", c.assets, c.totalAssets, c.totalShares, out)
		}
	}
}

// Mint-then-withdraw symmetry: the assets charged to mint shares always
// cover the assets those shares redeem for.
func TestMintChargeCoversRedeem(t *testing.T) {
	s := snap(104729, 1299709)
	for _, n := range []int64{1, 2, 1000, 999983} {
		shares := big.NewInt(n)
		charged := s.AssetsForMint(shares)
		returned := s.AssetsForRedeem(shares)
		if charged.Cmp(returned) < 0 {
			t.Errorf("minting %d shares charged %v but redeems %v", n, charged, returned)
		}
	}
}
