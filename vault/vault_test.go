// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/lz-asia/oChai/event"
	"github.com/lz-asia/oChai/token"
)

var (
	vaultAddr = common.HexToAddress("0xAAAA000000000000000000000000000000000001")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob       = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol     = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newTestVault(t *testing.T) (*Vault, *token.MemToken, *SavingsMarket, *event.Recorder) {
	t.Helper()
	asset := token.NewMemToken()
	market := NewSavingsMarket()
	rec := event.NewRecorder()
	v := New(asset, market, vaultAddr, rec.Emit)

	for _, user := range []common.Address{alice, bob} {
		asset.Mint(user, big.NewInt(1_000_000))
		asset.Approve(user, vaultAddr, big.NewInt(1_000_000))
	}
	return v, asset, market, rec
}

func TestDepositBootstrapsOneToOne(t *testing.T) {
	v, asset, _, rec := newTestVault(t)

	shares, err := v.Deposit(alice, big.NewInt(500), alice)
	require.NoError(t, err)
	require.Equal(t, int64(500), shares.Int64())
	require.Equal(t, int64(500), v.BalanceOf(alice).Int64())
	require.Equal(t, int64(500), v.TotalShares().Int64())
	require.Equal(t, int64(500), v.TotalAssets().Int64())
	require.Equal(t, int64(999_500), asset.BalanceOf(alice).Int64())

	events := rec.Named("Deposit")
	require.Len(t, events, 1)
	ev := events[0].(DepositEvent)
	require.Equal(t, alice, ev.Caller)
	require.Equal(t, int64(500), ev.Assets.Int64())
	require.Equal(t, int64(500), ev.Shares.Int64())
}

func TestDepositAfterYieldUsesLiveRate(t *testing.T) {
	v, _, market, _ := newTestVault(t)

	_, err := v.Deposit(alice, big.NewInt(500), alice)
	require.NoError(t, err)

	// Ten percent yield accrues: 500 assets become 550.
	market.Accrue(vaultAddr, 10, 100)
	require.Equal(t, int64(550), v.TotalAssets().Int64())

	shares, err := v.Deposit(bob, big.NewInt(110), bob)
	require.NoError(t, err)
	require.Equal(t, int64(100), shares.Int64())
	require.Equal(t, int64(600), v.TotalShares().Int64())
}

func TestMintChargesRoundedUpAssets(t *testing.T) {
	v, asset, market, _ := newTestVault(t)

	_, err := v.Deposit(alice, big.NewInt(3), alice)
	require.NoError(t, err)
	market.Accrue(vaultAddr, 7, 3) // 3 assets -> 10

	before := asset.BalanceOf(bob)
	assets, err := v.Mint(bob, big.NewInt(2), bob)
	require.NoError(t, err)
	// 2 shares * 10 / 3 rounds up to 7.
	require.Equal(t, int64(7), assets.Int64())
	require.Equal(t, int64(7), new(big.Int).Sub(before, asset.BalanceOf(bob)).Int64())
	require.Equal(t, int64(2), v.BalanceOf(bob).Int64())
}

func TestWithdrawAndRedeemRounding(t *testing.T) {
	v, asset, market, _ := newTestVault(t)

	_, err := v.Deposit(alice, big.NewInt(3), alice)
	require.NoError(t, err)
	market.Accrue(vaultAddr, 7, 3) // rate 10/3

	// Redeem rounds assets down.
	assets, err := v.Redeem(alice, big.NewInt(2), alice, alice)
	require.NoError(t, err)
	require.Equal(t, int64(6), assets.Int64())
	require.Equal(t, int64(1), v.BalanceOf(alice).Int64())

	// Remaining: 1 share, 4 assets. Withdraw of 4 burns ceil(4*1/4)=1 share.
	before := asset.BalanceOf(carol)
	shares, err := v.Withdraw(alice, big.NewInt(4), carol, alice)
	require.NoError(t, err)
	require.Equal(t, int64(1), shares.Int64())
	require.Equal(t, int64(4), new(big.Int).Sub(asset.BalanceOf(carol), before).Int64())
	require.Equal(t, int64(0), v.TotalShares().Int64())
}

func TestWithdrawByNonOwnerSpendsAllowance(t *testing.T) {
	v, _, _, _ := newTestVault(t)

	_, err := v.Deposit(alice, big.NewInt(100), alice)
	require.NoError(t, err)

	_, err = v.Redeem(bob, big.NewInt(40), bob, alice)
	require.ErrorIs(t, err, ErrInsufficientApproval)

	v.Approve(alice, bob, big.NewInt(50))
	_, err = v.Redeem(bob, big.NewInt(40), bob, alice)
	require.NoError(t, err)
	require.Equal(t, int64(10), v.Allowance(alice, bob).Int64())

	_, err = v.Redeem(bob, big.NewInt(40), bob, alice)
	require.ErrorIs(t, err, ErrInsufficientApproval)
}

func TestInvalidReceivers(t *testing.T) {
	v, _, _, _ := newTestVault(t)

	_, err := v.Deposit(alice, big.NewInt(10), common.Address{})
	require.ErrorIs(t, err, ErrInvalidReceiver)
	_, err = v.Deposit(alice, big.NewInt(10), vaultAddr)
	require.ErrorIs(t, err, ErrInvalidReceiver)

	_, err = v.Deposit(alice, big.NewInt(10), alice)
	require.NoError(t, err)
	_, err = v.Withdraw(alice, big.NewInt(5), vaultAddr, alice)
	require.ErrorIs(t, err, ErrInvalidReceiver)
	require.Equal(t, int64(10), v.BalanceOf(alice).Int64())
}

func TestRedeemMoreThanBalanceFails(t *testing.T) {
	v, _, _, _ := newTestVault(t)

	_, err := v.Deposit(alice, big.NewInt(10), alice)
	require.NoError(t, err)
	_, err = v.Redeem(alice, big.NewInt(11), alice, alice)
	require.ErrorIs(t, err, ErrInsufficientShares)
	require.Equal(t, int64(10), v.BalanceOf(alice).Int64())
	require.Equal(t, int64(10), v.TotalAssets().Int64())
}

func TestShareTransfers(t *testing.T) {
	v, _, _, _ := newTestVault(t)

	_, err := v.Deposit(alice, big.NewInt(100), alice)
	require.NoError(t, err)

	require.NoError(t, v.Transfer(alice, bob, big.NewInt(30)))
	require.Equal(t, int64(70), v.BalanceOf(alice).Int64())
	require.Equal(t, int64(30), v.BalanceOf(bob).Int64())

	require.ErrorIs(t, v.Transfer(alice, vaultAddr, big.NewInt(1)), ErrInvalidReceiver)

	require.ErrorIs(t, v.TransferFrom(carol, alice, carol, big.NewInt(10)), ErrInsufficientApproval)
	v.Approve(alice, carol, big.NewInt(10))
	require.NoError(t, v.TransferFrom(carol, alice, carol, big.NewInt(10)))
	require.Equal(t, int64(60), v.BalanceOf(alice).Int64())
}
