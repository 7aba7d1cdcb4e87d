// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/lz-asia/oChai/event"
	"github.com/lz-asia/oChai/relay"
	"github.com/lz-asia/oChai/token"
)

const (
	satDom uint32 = 10
	hubDom uint32 = 20
)

var (
	fwdAddr    = common.HexToAddress("0xDDDD000000000000000000000000000000000001")
	minterAddr = common.HexToAddress("0xEEEE000000000000000000000000000000000001")
)

func newTestMesh() *relay.Mesh {
	mesh := relay.NewMesh()
	mesh.AddDomain(satDom, token.NewBank(), relay.FeeSchedule{BaseFee: big.NewInt(100), GasPrice: big.NewInt(1)})
	mesh.AddDomain(hubDom, token.NewBank(), relay.FeeSchedule{BaseFee: big.NewInt(100), GasPrice: big.NewInt(1)})
	return mesh
}

func sharesPayload(t *testing.T, to common.Address, amount int64) []byte {
	t.Helper()
	payload, err := relay.SharesMessage{To: to, Amount: big.NewInt(amount)}.Encode()
	require.NoError(t, err)
	return payload
}

func TestShareMinterDropsRedeliveredPacket(t *testing.T) {
	db := memdb.New()
	t.Cleanup(func() { db.Close() })
	shares := token.NewMemToken()
	rec := event.NewRecorder()
	minter := NewShareMinter(shares, db, rec.Emit)
	minter.SetTrustedRemote(hubDom, fwdAddr)

	payload := sharesPayload(t, alice, 990_000)
	require.NoError(t, minter.OnMessage(hubDom, fwdAddr, 0, payload))
	require.Equal(t, int64(990_000), shares.BalanceOf(alice).Int64())

	// The transport may deliver the same packet again; the mint must not
	// repeat.
	require.NoError(t, minter.OnMessage(hubDom, fwdAddr, 0, payload))
	require.Equal(t, int64(990_000), shares.BalanceOf(alice).Int64())
	require.Equal(t, 1, rec.Count("SharesArrived"))

	// A fresh nonce is a new packet, not a replay.
	require.NoError(t, minter.OnMessage(hubDom, fwdAddr, 1, payload))
	require.Equal(t, int64(1_980_000), shares.BalanceOf(alice).Int64())
}

func TestShareMinterReplayLogSurvivesRestart(t *testing.T) {
	db := memdb.New()
	t.Cleanup(func() { db.Close() })
	shares := token.NewMemToken()
	minter := NewShareMinter(shares, db, nil)
	minter.SetTrustedRemote(hubDom, fwdAddr)

	payload := sharesPayload(t, alice, 500)
	require.NoError(t, minter.OnMessage(hubDom, fwdAddr, 7, payload))

	// A rebuilt minter over the same store still remembers the delivery.
	restarted := NewShareMinter(shares, db, nil)
	restarted.SetTrustedRemote(hubDom, fwdAddr)
	require.NoError(t, restarted.OnMessage(hubDom, fwdAddr, 7, payload))
	require.Equal(t, int64(500), shares.BalanceOf(alice).Int64())
}

func TestShareMinterRejectsUnknownPeer(t *testing.T) {
	db := memdb.New()
	t.Cleanup(func() { db.Close() })
	minter := NewShareMinter(token.NewMemToken(), db, nil)
	minter.SetTrustedRemote(hubDom, fwdAddr)

	payload := sharesPayload(t, alice, 500)
	require.ErrorIs(t, minter.OnMessage(hubDom, bob, 0, payload), relay.ErrUnknownApp)
	require.ErrorIs(t, minter.OnMessage(satDom, fwdAddr, 0, payload), relay.ErrUnknownApp)
}

func TestForwarderQuoteRequiresTrustedRemote(t *testing.T) {
	v, _, _, _ := newTestVault(t)
	mesh := newTestMesh()
	fwd := NewForwarder(v, mesh.Register(hubDom, fwdAddr, nil), relay.NewGasPolicy(), fwdAddr, 200_000)

	_, err := fwd.Quote(satDom, 0)
	require.ErrorIs(t, err, relay.ErrUnknownDomain)

	fwd.SetTrustedRemote(satDom, minterAddr)
	fee, err := fwd.Quote(satDom, 0)
	require.NoError(t, err)
	require.Equal(t, int64(100+200_000), fee.Int64())
}

func TestForwardReleasesLockWhenSendFails(t *testing.T) {
	v, _, _, _ := newTestVault(t)
	_, err := v.Deposit(alice, big.NewInt(500), alice)
	require.NoError(t, err)

	mesh := newTestMesh()
	fwd := NewForwarder(v, mesh.Register(hubDom, fwdAddr, nil), relay.NewGasPolicy(), fwdAddr, 200_000)
	fwd.SetTrustedRemote(satDom, minterAddr)
	v.Approve(alice, fwdAddr, big.NewInt(500))

	err = fwd.Forward(alice, satDom, alice, big.NewInt(500), 0, big.NewInt(0), alice)
	require.ErrorIs(t, err, relay.ErrInsufficientRelayFee)

	// The shares came back out of the lock; nothing was queued.
	require.Equal(t, int64(500), v.BalanceOf(alice).Int64())
	require.Equal(t, int64(0), v.BalanceOf(fwdAddr).Int64())
	require.Equal(t, 0, mesh.Pending())
}
