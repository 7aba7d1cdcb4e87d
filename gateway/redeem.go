// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/lz-asia/oChai/ledger"
)

// Redeem requests never cross domains. The requester escrows shares here
// with an asking price and a deadline; any taker may fill the request by
// paying the asked asset amount directly to the requester, taking the
// shares in exchange.

// RequestRedeem escrows shares from caller and records the ask.
func (g *Gateway) RequestRedeem(
	caller common.Address,
	shares, desiredAsset *big.Int,
	deadline int64,
) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if shares == nil || shares.Sign() == 0 || shares.BitLen() > 256 ||
		desiredAsset == nil || desiredAsset.Sign() == 0 || desiredAsset.BitLen() > 256 {
		return 0, ErrInvalidAmount
	}
	if deadline <= g.now() {
		return 0, ErrInvalidDeadline
	}
	if err := g.shares.TransferFrom(g.self, caller, g.self, shares); err != nil {
		return 0, err
	}
	nonce, err := g.redeems.Append(g.cfg.Domain, caller, encodeRedeemRecord(shares, desiredAsset, deadline))
	if err != nil {
		g.shares.Transfer(g.self, caller, shares)
		return 0, err
	}
	g.emit(RequestRedeemEvent{
		Requester:    caller,
		Shares:       new(big.Int).Set(shares),
		DesiredAsset: new(big.Int).Set(desiredAsset),
		Deadline:     deadline,
		Nonce:        nonce,
	})
	return nonce, nil
}

// RedeemRequest returns the stored request for (requester, nonce).
func (g *Gateway) RedeemRequest(requester common.Address, nonce uint64) (ledger.Status, *big.Int, *big.Int, int64, error) {
	rec, err := g.redeems.Get(g.cfg.Domain, requester, nonce)
	if err != nil {
		return 0, nil, nil, 0, err
	}
	shares, desired, deadline, err := decodeRedeemRecord(rec.Payload)
	return rec.Status, shares, desired, deadline, err
}

// RequestCancelRedeem cancels a pending redeem and returns the escrowed
// shares. Unlike deposits there is no hub round trip; the request lives
// only here, so cancellation is immediate.
func (g *Gateway) RequestCancelRedeem(caller common.Address, nonce uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.redeems.Transition(g.cfg.Domain, caller, nonce,
		ledger.Pending, ledger.Cancelled)
	if err != nil {
		return err
	}
	shares, _, _, err := decodeRedeemRecord(rec.Payload)
	if err != nil {
		return err
	}
	if err := g.shares.Transfer(g.self, caller, shares); err != nil {
		return err
	}
	g.emit(RequestCancelRedeemEvent{Requester: caller, Nonce: nonce})
	return nil
}

// ExecuteRedeemRequest fills a pending redeem before its deadline: taker
// pays desiredAsset to the requester and receives the escrowed shares.
func (g *Gateway) ExecuteRedeemRequest(taker, requester common.Address, nonce uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, err := g.redeems.Get(g.cfg.Domain, requester, nonce)
	if err != nil {
		return err
	}
	if rec.Status != ledger.Pending {
		return ledger.ErrInvalidStatus
	}
	shares, desired, deadline, err := decodeRedeemRecord(rec.Payload)
	if err != nil {
		return err
	}
	if g.now() > deadline {
		return ErrExpiredRequest
	}
	if err := g.asset.TransferFrom(g.self, taker, requester, desired); err != nil {
		return err
	}
	if _, err := g.redeems.Transition(g.cfg.Domain, requester, nonce,
		ledger.Pending, ledger.Completed); err != nil {
		return err
	}
	if err := g.shares.Transfer(g.self, taker, shares); err != nil {
		return err
	}
	g.emit(ExecuteRedeemEvent{
		Requester: requester,
		Nonce:     nonce,
		Taker:     taker,
		Shares:    shares,
		Assets:    desired,
	})
	return nil
}
