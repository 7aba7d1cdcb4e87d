// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// RequestDepositEvent is emitted when a deposit request is escrowed and sent
// toward the hub.
type RequestDepositEvent struct {
	Requester common.Address
	Amount    *big.Int
	Fee       *big.Int
	Nonce     uint64
}

func (RequestDepositEvent) Name() string { return "RequestDeposit" }

// RequestCancelDepositEvent is emitted when a cancellation is sent toward
// the hub. Local state is untouched until the hub confirms.
type RequestCancelDepositEvent struct {
	Requester common.Address
	Nonce     uint64
}

func (RequestCancelDepositEvent) Name() string { return "RequestCancelDeposit" }

// UpdateEligibleTakerEvent records the taker the hub resolved for a deposit.
type UpdateEligibleTakerEvent struct {
	Requester common.Address
	Nonce     uint64
	Taker     common.Address
}

func (UpdateEligibleTakerEvent) Name() string { return "UpdateEligibleTaker" }

// ExecuteDepositEvent is emitted when a completed deposit releases its
// escrow to the taker.
type ExecuteDepositEvent struct {
	Requester common.Address
	Nonce     uint64
	Taker     common.Address
	Amount    *big.Int
}

func (ExecuteDepositEvent) Name() string { return "ExecuteDepositRequest" }

// CancelDepositEvent is emitted when a hub-confirmed cancellation returns
// the escrow to the requester.
type CancelDepositEvent struct {
	Requester common.Address
	Nonce     uint64
	Amount    *big.Int
}

func (CancelDepositEvent) Name() string { return "CancelDepositRequest" }

// RequestRedeemEvent is emitted when redeem shares are escrowed.
type RequestRedeemEvent struct {
	Requester    common.Address
	Shares       *big.Int
	DesiredAsset *big.Int
	Deadline     int64
	Nonce        uint64
}

func (RequestRedeemEvent) Name() string { return "RequestRedeem" }

// RequestCancelRedeemEvent is emitted when a pending redeem is cancelled and
// its share escrow returned.
type RequestCancelRedeemEvent struct {
	Requester common.Address
	Nonce     uint64
}

func (RequestCancelRedeemEvent) Name() string { return "RequestCancelRedeem" }

// ExecuteRedeemEvent is emitted when a taker fills a redeem request.
type ExecuteRedeemEvent struct {
	Requester common.Address
	Nonce     uint64
	Taker     common.Address
	Shares    *big.Int
	Assets    *big.Int
}

func (ExecuteRedeemEvent) Name() string { return "ExecuteRedeemRequest" }
