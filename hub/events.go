// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hub

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// RecordDepositRequestEvent is emitted when a relayed deposit request is
// recorded and becomes executable.
type RecordDepositRequestEvent struct {
	SrcDomain uint32
	Requester common.Address
	Amount    *big.Int
	Fee       *big.Int
	Nonce     uint64
}

func (RecordDepositRequestEvent) Name() string { return "RecordDepositRequest" }

// ExecuteDepositRequestEvent is emitted when an executor fills a recorded
// deposit: net assets went into the vault and the minted shares were
// forwarded to the requester's domain.
type ExecuteDepositRequestEvent struct {
	SrcDomain uint32
	Requester common.Address
	Nonce     uint64
	Taker     common.Address
	NetAssets *big.Int
	Shares    *big.Int
}

func (ExecuteDepositRequestEvent) Name() string { return "ExecuteDepositRequest" }

// ForwardCancelDepositEvent is emitted when a cancellation is confirmed and
// relayed back toward the originating domain.
type ForwardCancelDepositEvent struct {
	SrcDomain uint32
	Requester common.Address
	Nonce     uint64
}

func (ForwardCancelDepositEvent) Name() string { return "ForwardCancelDepositToSrcChain" }
