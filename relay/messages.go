// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay is the cross-domain messaging layer: packet encoding, the
// endpoint interface the gateway and hub send through, destination gas
// policy, and the failed-message buffer that backs manual retry.
//
// The transport delivers packets at-least-once and in order per sender, but
// with arbitrary delay; payloads are opaque bytes to it. Only this package
// and its callers know the schemas.
package relay

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// PacketType tags every payload's first two bytes.
type PacketType uint16

const (
	PacketDeposit PacketType = 1
	PacketCancel  PacketType = 2
	PacketShares  PacketType = 3
)

// Payload lengths per schema. Amounts are 32-byte big-endian words.
const (
	depositLen         = 2 + 20 + 32 + 32 + 8 // satellite -> hub
	depositCompleteLen = 2 + 20 + 8 + 20      // hub -> satellite
	cancelLen          = 2 + 20 + 8 + 8       // satellite -> hub
	cancelConfirmLen   = 2 + 20 + 8           // hub -> satellite
	sharesLen          = 2 + 20 + 32          // hub -> satellite
)

var (
	ErrBadPayload    = errors.New("malformed payload")
	ErrValueTooLarge = errors.New("value exceeds 256 bits")
)

// Kind returns the packet type tag without decoding the body.
func Kind(payload []byte) (PacketType, error) {
	if len(payload) < 2 {
		return 0, ErrBadPayload
	}
	return PacketType(binary.BigEndian.Uint16(payload)), nil
}

// PayloadHash is the digest stored in the failed-message buffer and checked
// on retry.
func PayloadHash(payload []byte) common.Hash {
	h := blake3.New()
	h.Write(payload)
	var out common.Hash
	h.Digest().Read(out[:])
	return out
}

// DepositMessage travels satellite -> hub when a user requests a deposit.
type DepositMessage struct {
	Requester common.Address
	Amount    *big.Int
	Fee       *big.Int
	Nonce     uint64
}

func (m DepositMessage) Encode() ([]byte, error) {
	out := make([]byte, 0, depositLen)
	out = binary.BigEndian.AppendUint16(out, uint16(PacketDeposit))
	out = append(out, m.Requester.Bytes()...)
	var err error
	if out, err = appendWord(out, m.Amount); err != nil {
		return nil, err
	}
	if out, err = appendWord(out, m.Fee); err != nil {
		return nil, err
	}
	out = binary.BigEndian.AppendUint64(out, m.Nonce)
	return out, nil
}

func DecodeDeposit(payload []byte) (DepositMessage, error) {
	if len(payload) != depositLen || PacketType(binary.BigEndian.Uint16(payload)) != PacketDeposit {
		return DepositMessage{}, ErrBadPayload
	}
	return DepositMessage{
		Requester: common.BytesToAddress(payload[2:22]),
		Amount:    new(big.Int).SetBytes(payload[22:54]),
		Fee:       new(big.Int).SetBytes(payload[54:86]),
		Nonce:     binary.BigEndian.Uint64(payload[86:94]),
	}, nil
}

// DepositCompleteMessage travels hub -> satellite once the deposit executed;
// Taker is the account entitled to the escrowed asset on the satellite.
type DepositCompleteMessage struct {
	Requester common.Address
	Nonce     uint64
	Taker     common.Address
}

func (m DepositCompleteMessage) Encode() []byte {
	out := make([]byte, 0, depositCompleteLen)
	out = binary.BigEndian.AppendUint16(out, uint16(PacketDeposit))
	out = append(out, m.Requester.Bytes()...)
	out = binary.BigEndian.AppendUint64(out, m.Nonce)
	out = append(out, m.Taker.Bytes()...)
	return out
}

func DecodeDepositComplete(payload []byte) (DepositCompleteMessage, error) {
	if len(payload) != depositCompleteLen || PacketType(binary.BigEndian.Uint16(payload)) != PacketDeposit {
		return DepositCompleteMessage{}, ErrBadPayload
	}
	return DepositCompleteMessage{
		Requester: common.BytesToAddress(payload[2:22]),
		Nonce:     binary.BigEndian.Uint64(payload[22:30]),
		Taker:     common.BytesToAddress(payload[30:50]),
	}, nil
}

// CancelMessage travels satellite -> hub; ReturnGasLimit is the gas the hub
// should use for the confirmation leg back.
type CancelMessage struct {
	Requester      common.Address
	Nonce          uint64
	ReturnGasLimit uint64
}

func (m CancelMessage) Encode() []byte {
	out := make([]byte, 0, cancelLen)
	out = binary.BigEndian.AppendUint16(out, uint16(PacketCancel))
	out = append(out, m.Requester.Bytes()...)
	out = binary.BigEndian.AppendUint64(out, m.Nonce)
	out = binary.BigEndian.AppendUint64(out, m.ReturnGasLimit)
	return out
}

func DecodeCancel(payload []byte) (CancelMessage, error) {
	if len(payload) != cancelLen || PacketType(binary.BigEndian.Uint16(payload)) != PacketCancel {
		return CancelMessage{}, ErrBadPayload
	}
	return CancelMessage{
		Requester:      common.BytesToAddress(payload[2:22]),
		Nonce:          binary.BigEndian.Uint64(payload[22:30]),
		ReturnGasLimit: binary.BigEndian.Uint64(payload[30:38]),
	}, nil
}

// CancelConfirmMessage travels hub -> satellite confirming a cancellation.
type CancelConfirmMessage struct {
	Requester common.Address
	Nonce     uint64
}

func (m CancelConfirmMessage) Encode() []byte {
	out := make([]byte, 0, cancelConfirmLen)
	out = binary.BigEndian.AppendUint16(out, uint16(PacketCancel))
	out = append(out, m.Requester.Bytes()...)
	out = binary.BigEndian.AppendUint64(out, m.Nonce)
	return out
}

func DecodeCancelConfirm(payload []byte) (CancelConfirmMessage, error) {
	if len(payload) != cancelConfirmLen || PacketType(binary.BigEndian.Uint16(payload)) != PacketCancel {
		return CancelConfirmMessage{}, ErrBadPayload
	}
	return CancelConfirmMessage{
		Requester: common.BytesToAddress(payload[2:22]),
		Nonce:     binary.BigEndian.Uint64(payload[22:30]),
	}, nil
}

// SharesMessage travels hub -> satellite carrying forwarded vault shares.
type SharesMessage struct {
	To     common.Address
	Amount *big.Int
}

func (m SharesMessage) Encode() ([]byte, error) {
	out := make([]byte, 0, sharesLen)
	out = binary.BigEndian.AppendUint16(out, uint16(PacketShares))
	out = append(out, m.To.Bytes()...)
	return appendWord(out, m.Amount)
}

func DecodeShares(payload []byte) (SharesMessage, error) {
	if len(payload) != sharesLen || PacketType(binary.BigEndian.Uint16(payload)) != PacketShares {
		return SharesMessage{}, ErrBadPayload
	}
	return SharesMessage{
		To:     common.BytesToAddress(payload[2:22]),
		Amount: new(big.Int).SetBytes(payload[22:54]),
	}, nil
}

func appendWord(out []byte, v *big.Int) ([]byte, error) {
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 || v.BitLen() > 256 {
		return nil, ErrValueTooLarge
	}
	var word [32]byte
	v.FillBytes(word[:])
	return append(out, word[:]...), nil
}
