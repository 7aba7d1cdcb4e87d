// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"

	"github.com/lz-asia/oChai/token"
)

var (
	appA  = common.HexToAddress("0xA000000000000000000000000000000000000001")
	appB  = common.HexToAddress("0xB000000000000000000000000000000000000001")
	userX = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type captureReceiver struct {
	src     uint32
	srcAddr common.Address
	nonce   uint64
	payload []byte
	calls   int
	fail    error
}

func (r *captureReceiver) OnMessage(src uint32, srcAddr common.Address, nonce uint64, payload []byte) error {
	r.src, r.srcAddr, r.nonce, r.payload = src, srcAddr, nonce, payload
	r.calls++
	return r.fail
}

func TestMessageCodecs(t *testing.T) {
	dep := DepositMessage{
		Requester: userX,
		Amount:    big.NewInt(1_000_000),
		Fee:       big.NewInt(100),
		Nonce:     9,
	}
	payload, err := dep.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if kind, _ := Kind(payload); kind != PacketDeposit {
		t.Fatalf("kind = %v", kind)
	}
	got, err := DecodeDeposit(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Requester != dep.Requester || got.Amount.Cmp(dep.Amount) != 0 ||
		got.Fee.Cmp(dep.Fee) != 0 || got.Nonce != dep.Nonce {
		t.Fatalf("round trip = %+v", got)
	}

	// Schemas do not decode each other even with the shared tag.
	if _, err := DecodeDepositComplete(payload); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
	if _, err := DecodeCancel(payload); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}

	if _, err := (DepositMessage{Requester: userX, Amount: big.NewInt(-1)}).Encode(); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("err = %v, want ErrValueTooLarge", err)
	}
	if _, err := Kind(nil); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
}

func TestGasPolicyFloorAndRequire(t *testing.T) {
	p := NewGasPolicy()

	// Unset on both levels: anything passes.
	if err := p.Require(5, PacketDeposit, 0); err != nil {
		t.Fatalf("unset floor rejected: %v", err)
	}

	p.SetBaseMinGas(PacketDeposit, 100_000)
	p.SetMinGas(5, PacketDeposit, 200_000)

	if got := p.Floor(5, PacketDeposit); got != 200_000 {
		t.Fatalf("floor = %d, want per-domain override", got)
	}
	if got := p.Floor(6, PacketDeposit); got != 100_000 {
		t.Fatalf("floor = %d, want base", got)
	}

	err := p.Require(5, PacketDeposit, 150_000)
	var tooLow *TooLowGasLimitError
	if !errors.As(err, &tooLow) {
		t.Fatalf("err = %v, want TooLowGasLimitError", err)
	}
	if tooLow.Min != 200_000 || tooLow.Supplied != 150_000 {
		t.Fatalf("error values = %+v", tooLow)
	}
	if err := p.Require(5, PacketDeposit, 200_000); err != nil {
		t.Fatalf("at-floor rejected: %v", err)
	}

	if got := p.Effective(5, PacketDeposit, 1); got != 200_000 {
		t.Fatalf("effective = %d, want clamp to floor", got)
	}
	if got := p.Effective(5, PacketDeposit, 300_000); got != 300_000 {
		t.Fatalf("effective = %d, want passthrough", got)
	}
}

func TestMeshDeliversWithNoncesAndAirdrop(t *testing.T) {
	mesh := NewMesh()
	bankA, bankB := token.NewBank(), token.NewBank()
	mesh.AddDomain(1, bankA, FeeSchedule{BaseFee: big.NewInt(10), GasPrice: big.NewInt(2)})
	mesh.AddDomain(2, bankB, FeeSchedule{BaseFee: big.NewInt(10), GasPrice: big.NewInt(2)})

	recv := &captureReceiver{}
	port := mesh.Register(1, appA, &captureReceiver{})
	mesh.Register(2, appB, recv)

	bankA.Credit(userX, big.NewInt(10_000))

	d := Dispatch{
		DstDomain:  2,
		DstAddress: appB,
		Payload:    []byte("hello"),
		GasLimit:   100,
		Airdrop:    big.NewInt(50),
		AirdropTo:  appB,
		Refund:     userX,
	}
	quote := port.Quote(d)
	if quote.Cmp(big.NewInt(10+2*100+50)) != 0 {
		t.Fatalf("quote = %v", quote)
	}

	if err := port.Send(d, new(big.Int).Sub(quote, big.NewInt(1))); err != ErrInsufficientRelayFee {
		t.Fatalf("err = %v, want ErrInsufficientRelayFee", err)
	}

	// Overpayment refunds to the refund address on the source bank.
	if err := port.Send(d, new(big.Int).Add(quote, big.NewInt(7))); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := bankA.BalanceOf(userX).Int64(); got != 10_007 {
		t.Fatalf("refund balance = %d, want 10007", got)
	}

	if mesh.Pending() != 1 {
		t.Fatalf("pending = %d", mesh.Pending())
	}
	if err := mesh.DeliverNext(); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if recv.calls != 1 || recv.src != 1 || recv.srcAddr != appA || recv.nonce != 0 {
		t.Fatalf("delivery = %+v", recv)
	}
	if got := bankB.BalanceOf(appB).Int64(); got != 50 {
		t.Fatalf("airdrop = %d, want 50", got)
	}

	// Sender nonces increase per destination.
	if err := port.Send(d, quote); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := mesh.DeliverNext(); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if recv.nonce != 1 {
		t.Fatalf("nonce = %d, want 1", recv.nonce)
	}
}

func TestMeshOutOfOrderDelivery(t *testing.T) {
	mesh := NewMesh()
	mesh.AddDomain(1, token.NewBank(), FeeSchedule{BaseFee: big.NewInt(0), GasPrice: big.NewInt(0)})
	mesh.AddDomain(2, token.NewBank(), FeeSchedule{BaseFee: big.NewInt(0), GasPrice: big.NewInt(0)})

	recv := &captureReceiver{}
	port := mesh.Register(1, appA, &captureReceiver{})
	mesh.Register(2, appB, recv)

	for _, body := range []string{"first", "second"} {
		d := Dispatch{DstDomain: 2, DstAddress: appB, Payload: []byte(body)}
		if err := port.Send(d, big.NewInt(0)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := mesh.DeliverAt(1); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if string(recv.payload) != "second" {
		t.Fatalf("payload = %q, want second first", recv.payload)
	}
	if err := mesh.DeliverAll(); err != nil {
		t.Fatalf("deliver all: %v", err)
	}
	if string(recv.payload) != "first" || recv.calls != 2 {
		t.Fatalf("delivery = %+v", recv)
	}
}

func TestFailedStoreConsumeOnce(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	store := NewFailedStore(db, []byte("f"))

	payload := []byte("payload")
	if _, err := store.Hash(1, appA, 3); !errors.Is(err, ErrNoFailedMessage) {
		t.Fatalf("err = %v, want ErrNoFailedMessage", err)
	}
	if err := store.Record(1, appA, 3, payload); err != nil {
		t.Fatalf("record: %v", err)
	}
	hash, err := store.Hash(1, appA, 3)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash != PayloadHash(payload) {
		t.Fatal("stored hash mismatch")
	}

	if err := store.Consume(1, appA, 3, []byte("other")); !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("err = %v, want ErrPayloadMismatch", err)
	}
	if err := store.Consume(1, appA, 3, payload); err != nil {
		t.Fatalf("consume: %v", err)
	}
	// Second consume of the same failure finds nothing.
	if err := store.Consume(1, appA, 3, payload); !errors.Is(err, ErrNoFailedMessage) {
		t.Fatalf("err = %v, want ErrNoFailedMessage", err)
	}
}
